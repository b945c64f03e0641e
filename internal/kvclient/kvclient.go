// Package kvclient is a thin client for manual GET/PUT calls against a
// running driftkv worker, used by cmd/kv. It speaks the same
// fire-and-forget PUSH/PULL wire protocol a worker peer would, binding
// its own short-lived reply endpoint instead of an entire worker's nine
// queues.
package kvclient

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/driftkv/driftkv/internal/lattice"
	"github.com/driftkv/driftkv/internal/transport"
	"github.com/driftkv/driftkv/internal/wire"
)

// Client issues one blocking request at a time against a single worker
// thread's request endpoint.
type Client struct {
	target  string
	codec   wire.Codec
	timeout time.Duration
}

// New builds a Client addressed at target, the worker thread's request
// endpoint (e.g. "tcp://10.0.0.5:7203").
func New(target string, codec wire.Codec, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{target: target, codec: codec, timeout: timeout}
}

// Get fetches key, returning its decoded value (whose Type() reports
// its lattice type).
func (c *Client) Get(key string) (lattice.Value, error) {
	result, err := c.roundTrip(wire.KeyTuple{Key: key, Op: wire.OpGet})
	if err != nil {
		return nil, err
	}
	if result.ErrorCode != 0 {
		return nil, fmt.Errorf("%s", result.ErrorMsg)
	}
	return lattice.Unmarshal(result.LatticeType, result.Payload)
}

// PutLWW writes value as a last-writer-wins register, timestamped now.
func (c *Client) PutLWW(key string, value []byte) error {
	v := lattice.LWWValue{Timestamp: uint64(time.Now().UnixNano()), Payload: value}
	payload, err := v.Marshal()
	if err != nil {
		return err
	}
	_, err = c.roundTripPut(key, lattice.LWW, payload)
	return err
}

// AddToSet unions elem into key's SET value.
func (c *Client) AddToSet(key, elem string) error {
	v := lattice.NewSetValue(elem)
	payload, err := v.Marshal()
	if err != nil {
		return err
	}
	_, err = c.roundTripPut(key, lattice.SET, payload)
	return err
}

func (c *Client) roundTripPut(key string, t lattice.Type, payload []byte) (wire.KeyTupleResult, error) {
	result, err := c.roundTrip(wire.KeyTuple{Key: key, LatticeType: t, Op: wire.OpPut, Payload: payload})
	if err != nil {
		return wire.KeyTupleResult{}, err
	}
	if result.ErrorCode != 0 {
		return wire.KeyTupleResult{}, fmt.Errorf("%s", result.ErrorMsg)
	}
	return result, nil
}

func (c *Client) roundTrip(tuple wire.KeyTuple) (wire.KeyTupleResult, error) {
	replyPort := 20000 + rand.Intn(20000)
	replyAddr := fmt.Sprintf("tcp://127.0.0.1:%d", replyPort)

	puller, err := transport.Listen(replyAddr, c.codec)
	if err != nil {
		return wire.KeyTupleResult{}, fmt.Errorf("kvclient: binding reply endpoint: %w", err)
	}
	defer puller.Close()

	requestID := strconv.FormatInt(time.Now().UnixNano(), 36)
	req := wire.KeyRequest{RequestID: requestID, ReplyAddress: replyAddr, Tuples: []wire.KeyTuple{tuple}}
	payload, err := req.Marshal()
	if err != nil {
		return wire.KeyTupleResult{}, err
	}

	pusher := transport.NewPusher(c.codec)
	defer pusher.Close()
	if err := pusher.Send(c.target, wire.Envelope{Type: wire.MsgKeyRequest, Payload: payload}); err != nil {
		return wire.KeyTupleResult{}, fmt.Errorf("kvclient: sending request: %w", err)
	}

	select {
	case env, ok := <-puller.Recv():
		if !ok {
			return wire.KeyTupleResult{}, fmt.Errorf("kvclient: reply channel closed")
		}
		resp, err := wire.DecodeKeyResponse(env.Payload)
		if err != nil {
			return wire.KeyTupleResult{}, err
		}
		if len(resp.Results) == 0 {
			return wire.KeyTupleResult{}, fmt.Errorf("kvclient: empty response")
		}
		return resp.Results[0], nil
	case <-time.After(c.timeout):
		return wire.KeyTupleResult{}, fmt.Errorf("kvclient: timed out waiting for reply from %s", c.target)
	}
}
