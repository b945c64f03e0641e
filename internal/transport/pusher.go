package transport

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/driftkv/driftkv/internal/wire"
)

// Pusher is a fire-and-forget PUSH client. It is owned by a single
// worker goroutine and caches one outbound connection per destination
// address, so it needs no internal locking — the same "cached sockets,
// single owner" assumption §5 makes about the rest of a worker's state.
type Pusher struct {
	codec wire.Codec
	conns map[string]net.Conn
}

func NewPusher(codec wire.Codec) *Pusher {
	return &Pusher{codec: codec, conns: map[string]net.Conn{}}
}

func parseAddr(addr string) (network, target string, err error) {
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		return "tcp", strings.TrimPrefix(addr, "tcp://"), nil
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://"), nil
	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		return "http", addr, nil
	default:
		return "", "", fmt.Errorf("transport: address %q has no tcp://, unix:// or http:// scheme", addr)
	}
}

func (p *Pusher) dial(addr string) (net.Conn, error) {
	network, target, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	if network == "http" {
		return nil, fmt.Errorf("transport: %q is a request/reply address, use ReqClient", addr)
	}
	return net.DialTimeout(network, target, 3*time.Second)
}

// Send serializes env with the Pusher's codec, frames it, and writes it
// to addr, dialing (or redialing, on a cached connection's error) as
// needed. There is no reply: callers that need acknowledgement use
// ReqClient instead.
func (p *Pusher) Send(addr string, env wire.Envelope) error {
	data, err := p.codec.Marshal(env)
	if err != nil {
		return err
	}

	conn, ok := p.conns[addr]
	if !ok {
		conn, err = p.dial(addr)
		if err != nil {
			return err
		}
		p.conns[addr] = conn
	}

	if err := writeFrame(conn, data); err != nil {
		_ = conn.Close()
		delete(p.conns, addr)

		conn, err = p.dial(addr)
		if err != nil {
			return err
		}
		p.conns[addr] = conn
		return writeFrame(conn, data)
	}
	return nil
}

// Close shuts down every cached outbound connection.
func (p *Pusher) Close() {
	for addr, conn := range p.conns {
		_ = conn.Close()
		delete(p.conns, addr)
	}
}
