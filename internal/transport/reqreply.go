package transport

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/driftkv/driftkv/internal/wire"
)

func newTCPListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// ReqClient is a request/reply client for the two genuine synchronous
// interactions of §6: seed bootstrap and management queries. Everything
// else on the wire is fire-and-forget via Pusher.
type ReqClient struct {
	codec      wire.Codec
	httpClient *http.Client
	retryCount int
}

func NewReqClient(codec wire.Codec) *ReqClient {
	return &ReqClient{
		codec: codec,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
			Timeout: 5 * time.Second,
		},
		retryCount: 3,
	}
}

// Do sends env to addr (an "http://host:port/path" address) and returns
// the decoded reply envelope, retrying transient failures a few times.
func (c *ReqClient) Do(addr string, env wire.Envelope) (wire.Envelope, error) {
	body, err := c.codec.Marshal(env)
	if err != nil {
		return wire.Envelope{}, err
	}

	var lastErr error
	for i := 0; i < c.retryCount; i++ {
		resp, err := c.httpClient.Post(addr, "application/octet-stream", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("transport: %s returned %s", addr, resp.Status)
			continue
		}
		return c.codec.Unmarshal(data)
	}
	return wire.Envelope{}, lastErr
}

func (c *ReqClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// ReqHandleFunc answers one request/reply call.
type ReqHandleFunc func(req wire.Envelope) (resp wire.Envelope)

// ReqServer serves the seed and management endpoints over HTTP.
type ReqServer struct {
	server *http.Server
	codec  wire.Codec
}

// ServeReqReply starts an HTTP server on addr (a bare "host:port", no
// scheme) dispatching each registered path to its handler.
func ServeReqReply(addr string, codec wire.Codec, handlers map[string]ReqHandleFunc) (*ReqServer, error) {
	mux := http.NewServeMux()
	for path, h := range handlers {
		handler := h
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			data, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			env, err := codec.Unmarshal(data)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			respEnv := handler(env)
			out, err := codec.Marshal(respEnv)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(out)
		})
	}

	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := newTCPListener(addr)
	if err != nil {
		return nil, err
	}
	go func() { _ = srv.Serve(ln) }()

	return &ReqServer{server: srv, codec: codec}, nil
}

func (s *ReqServer) Close() error {
	return s.server.Close()
}
