package transport

import (
	"net"
	"os"
	"strconv"

	"github.com/driftkv/driftkv/internal/logging"
	"github.com/driftkv/driftkv/internal/wire"
)

// Puller listens for inbound PUSH connections on one bind address and
// feeds decoded envelopes to an MPSC queue a worker's event loop drains.
// A worker runs two Pullers (Unix-domain and TCP) per purpose it
// multiplexes over (§4.A/§5).
type Puller struct {
	listener net.Listener
	registry *connRegistry
	queue    *MPSC[wire.Envelope]
	codec    wire.Codec
}

// Listen binds addr (a "tcp://host:port" or "unix:///path" address) and
// starts accepting connections in the background. The returned Puller's
// Recv() channel is fed by one goroutine per accepted connection.
func Listen(addr string, codec wire.Codec) (*Puller, error) {
	network, target, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	if network == "http" {
		panic("transport: http addresses must use ReqServer, not Puller")
	}

	if network == "unix" {
		if err := os.MkdirAll(dirOf(target), 0o755); err != nil {
			return nil, err
		}
		_ = os.Remove(target) // stale socket file from a prior crash
	}

	ln, err := net.Listen(network, target)
	if err != nil {
		return nil, err
	}

	p := &Puller{
		listener: ln,
		registry: newConnRegistry(),
		queue:    NewMPSC[wire.Envelope](),
		codec:    codec,
	}
	go p.acceptLoop()
	return p, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func (p *Puller) acceptLoop() {
	id := 0
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return // listener closed
		}
		id++
		key := strconv.Itoa(id)
		if !p.registry.add(key, conn) {
			_ = conn.Close()
			continue
		}
		go p.readLoop(key, conn)
	}
}

func (p *Puller) readLoop(key string, conn net.Conn) {
	defer p.registry.remove(key)

	var buf []byte
	for {
		data, err := readFrame(conn, buf)
		if err != nil {
			return
		}
		env, err := p.codec.Unmarshal(data)
		if err != nil {
			// malformed peer message: log-and-drop per §7, not fatal
			logging.CreateLogger("transport").Warningf("dropping malformed frame: %v", err)
			continue
		}
		p.queue.Push(&env)
	}
}

// Recv returns the channel a worker's select loop reads this purpose's
// inbound envelopes from.
func (p *Puller) Recv() <-chan *wire.Envelope {
	return p.queue.Recv()
}

func (p *Puller) Close() error {
	p.registry.closeAll()
	p.queue.Close()
	return p.listener.Close()
}
