package transport

import (
	"net"

	"github.com/puzpuzpuz/xsync/v3"
)

// MaxSockets bounds how many inbound connections a single Puller will
// accept, the Go analogue of the original's ZMQ_MAX_SOCKETS context
// option. Exceeding it means new connections are refused rather than
// silently starving existing ones of file descriptors.
const MaxSockets = 4096

// connRegistry tracks live inbound connections for one Puller. It is
// touched by every accept-goroutine concurrently (Store/Delete) and by
// the accept loop itself when deciding whether to refuse a new
// connection, which is the one place in this module where xsync's
// lock-free map earns its keep — everywhere else a worker's state is
// owned by exactly one goroutine and needs no concurrent map at all.
type connRegistry struct {
	conns *xsync.MapOf[string, net.Conn]
}

func newConnRegistry() *connRegistry {
	return &connRegistry{conns: xsync.NewMapOf[string, net.Conn]()}
}

func (r *connRegistry) add(key string, conn net.Conn) bool {
	if r.conns.Size() >= MaxSockets {
		return false
	}
	r.conns.Store(key, conn)
	return true
}

func (r *connRegistry) remove(key string) {
	if conn, ok := r.conns.LoadAndDelete(key); ok {
		_ = conn.Close()
	}
}

func (r *connRegistry) closeAll() {
	r.conns.Range(func(key string, conn net.Conn) bool {
		_ = conn.Close()
		r.conns.Delete(key)
		return true
	})
}
