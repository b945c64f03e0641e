package worker

import (
	"github.com/driftkv/driftkv/internal/transport"
	"github.com/driftkv/driftkv/internal/wire"
)

// seedQuery asks the event loop — the sole owner of globalRings — for a
// consistent point-in-time membership snapshot, the payload a newcomer's
// "join" bootstrap (§4.A/§4.G) receives back.
type seedQuery struct {
	reply chan wire.ClusterMembership
}

// ServeSeed starts the HTTP responder newcomers POST their join request
// to. Only thread 0 of a node calls this — a node has exactly one seed
// entry point, not one per thread.
func (w *Worker) ServeSeed(bindAddr string) (*transport.ReqServer, error) {
	return transport.ServeReqReply(bindAddr, w.cfg.Codec, map[string]transport.ReqHandleFunc{
		"/seed": func(req wire.Envelope) wire.Envelope {
			m := w.requestMembershipSnapshot()
			payload, err := wire.SeedResponse{Membership: m}.Marshal()
			if err != nil {
				w.log.Errorf("ServeSeed: marshal response: %v", err)
				return wire.Envelope{}
			}
			return wire.Envelope{Type: wire.MsgSeedResponse, Payload: payload}
		},
	})
}

// requestMembershipSnapshot hands a query to the event loop and blocks
// for its reply, from whatever goroutine net/http is running the
// handler on.
func (w *Worker) requestMembershipSnapshot() wire.ClusterMembership {
	q := seedQuery{reply: make(chan wire.ClusterMembership, 1)}
	select {
	case w.seedRequests <- q:
	case <-w.closing:
		return wire.ClusterMembership{}
	}
	select {
	case m := <-q.reply:
		return m
	case <-w.closing:
		return wire.ClusterMembership{}
	}
}

// handleSeedQuery answers q from inside the event loop, the only place
// allowed to read globalRings.
func (w *Worker) handleSeedQuery(q seedQuery) {
	m := wire.ClusterMembership{}
	for _, tier := range allTiers {
		reps := w.globalRings[tier].UniqueThreadReps()
		servers := make([]wire.ServerInfo, 0, len(reps))
		for _, st := range reps {
			servers = append(servers, wire.ServerInfo{PublicIP: st.PublicIP, PrivateIP: st.PrivateIP, JoinEpoch: st.JoinEpoch})
		}
		m.Tiers = append(m.Tiers, wire.TierMembers{Tier: string(tier), Servers: servers})
	}
	select {
	case q.reply <- m:
	default:
	}
}
