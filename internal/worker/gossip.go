package worker

import (
	"time"

	"github.com/driftkv/driftkv/internal/addr"
	"github.com/driftkv/driftkv/internal/wire"
)

// tickGossip implements §4.F's outbound gossip: drain local_changeset,
// batch each key's current (post-merge) value by destination — peer
// threads and subscribed caches alike — and send one KeyRequest per
// destination. Gossip never asks for a reply.
func (w *Worker) tickGossip() {
	if len(w.localChangeset) == 0 {
		return
	}

	batches := map[string][]wire.KeyTuple{}
	for key := range w.localChangeset {
		prop, ok := w.storedKeys[key]
		if !ok {
			continue
		}
		s, ok := w.serializers[prop.Type]
		if !ok {
			continue
		}
		v, found, err := s.Get(key)
		if err != nil || !found {
			continue
		}
		payload, err := v.Marshal()
		if err != nil {
			continue
		}
		tuple := wire.KeyTuple{Key: key, LatticeType: prop.Type, Op: wire.OpPut, Payload: payload}

		responsible, ok := w.responsibleThreads(key)
		if ok {
			for _, peer := range responsible {
				if peer.Tier == w.cfg.Self.Tier && peer.Equal(w.cfg.Self) {
					continue
				}
				dest := addr.ConnectAddress(w.cfg.Self.PrivateIP, peer, addr.PurposeGossip)
				batches[dest] = append(batches[dest], tuple)
			}
		}
		for cacheIP := range w.keyToCacheIPs[key] {
			batches[cacheIP] = append(batches[cacheIP], tuple)
		}
	}

	for dest, tuples := range batches {
		req := wire.KeyRequest{Tuples: tuples}
		payload, err := req.Marshal()
		if err != nil {
			w.log.Errorf("tickGossip %s: marshal: %v", dest, err)
			continue
		}
		if err := w.pusher.Send(dest, wire.Envelope{Type: wire.MsgGossip, Payload: payload}); err != nil {
			w.log.Warningf("tickGossip %s: %v", dest, err)
			continue
		}
		w.reporter.RecordGossipSent()
	}

	w.localChangeset = map[string]struct{}{}
}

// handleGossipEnvelope implements §4.F's inbound gossip: treat every
// tuple as a PUT with no reply. A key whose replication is still
// unknown is queued as PendingGossip instead of dropped.
func (w *Worker) handleGossipEnvelope(env *wire.Envelope) {
	start := time.Now()
	defer func() { w.recordDuration(addr.PurposeGossip, time.Since(start)) }()

	req, err := wire.DecodeKeyRequest(env.Payload)
	if err != nil {
		w.log.Warningf("handleGossipEnvelope: malformed payload: %v", err)
		return
	}

	for _, t := range req.Tuples {
		responsible, ok := w.responsibleThreads(t.Key)
		if !ok {
			w.pendingGossip[t.Key] = append(w.pendingGossip[t.Key], pendingGossipItem{
				LatticeType: t.LatticeType,
				Payload:     t.Payload,
			})
			w.requestReplicationLookup(t.Key)
			continue
		}
		if !w.isSelfResponsible(responsible) {
			continue // at-least-once delivery to a thread no longer responsible: drop, the owner already has it or will via its own gossip
		}
		if t.Op == wire.OpPut {
			w.applyPut(t)
		}
	}
}
