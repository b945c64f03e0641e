package worker

import (
	"time"

	"github.com/driftkv/driftkv/internal/addr"
	"github.com/driftkv/driftkv/internal/replication"
	"github.com/driftkv/driftkv/internal/wire"
)

func factorsFromWire(tiers []wire.TierFactor) replication.KeyReplication {
	rec := replication.KeyReplication{Tiers: map[addr.Tier]replication.Factor{}}
	for _, f := range tiers {
		rec.Tiers[addr.Tier(f.Tier)] = replication.Factor{Global: f.Global, Local: f.Local}
	}
	return rec
}

// handleReplicationResponse implements the return half of §4.B.3's
// replication lookup: install the resolved record, then redrive every
// request and gossip tuple that was deferred behind it.
func (w *Worker) handleReplicationResponse(env *wire.Envelope) {
	start := time.Now()
	defer func() { w.recordDuration(addr.PurposeReplicationResponse, time.Since(start)) }()

	resp, err := wire.DecodeReplicationResponse(env.Payload)
	if err != nil {
		w.log.Warningf("handleReplicationResponse: malformed payload: %v", err)
		return
	}
	w.repl.Set(resp.Key, factorsFromWire(resp.Factors))
	w.drainPending(resp.Key)
}

// drainPending redrives every pendingOp and PendingGossip item queued
// for key now that its replication record is known. The slices are
// copied out and cleared before replaying, since replaying can itself
// append back onto them (§9's copy-before-mutate hazard).
func (w *Worker) drainPending(key string) {
	ops := append([]pendingOp(nil), w.pendingRequests[key]...)
	delete(w.pendingRequests, key)
	for _, op := range ops {
		t := wire.KeyTuple{Key: key, LatticeType: op.LatticeType, Op: op.Op, Payload: op.Payload}
		result, deferred := w.handleTuple(t, op.RequestID, op.ReplyAddress)
		if deferred || op.ReplyAddress == "" {
			continue
		}
		resp := wire.KeyResponse{RequestID: op.RequestID, Results: []wire.KeyTupleResult{result}}
		payload, err := resp.Marshal()
		if err != nil {
			w.log.Errorf("drainPending %s: marshal response: %v", key, err)
			continue
		}
		w.sendAddr(op.ReplyAddress, wire.Envelope{Type: wire.MsgKeyResponse, Payload: payload})
	}

	items := append([]pendingGossipItem(nil), w.pendingGossip[key]...)
	delete(w.pendingGossip, key)
	for _, item := range items {
		responsible, ok := w.responsibleThreads(key)
		if !ok || !w.isSelfResponsible(responsible) {
			continue
		}
		w.applyPut(wire.KeyTuple{Key: key, LatticeType: item.LatticeType, Op: wire.OpPut, Payload: item.Payload})
	}
}

// handleReplicationChange implements §4.H: a key's replication factors
// changed (an operator override, typically). Recompute responsibility
// before and after; a thread that held the key and lost responsibility
// ships it to the new owners and drops it via the same redistribution
// drain the membership path uses. A thread gaining responsibility does
// nothing — the data arrives through gossip from a current owner.
func (w *Worker) handleReplicationChange(env *wire.Envelope) {
	start := time.Now()
	defer func() { w.recordDuration(addr.PurposeReplicationChange, time.Since(start)) }()

	change, err := wire.DecodeReplicationChange(env.Payload)
	if err != nil {
		w.log.Warningf("handleReplicationChange: malformed payload: %v", err)
		return
	}

	before, beforeOK := w.responsibleThreads(change.Key)
	wasResponsible := beforeOK && w.isSelfResponsible(before)

	w.repl.Set(change.Key, factorsFromWire(change.Factors))

	after, afterOK := w.responsibleThreads(change.Key)
	nowResponsible := afterOK && w.isSelfResponsible(after)

	if wasResponsible && !nowResponsible {
		if _, stored := w.storedKeys[change.Key]; stored {
			w.enqueueRedistribution(change.Key, after)
		}
	}
}
