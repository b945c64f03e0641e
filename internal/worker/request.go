package worker

import (
	"time"

	"github.com/driftkv/driftkv/internal/addr"
	"github.com/driftkv/driftkv/internal/kverrors"
	"github.com/driftkv/driftkv/internal/lattice"
	"github.com/driftkv/driftkv/internal/replication"
	"github.com/driftkv/driftkv/internal/storage"
	"github.com/driftkv/driftkv/internal/wire"
)

// handleKeyRequestEnvelope implements §4.E's request handler for an
// inbound KeyRequest: each tuple is resolved independently, and a
// KeyResponse is sent back only if the caller wants one and at least
// one tuple produced an immediate result (deferred tuples answer later,
// once their replication lookup resolves).
func (w *Worker) handleKeyRequestEnvelope(env *wire.Envelope) {
	start := time.Now()
	defer func() { w.recordDuration(addr.PurposeRequest, time.Since(start)) }()

	req, err := wire.DecodeKeyRequest(env.Payload)
	if err != nil {
		w.log.Warningf("handleKeyRequestEnvelope: malformed payload: %v", err)
		return
	}
	w.serveKeyRequest(req)
}

func (w *Worker) serveKeyRequest(req wire.KeyRequest) {
	results := make([]wire.KeyTupleResult, 0, len(req.Tuples))
	for _, t := range req.Tuples {
		if orig, ok := replication.ParseReplicationKey(t.Key); ok && t.Op == wire.OpGet {
			w.serveReplicationLookup(orig, req.ReplyAddress)
			continue
		}
		if result, deferred := w.handleTuple(t, req.RequestID, req.ReplyAddress); !deferred {
			results = append(results, result)
		}
	}
	if req.ReplyAddress != "" && len(results) > 0 {
		resp := wire.KeyResponse{RequestID: req.RequestID, Results: results}
		payload, err := resp.Marshal()
		if err != nil {
			w.log.Errorf("serveKeyRequest: marshal response: %v", err)
			return
		}
		w.sendAddr(req.ReplyAddress, wire.Envelope{Type: wire.MsgKeyResponse, Payload: payload})
	}
}

// handleTuple implements §4.E steps 1–5 for a single (key, op) tuple.
// deferred is true when the tuple was queued behind a replication
// lookup and produced no result yet.
func (w *Worker) handleTuple(t wire.KeyTuple, requestID, replyAddress string) (wire.KeyTupleResult, bool) {
	w.recordAccess(t.Key)

	responsible, ok := w.responsibleThreads(t.Key)
	if !ok {
		w.deferTuple(t, requestID, replyAddress)
		w.requestReplicationLookup(t.Key)
		return wire.KeyTupleResult{}, true
	}

	if !w.isSelfResponsible(responsible) {
		return wire.KeyTupleResult{
			Key:                  t.Key,
			ErrorCode:            int(kverrors.CodeWrongThread),
			ErrorMsg:             kverrors.WrongThread(t.Key).Error(),
			ResponsibleAddresses: addressesOf(responsible, w.cfg.Self.PrivateIP, addr.PurposeRequest),
		}, false
	}

	switch t.Op {
	case wire.OpGet:
		return w.serveGet(t.Key), false
	case wire.OpPut:
		return w.servePut(t), false
	default:
		return wire.KeyTupleResult{Key: t.Key, ErrorCode: int(kverrors.CodeInternal), ErrorMsg: "unknown op"}, false
	}
}

func (w *Worker) serveGet(key string) wire.KeyTupleResult {
	prop, ok := w.storedKeys[key]
	if !ok {
		return wire.KeyTupleResult{Key: key, ErrorCode: int(kverrors.CodeKeyDNE), ErrorMsg: kverrors.KeyDNE(key).Error()}
	}
	s := w.serializers[prop.Type]
	v, found, err := s.Get(key)
	if err != nil {
		w.log.Errorf("serveGet %s: %v", key, err)
		return wire.KeyTupleResult{Key: key, ErrorCode: int(kverrors.CodeInternal), ErrorMsg: err.Error()}
	}
	if !found {
		return wire.KeyTupleResult{Key: key, ErrorCode: int(kverrors.CodeKeyDNE), ErrorMsg: kverrors.KeyDNE(key).Error()}
	}
	payload, err := v.Marshal()
	if err != nil {
		return wire.KeyTupleResult{Key: key, ErrorCode: int(kverrors.CodeInternal), ErrorMsg: err.Error()}
	}
	return wire.KeyTupleResult{Key: key, LatticeType: prop.Type, Payload: payload}
}

// servePut implements §4.E step 5: a client-originated PUT merges into
// storage and also seeds local_changeset, since that changeset exists to
// carry locally-originated writes out to peers on the next gossip tick.
func (w *Worker) servePut(t wire.KeyTuple) wire.KeyTupleResult {
	result := w.applyPut(t)
	if result.ErrorCode == 0 {
		w.localChangeset[t.Key] = struct{}{}
	}
	return result
}

// applyPut merges t into storage without touching local_changeset. Used
// for gossip and deferred-gossip application: the original's
// gossip_handler merges without enqueueing the key for re-gossip, since
// the key already reached every responsible peer the sender's own
// changeset knew about. Routing a gossiped key back through
// local_changeset here would have every pair of responsible peers
// re-gossip the same converged key to each other forever.
func (w *Worker) applyPut(t wire.KeyTuple) wire.KeyTupleResult {
	if t.LatticeType == "" {
		return wire.KeyTupleResult{Key: t.Key, ErrorCode: int(kverrors.CodeInternal), ErrorMsg: "PUT requires a lattice type"}
	}
	if prop, exists := w.storedKeys[t.Key]; exists && prop.Type != t.LatticeType {
		return wire.KeyTupleResult{Key: t.Key, ErrorCode: int(kverrors.CodeLatticeMismatch), ErrorMsg: kverrors.LatticeMismatch(t.Key).Error()}
	}

	incoming, err := lattice.Unmarshal(t.LatticeType, t.Payload)
	if err != nil {
		return wire.KeyTupleResult{Key: t.Key, ErrorCode: int(kverrors.CodeInternal), ErrorMsg: err.Error()}
	}
	s, ok := w.serializers[t.LatticeType]
	if !ok {
		return wire.KeyTupleResult{Key: t.Key, ErrorCode: int(kverrors.CodeInternal), ErrorMsg: "no serializer for " + string(t.LatticeType)}
	}
	size, merged, err := s.Put(t.Key, incoming)
	if err != nil {
		w.log.Errorf("applyPut %s: %v", t.Key, err)
		return wire.KeyTupleResult{Key: t.Key, ErrorCode: int(kverrors.CodeInternal), ErrorMsg: err.Error()}
	}

	w.storedKeys[t.Key] = storage.KeyProperty{Type: t.LatticeType, Size: size}
	w.reporter.RecordKeySize(size)

	payload, err := merged.Marshal()
	if err != nil {
		return wire.KeyTupleResult{Key: t.Key, ErrorCode: int(kverrors.CodeInternal), ErrorMsg: err.Error()}
	}
	return wire.KeyTupleResult{Key: t.Key, LatticeType: t.LatticeType, Payload: payload}
}

// deferTuple implements §3's "pending request": held when a tuple's
// replication is unknown, redriven once it resolves.
func (w *Worker) deferTuple(t wire.KeyTuple, requestID, replyAddress string) {
	w.pendingRequests[t.Key] = append(w.pendingRequests[t.Key], pendingOp{
		RequestID:    requestID,
		ReplyAddress: replyAddress,
		Op:           t.Op,
		LatticeType:  t.LatticeType,
		Payload:      t.Payload,
	})
}

// requestReplicationLookup issues the "GET for the replication record
// on the MEMORY tier" of §4.B.3, addressed to one of this key's
// metadata-responsible threads.
func (w *Worker) requestReplicationLookup(key string) {
	targets := w.metadataResponsibleThreads()
	if len(targets) == 0 {
		w.log.Warningf("requestReplicationLookup %s: no MEMORY-tier thread known yet", key)
		return
	}
	target := targets[w.rnd.Intn(len(targets))]

	req := wire.KeyRequest{
		RequestID:    key,
		ReplyAddress: w.selfReplyAddress(addr.PurposeReplicationResponse),
		Tuples: []wire.KeyTuple{{
			Key: replication.ReplicationRecordKey(key),
			Op:  wire.OpGet,
		}},
	}
	payload, err := req.Marshal()
	if err != nil {
		w.log.Errorf("requestReplicationLookup %s: marshal: %v", key, err)
		return
	}
	w.send(target, addr.PurposeRequest, wire.Envelope{Type: wire.MsgKeyRequest, Payload: payload})
}

// serveReplicationLookup answers a replication-record GET directly from
// this thread's own replication map (materializing tier defaults if the
// key has no explicit override yet) rather than through the generic
// storage path, since replication records live in-memory per thread,
// not in a Serializer.
func (w *Worker) serveReplicationLookup(key, replyAddress string) {
	rec := w.repl.Ensure(key)
	factors := make([]wire.TierFactor, 0, len(allTiers))
	for _, t := range allTiers {
		f := rec.Tiers[t]
		factors = append(factors, wire.TierFactor{Tier: string(t), Global: f.Global, Local: f.Local})
	}
	resp := wire.ReplicationResponse{Key: key, Factors: factors}
	payload, err := resp.Marshal()
	if err != nil {
		w.log.Errorf("serveReplicationLookup %s: marshal: %v", key, err)
		return
	}
	w.sendAddr(replyAddress, wire.Envelope{Type: wire.MsgReplicationResponse, Payload: payload})
}

func (w *Worker) selfReplyAddress(p addr.Purpose) string {
	return addr.BindAddressTCP(w.cfg.Self.PrivateIP, w.cfg.Self.Tid, p)
}

// recordAccess implements §3's key_access_tracker: append an access
// timestamp and bump the running count, feeding both the local sliding
// window (purged in telemetry.go) and the EWMA-backed reporter meter.
func (w *Worker) recordAccess(key string) {
	w.keyAccess[key] = append(w.keyAccess[key], time.Now())
	w.accessCount++
	w.reporter.RecordKeyAccess(key)
}
