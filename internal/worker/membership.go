package worker

import (
	"time"

	"github.com/driftkv/driftkv/internal/addr"
	"github.com/driftkv/driftkv/internal/wire"
)

// bootstrap implements §4.G's "first-join bootstrap": before entering
// the event loop, learn the existing cluster from the seed, resolve a
// join_epoch from the management collaborator (or default to 0), insert
// self into the rings, and — if this is thread 0 — announce arrival.
func (w *Worker) bootstrap() error {
	if w.cfg.SeedAddr != "" {
		req := wire.SeedRequest{
			Tier:      string(w.cfg.Self.Tier),
			PublicIP:  w.cfg.Self.PublicIP,
			PrivateIP: w.cfg.Self.PrivateIP,
		}
		payload, err := req.Marshal()
		if err != nil {
			return err
		}
		resp, err := w.req.Do(w.cfg.SeedAddr, wire.Envelope{Type: wire.MsgSeedRequest, Payload: payload})
		if err != nil {
			return err
		}
		seedResp, err := wire.DecodeSeedResponse(resp.Payload)
		if err != nil {
			return err
		}
		w.applyMembership(seedResp.Membership)
	}

	if w.cfg.ManagementJoinCountAddr != "" {
		req := wire.ManagementJoinCountRequest{PrivateIP: w.cfg.Self.PrivateIP}
		payload, err := req.Marshal()
		if err != nil {
			return err
		}
		resp, err := w.req.Do(w.cfg.ManagementJoinCountAddr, wire.Envelope{Type: wire.MsgManagementJoinCountRequest, Payload: payload})
		if err != nil {
			return err
		}
		countResp, err := wire.DecodeManagementJoinCountResponse(resp.Payload)
		if err != nil {
			return err
		}
		w.cfg.Self.JoinEpoch = countResp.JoinEpoch
	}

	// The global ring holds one tid-0 entry per node, the same shape
	// applyMembership and handleJoin insert.
	selfNode := w.cfg.Self
	selfNode.Tid = 0
	w.globalRings[w.cfg.Self.Tier].Insert(selfNode)
	w.seenJoinEpochs[w.cfg.Self.PrivateIP] = w.cfg.Self.JoinEpoch

	if w.cfg.Self.Tid == 0 {
		w.announceJoin(w.cfg.Self)
	}
	return nil
}

// applyMembership seeds every tier's global ring from a freshly received
// ClusterMembership table.
func (w *Worker) applyMembership(m wire.ClusterMembership) {
	for _, tm := range m.Tiers {
		tier := addr.Tier(tm.Tier)
		ringForTier, ok := w.globalRings[tier]
		if !ok {
			continue
		}
		for _, s := range tm.Servers {
			ringForTier.Insert(addr.ServerThread{
				Tier:      tier,
				PublicIP:  s.PublicIP,
				PrivateIP: s.PrivateIP,
				JoinEpoch: s.JoinEpoch,
			})
		}
	}
}

// announceJoin fans st's arrival out to every other known node's thread
// 0 (cross-node) and every sibling thread on this node (intra-node),
// plus the external routing/monitoring collaborators.
func (w *Worker) announceJoin(st addr.ServerThread) {
	jd := wire.JoinDepart{Tier: string(st.Tier), PublicIP: st.PublicIP, PrivateIP: st.PrivateIP, JoinEpoch: st.JoinEpoch}
	payload, err := jd.Marshal()
	if err != nil {
		w.log.Errorf("announceJoin: marshal: %v", err)
		return
	}
	env := wire.Envelope{Type: wire.MsgJoin, Payload: payload}

	for _, target := range w.otherNodeThread0s() {
		w.send(target, addr.PurposeJoin, env)
	}
	for tid := uint32(0); tid < uint32(w.cfg.TierThreads[w.cfg.Self.Tier]); tid++ {
		if tid == w.cfg.Self.Tid {
			continue
		}
		sibling := addr.ServerThread{Tier: w.cfg.Self.Tier, PrivateIP: w.cfg.Self.PrivateIP, Tid: tid}
		w.send(sibling, addr.PurposeJoin, env)
	}

	wireStr := addr.MembershipWireFormat("join", st)
	for _, a := range append(append([]string{}, w.cfg.RoutingAddrs...), w.cfg.MonitoringAddrs...) {
		w.sendAddr(a, wire.Envelope{Type: wire.MsgJoin, Payload: []byte(wireStr)})
	}
}

// otherNodeThread0s returns the thread-0 representative of every known
// node, across every tier, excluding self.
func (w *Worker) otherNodeThread0s() []addr.ServerThread {
	var out []addr.ServerThread
	for _, tier := range allTiers {
		for _, ip := range w.globalRings[tier].UniqueServers() {
			if ip == w.cfg.Self.PrivateIP {
				continue
			}
			out = append(out, addr.ServerThread{Tier: tier, PrivateIP: ip, Tid: 0})
		}
	}
	return out
}

// handleJoin implements §4.G's join receipt: insert unconditionally,
// rebroadcast at most once per (private_ip, join_epoch) from thread 0,
// then check whether any locally stored key is no longer this thread's
// responsibility.
func (w *Worker) handleJoin(env *wire.Envelope) {
	start := time.Now()
	defer func() { w.recordDuration(addr.PurposeJoin, time.Since(start)) }()

	jd, err := wire.DecodeJoinDepart(env.Payload)
	if err != nil {
		w.log.Warningf("handleJoin: malformed payload: %v", err)
		return
	}
	tier := addr.Tier(jd.Tier)
	ringForTier, ok := w.globalRings[tier]
	if !ok {
		return
	}
	newThread := addr.ServerThread{Tier: tier, PublicIP: jd.PublicIP, PrivateIP: jd.PrivateIP, JoinEpoch: jd.JoinEpoch}
	ringForTier.Insert(newThread)

	if w.cfg.Self.Tid == 0 {
		if seen, ok := w.seenJoinEpochs[jd.PrivateIP]; !ok || jd.JoinEpoch > seen {
			w.seenJoinEpochs[jd.PrivateIP] = jd.JoinEpoch
			w.announceJoin(newThread)
		}
	}

	w.reconcileOwnership()
}

// handleDepart removes a node from the given tier's ring. A departure
// can only ever make self *more* responsible for keys it already
// stores, never less, so no redistribution scan is needed here.
func (w *Worker) handleDepart(env *wire.Envelope) {
	start := time.Now()
	defer func() { w.recordDuration(addr.PurposeDepart, time.Since(start)) }()

	jd, err := wire.DecodeJoinDepart(env.Payload)
	if err != nil {
		w.log.Warningf("handleDepart: malformed payload: %v", err)
		return
	}
	tier := addr.Tier(jd.Tier)
	ringForTier, ok := w.globalRings[tier]
	if !ok {
		return
	}
	ringForTier.Remove(addr.ServerThread{Tier: tier, PublicIP: jd.PublicIP, PrivateIP: jd.PrivateIP, JoinEpoch: jd.JoinEpoch})
}

// handleSelfDepart implements §4.G's self-depart: remove self from the
// ring, ship every stored key to its new owners, notify collaborators,
// then let Run's caller exit the loop.
func (w *Worker) handleSelfDepart(env *wire.Envelope) {
	_ = env
	selfNode := w.cfg.Self
	selfNode.Tid = 0
	w.globalRings[w.cfg.Self.Tier].Remove(selfNode)

	for key := range w.storedKeys {
		responsible, ok := w.responsibleThreads(key)
		if !ok || len(responsible) == 0 {
			continue
		}
		w.shipKeyTo(key, responsible)
	}

	jd := wire.JoinDepart{Tier: string(w.cfg.Self.Tier), PublicIP: w.cfg.Self.PublicIP, PrivateIP: w.cfg.Self.PrivateIP, JoinEpoch: w.cfg.Self.JoinEpoch}
	payload, err := jd.Marshal()
	if err == nil {
		env := wire.Envelope{Type: wire.MsgDepart, Payload: payload}
		for _, target := range w.otherNodeThread0s() {
			w.send(target, addr.PurposeDepart, env)
		}
		wireStr := addr.MembershipWireFormat("depart", w.cfg.Self)
		for _, a := range append(append([]string{}, w.cfg.RoutingAddrs...), w.cfg.MonitoringAddrs...) {
			w.sendAddr(a, wire.Envelope{Type: wire.MsgDepart, Payload: []byte(wireStr)})
		}
	}

	w.log.Infof("self-depart complete, %d keys shipped", len(w.storedKeys))
}

// reconcileOwnership implements §4.G.3: for each locally stored key,
// recompute its responsible set; if self is no longer in it, enqueue
// the key for shipment to its new owners via the redistribution drain.
func (w *Worker) reconcileOwnership() {
	for key := range w.storedKeys {
		responsible, ok := w.responsibleThreads(key)
		if !ok {
			continue
		}
		if w.isSelfResponsible(responsible) {
			continue
		}
		w.enqueueRedistribution(key, responsible)
	}
}

// enqueueRedistribution registers key for shipment to every address in
// responsible, marking it for deletion once every shipment completes.
func (w *Worker) enqueueRedistribution(key string, responsible []addr.ServerThread) {
	if _, marked := w.joinRemoveSet[key]; marked {
		return // already enqueued by an earlier join event this tick
	}
	targets := addressesOf(responsible, w.cfg.Self.PrivateIP, addr.PurposeGossip)
	if len(targets) == 0 {
		return
	}
	for _, t := range targets {
		if w.joinGossipMap[t] == nil {
			w.joinGossipMap[t] = map[string]struct{}{}
		}
		w.joinGossipMap[t][key] = struct{}{}
	}
	w.joinRemoveSet[key] = struct{}{}
}

// drainRedistribution implements §4.G's redistribution drain: on each
// event-loop turn, ship up to RedistributeThreshold keys per
// destination, then apply pending deletions once a destination's queue
// empties. join_gossip_map's key set is copied before mutation, per
// §9's documented hazard.
func (w *Worker) drainRedistribution() {
	for dest, keys := range w.joinGossipMap {
		if len(keys) == 0 {
			delete(w.joinGossipMap, dest)
			continue
		}
		batch := make([]string, 0, w.cfg.RedistributeThreshold)
		for k := range keys {
			batch = append(batch, k)
			if len(batch) >= w.cfg.RedistributeThreshold {
				break
			}
		}

		if w.shipKeysTo(dest, batch) {
			for _, k := range batch {
				delete(keys, k)
			}
		}
		if len(keys) == 0 {
			delete(w.joinGossipMap, dest)
		}
	}

	w.applyPendingRemovals()
}

// applyPendingRemovals deletes every key in join_remove_set that no
// longer appears in any destination's pending gossip bucket, meaning it
// has finished shipping to every new owner.
func (w *Worker) applyPendingRemovals() {
	for key := range w.joinRemoveSet {
		if w.keyStillPending(key) {
			continue
		}
		if prop, ok := w.storedKeys[key]; ok {
			if s, ok := w.serializers[prop.Type]; ok {
				_ = s.Remove(key)
			}
			delete(w.storedKeys, key)
		}
		delete(w.joinRemoveSet, key)
	}
}

func (w *Worker) keyStillPending(key string) bool {
	for _, keys := range w.joinGossipMap {
		if _, ok := keys[key]; ok {
			return true
		}
	}
	return false
}

// shipKeysTo sends a batch of locally stored keys as one PUT KeyRequest
// to dest, returning false (and logging) on a transport failure so the
// caller retries the same batch next tick instead of losing it.
func (w *Worker) shipKeysTo(dest string, keys []string) bool {
	tuples := make([]wire.KeyTuple, 0, len(keys))
	for _, key := range keys {
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
		tuples = append(tuples, wire.KeyTuple{Key: key, LatticeType: prop.Type, Op: wire.OpPut, Payload: payload})
	}
	if len(tuples) == 0 {
		return true
	}
	req := wire.KeyRequest{Tuples: tuples}
	payload, err := req.Marshal()
	if err != nil {
		w.log.Errorf("shipKeysTo %s: marshal: %v", dest, err)
		return false
	}
	if err := w.pusher.Send(dest, wire.Envelope{Type: wire.MsgGossip, Payload: payload}); err != nil {
		w.log.Warningf("shipKeysTo %s: %v", dest, err)
		return false
	}
	return true
}

// shipKeyTo is shipKeysTo's single-key convenience used by self-depart,
// which shipping directly rather than through the tick-based drain since
// the worker is exiting immediately after.
func (w *Worker) shipKeyTo(key string, responsible []addr.ServerThread) {
	for _, dest := range addressesOf(responsible, w.cfg.Self.PrivateIP, addr.PurposeGossip) {
		w.shipKeysTo(dest, []string{key})
	}
}
