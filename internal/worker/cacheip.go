package worker

import (
	"time"

	"github.com/driftkv/driftkv/internal/addr"
	"github.com/driftkv/driftkv/internal/wire"
)

// handleCacheIPReport implements §4.I: a cache announces the keys it is
// now caching (or, when Departing, the keys it is dropping), and this
// thread keeps cacheIPToKeys/keyToCacheIPs as mirrored, bidirectional
// sets so tickGossip can look either direction up in O(1).
func (w *Worker) handleCacheIPReport(env *wire.Envelope) {
	start := time.Now()
	defer func() { w.recordDuration(addr.PurposeCacheIPResponse, time.Since(start)) }()

	report, err := wire.DecodeCacheIPReport(env.Payload)
	if err != nil {
		w.log.Warningf("handleCacheIPReport: malformed payload: %v", err)
		return
	}

	if report.Departing {
		current := w.cacheIPToKeys[report.CacheIP]
		for _, key := range report.Keys {
			delete(current, key)
			delete(w.keyToCacheIPs[key], report.CacheIP)
			if len(w.keyToCacheIPs[key]) == 0 {
				delete(w.keyToCacheIPs, key)
			}
		}
		if len(current) == 0 {
			delete(w.cacheIPToKeys, report.CacheIP)
		}
		return
	}

	current := w.cacheIPToKeys[report.CacheIP]
	if current == nil {
		current = map[string]struct{}{}
		w.cacheIPToKeys[report.CacheIP] = current
	}
	fresh := map[string]struct{}{}
	for _, key := range report.Keys {
		fresh[key] = struct{}{}
		current[key] = struct{}{}
		if w.keyToCacheIPs[key] == nil {
			w.keyToCacheIPs[key] = map[string]struct{}{}
		}
		w.keyToCacheIPs[key][report.CacheIP] = struct{}{}
	}
	for key := range current {
		if _, still := fresh[key]; !still {
			delete(current, key)
			delete(w.keyToCacheIPs[key], report.CacheIP)
			if len(w.keyToCacheIPs[key]) == 0 {
				delete(w.keyToCacheIPs, key)
			}
		}
	}
}

// handleManagementResponse implements §4.I's periodic re-query of the
// management node for the live cache roster: newly extant caches are
// pinged for their current key set, departed ones are dropped from both
// tracking maps.
func (w *Worker) handleManagementResponse(env *wire.Envelope) {
	start := time.Now()
	defer func() { w.recordDuration(addr.PurposeManagementResponse, time.Since(start)) }()

	resp, err := wire.DecodeManagementCacheListResponse(env.Payload)
	if err != nil {
		w.log.Warningf("handleManagementResponse: malformed payload: %v", err)
		return
	}

	extant := make(map[string]struct{}, len(resp.CacheIPs))
	for _, ip := range resp.CacheIPs {
		extant[ip] = struct{}{}
		if _, known := w.extantCaches[ip]; known {
			continue
		}
		w.extantCaches[ip] = struct{}{}
		w.cacheRid++
		ping := wire.CacheIPPing{ReplyAddress: w.selfReplyAddress(addr.PurposeCacheIPResponse)}
		payload, err := ping.Marshal()
		if err != nil {
			w.log.Errorf("handleManagementResponse: marshal ping: %v", err)
			continue
		}
		w.sendAddr(ip, wire.Envelope{Type: wire.MsgCacheIPPing, Payload: payload})
	}

	for ip := range w.extantCaches {
		if _, still := extant[ip]; still {
			continue
		}
		delete(w.extantCaches, ip)
		for key := range w.cacheIPToKeys[ip] {
			delete(w.keyToCacheIPs[key], ip)
			if len(w.keyToCacheIPs[key]) == 0 {
				delete(w.keyToCacheIPs, key)
			}
		}
		delete(w.cacheIPToKeys, ip)
	}
}

// sendCacheListQuery asks the management node for the current cache
// roster, driving handleManagementResponse above.
func (w *Worker) sendCacheListQuery() {
	if w.cfg.ManagementPushAddr == "" {
		return
	}
	req := wire.ManagementCacheListRequest{ReplyAddress: w.selfReplyAddress(addr.PurposeManagementResponse)}
	payload, err := req.Marshal()
	if err != nil {
		w.log.Errorf("sendCacheListQuery: marshal: %v", err)
		return
	}
	w.sendAddr(w.cfg.ManagementPushAddr, wire.Envelope{Type: wire.MsgManagementCacheListRequest, Payload: payload})
}
