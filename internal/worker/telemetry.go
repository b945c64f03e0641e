package worker

import (
	"time"

	"github.com/driftkv/driftkv/internal/addr"
	"github.com/driftkv/driftkv/internal/lattice"
	"github.com/driftkv/driftkv/internal/replication"
	"github.com/driftkv/driftkv/internal/wire"
)

const occupancyLogThreshold = 0.02

// tickReport implements §4.J: every report period, emit this thread's
// self-stats, key-access counts, and (primary-replica-only) key sizes
// as LWW metadata PUTs, then reset the epoch's accumulators.
func (w *Worker) tickReport() {
	w.epoch++
	ts := time.Now()
	duration := time.Since(w.reportStart)

	var occupancy float64
	if duration > 0 {
		occupancy = float64(w.workingTime) / float64(duration)
	}
	if occupancy > occupancyLogThreshold {
		w.log.Infof("overall occupancy is %.4f (ewma rate1 %.4f)", occupancy, w.reporter.WorkingTimeRate1())
	}
	for i, p := range addr.InboundPurposes() {
		if duration <= 0 {
			break
		}
		eventOccupancy := float64(w.workingTimeByPurpose[p]) / float64(duration)
		if eventOccupancy > occupancyLogThreshold {
			w.log.Infof("event %d (%s) occupancy is %.4f", i, p, eventOccupancy)
		}
	}

	stats := wire.ServerThreadStatistics{
		Epoch:                w.epoch,
		StorageConsumptionKB: uint64(w.reporter.StorageConsumptionKB()),
		Occupancy:            occupancy,
		AccessCount:          w.accessCount,
	}
	if body, err := stats.Marshal(); err == nil {
		w.putMetadata("server_stats", body, ts)
	} else {
		w.log.Errorf("tickReport: marshal server_stats: %v", err)
	}

	w.purgeStaleAccess(ts)
	if len(w.keyAccess) > 0 {
		counts := make([]wire.KeyCount, 0, len(w.keyAccess))
		for key, hits := range w.keyAccess {
			counts = append(counts, wire.KeyCount{Key: key, AccessCount: uint64(len(hits))})
		}
		access := wire.KeyAccessData{Epoch: w.epoch, Keys: counts}
		if body, err := access.Marshal(); err == nil {
			w.putMetadata("key_access", body, ts)
		} else {
			w.log.Errorf("tickReport: marshal key_access: %v", err)
		}
	}

	var sizes []wire.KeySize
	for key, prop := range w.storedKeys {
		responsible, ok := w.responsibleThreads(key)
		if !ok || !w.isPrimaryReplica(responsible) {
			continue
		}
		sizes = append(sizes, wire.KeySize{Key: key, Size: uint64(prop.Size)})
	}
	if len(sizes) > 0 {
		sizeData := wire.KeySizeData{Epoch: w.epoch, Sizes: sizes}
		if body, err := sizeData.Marshal(); err == nil {
			w.putMetadata("key_size", body, ts)
		} else {
			w.log.Errorf("tickReport: marshal key_size: %v", err)
		}
	}

	w.sendCacheListQuery()

	w.workingTime = 0
	for p := range w.workingTimeByPurpose {
		delete(w.workingTimeByPurpose, p)
	}
	w.accessCount = 0
	w.reportStart = ts
}

// isPrimaryReplica reports whether self is first in responsible's order,
// the "primary replica" of §4.J's key_size de-duplication rule.
func (w *Worker) isPrimaryReplica(responsible []addr.ServerThread) bool {
	return len(responsible) > 0 && responsible[0].Tier == w.cfg.Self.Tier && responsible[0].Equal(w.cfg.Self)
}

// purgeStaleAccess drops every access timestamp older than
// KeyMonitoringWindow via a full sweep — a deliberate departure from a
// break-after-first-stale-entry scan, since a full sweep cannot leave a
// key's tracker wedged with one unpurged old entry blocking the rest.
func (w *Worker) purgeStaleAccess(now time.Time) {
	cutoff := now.Add(-w.cfg.KeyMonitoringWindow)
	for key, hits := range w.keyAccess {
		kept := hits[:0]
		for _, h := range hits {
			if h.After(cutoff) {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(w.keyAccess, key)
			w.reporter.ForgetKey(key)
		} else {
			w.keyAccess[key] = kept
		}
	}
}

// putMetadata sends one LWW-wrapped metadata PUT to a uniformly random
// member of the MEMORY tier's responsible set, per §4.J.
func (w *Worker) putMetadata(name string, body []byte, ts time.Time) {
	targets := w.metadataResponsibleThreads()
	if len(targets) == 0 {
		w.log.Warningf("putMetadata %s: no MEMORY-tier thread known yet", name)
		return
	}
	target := targets[w.rnd.Intn(len(targets))]

	val := lattice.LWWValue{Timestamp: uint64(ts.UnixNano()), Payload: body}
	payload, err := val.Marshal()
	if err != nil {
		w.log.Errorf("putMetadata %s: marshal: %v", name, err)
		return
	}
	key := replication.MetadataPrefix + name + "/" + w.selfLabel()
	tuple := wire.KeyTuple{Key: key, LatticeType: lattice.LWW, Op: wire.OpPut, Payload: payload}
	req := wire.KeyRequest{Tuples: []wire.KeyTuple{tuple}}
	reqPayload, err := req.Marshal()
	if err != nil {
		w.log.Errorf("putMetadata %s: marshal request: %v", name, err)
		return
	}
	w.send(target, addr.PurposeRequest, wire.Envelope{Type: wire.MsgKeyRequest, Payload: reqPayload})
}

func (w *Worker) selfLabel() string {
	return w.cfg.Self.PrivateIP + "-" + itoa(w.cfg.Self.Tid)
}
