package worker

import (
	"github.com/driftkv/driftkv/internal/addr"
	"github.com/driftkv/driftkv/internal/replication"
)

// responsibleThreads implements §4.B's responsible-replica resolution.
// For a metadata key it returns every MEMORY-tier thread (global_rep =
// every memory node, local_rep = every memory thread, per §4.B.1), which
// is always resolvable without a lookup. For an ordinary key it
// consults the replication map; ok is false only when the key's
// replication is genuinely unknown (no explicit override and no
// materialized default yet), meaning the caller must defer.
func (w *Worker) responsibleThreads(key string) ([]addr.ServerThread, bool) {
	if replication.IsMetadataKey(key) {
		return w.metadataResponsibleThreads(), true
	}

	rec, found := w.repl.Lookup(key)
	if !found {
		return nil, false
	}

	var out []addr.ServerThread
	for _, t := range allTiers {
		f := rec.Tiers[t]
		if f.Global <= 0 {
			f = w.repl.DefaultFor(t)
		}
		nodes := w.globalRings[t].ResponsibleThreads(key, f.Global)
		localThreads := w.localRings[t].ResponsibleThreads(key, f.Local)
		for _, node := range nodes {
			for _, lt := range localThreads {
				out = append(out, addr.ServerThread{
					Tier:      t,
					PublicIP:  node.PublicIP,
					PrivateIP: node.PrivateIP,
					JoinEpoch: node.JoinEpoch,
					Tid:       lt.Tid,
				})
			}
		}
	}
	return out, true
}

// metadataResponsibleThreads returns every thread in the MEMORY tier:
// every node on the MEMORY global ring, crossed with every tid on the
// MEMORY local ring, matching §4.B.1's "global_rep = number_of_memory_
// nodes, local_rep = memory_threads".
func (w *Worker) metadataResponsibleThreads() []addr.ServerThread {
	globalRing := w.globalRings[addr.TierMemory]
	nodes := globalRing.ResponsibleThreads("", globalRing.Size())
	localRing := w.localRings[addr.TierMemory]
	localThreads := localRing.ResponsibleThreads("", localRing.Size())

	var out []addr.ServerThread
	for _, node := range nodes {
		for _, lt := range localThreads {
			out = append(out, addr.ServerThread{
				Tier:      addr.TierMemory,
				PublicIP:  node.PublicIP,
				PrivateIP: node.PrivateIP,
				JoinEpoch: node.JoinEpoch,
				Tid:       lt.Tid,
			})
		}
	}
	return out
}

// isSelfResponsible reports whether w.cfg.Self appears in the given
// responsible set, comparing tier in addition to the ring-identity
// fields addr.ServerThread.Equal checks.
func (w *Worker) isSelfResponsible(threads []addr.ServerThread) bool {
	for _, t := range threads {
		if t.Tier == w.cfg.Self.Tier && t.Equal(w.cfg.Self) {
			return true
		}
	}
	return false
}

func addressesOf(threads []addr.ServerThread, selfPrivateIP string, p addr.Purpose) []string {
	out := make([]string, 0, len(threads))
	for _, t := range threads {
		out = append(out, addr.ConnectAddress(selfPrivateIP, t, p))
	}
	return out
}
