// Package ring implements §4.B: two-level consistent hashing. A
// GlobalHashRing places whole server threads from every node in a tier
// onto a ring; a LocalHashRing does the same for the threads within a
// single node. Both use the same virtual-node placement scheme, keyed
// by hash/fnv the way the pack's torua example keys shard ownership.
package ring

import (
	"hash/fnv"
	"sort"
	"strconv"

	"github.com/driftkv/driftkv/internal/addr"
)

// virtualNodesPerThread mirrors the original's fixed fan-out of ring
// points per thread, trading ring-table size for placement smoothness.
const virtualNodesPerThread = 100

func hashKey(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

type point struct {
	hash   uint64
	thread addr.ServerThread
	vtid   int
}

// baseRing is the shared sorted-ring implementation both Global and Local
// rings build on; only the points they insert differ.
type baseRing struct {
	points []point
}

func (r *baseRing) insert(st addr.ServerThread, vtidCount int) {
	for vtid := 0; vtid < vtidCount; vtid++ {
		key := st.PrivateIP + ":" + strconv.FormatUint(st.JoinEpoch, 10) + ":" +
			strconv.FormatUint(uint64(st.Tid), 10) + ":" + strconv.Itoa(vtid)
		r.points = append(r.points, point{hash: hashKey(key), thread: st, vtid: vtid})
	}
	// §4.B's documented tiebreak for equal-hash virtual nodes is
	// (private_ip, join_epoch, vtid) lexicographic order; a 64-bit FNV
	// collision between two distinct insert() keys is astronomically
	// unlikely, but the explicit tiebreak keeps ring order deterministic
	// instead of resting on sort.Slice's unspecified behavior among equals.
	sort.Slice(r.points, func(i, j int) bool {
		a, b := r.points[i], r.points[j]
		if a.hash != b.hash {
			return a.hash < b.hash
		}
		if a.thread.PrivateIP != b.thread.PrivateIP {
			return a.thread.PrivateIP < b.thread.PrivateIP
		}
		if a.thread.JoinEpoch != b.thread.JoinEpoch {
			return a.thread.JoinEpoch < b.thread.JoinEpoch
		}
		return a.vtid < b.vtid
	})
}

func (r *baseRing) remove(st addr.ServerThread) {
	out := r.points[:0]
	for _, p := range r.points {
		if !p.thread.Equal(st) {
			out = append(out, p)
		}
	}
	r.points = out
}

// walk returns up to n distinct threads found walking clockwise from the
// ring position of hash, skipping repeated virtual nodes of an already-
// selected thread.
func (r *baseRing) walk(hash uint64, n int) []addr.ServerThread {
	if len(r.points) == 0 || n <= 0 {
		return nil
	}
	start := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= hash })

	seen := make(map[addr.ServerThread]struct{})
	var out []addr.ServerThread
	for i := 0; i < len(r.points) && len(out) < n; i++ {
		idx := (start + i) % len(r.points)
		st := r.points[idx].thread
		if _, ok := seen[st]; ok {
			continue
		}
		seen[st] = struct{}{}
		out = append(out, st)
		if len(seen) == countDistinctThreads(r.points) {
			break
		}
	}
	return out
}

func countDistinctThreads(points []point) int {
	seen := make(map[addr.ServerThread]struct{}, len(points))
	for _, p := range points {
		seen[p.thread] = struct{}{}
	}
	return len(seen)
}

// GlobalHashRing places every worker thread of a single tier, across
// every node in the cluster, on one ring. Used to find which node(s) —
// and, by extension, which threads — are responsible for a key in a
// given tier.
type GlobalHashRing struct {
	base baseRing
}

func NewGlobalHashRing() *GlobalHashRing {
	return &GlobalHashRing{}
}

// Insert adds a server thread's virtual nodes to the ring. It is only
// meaningful for tid==0 representatives in most callers, but accepts any
// thread since the original ring is keyed per-thread, not per-node.
func (g *GlobalHashRing) Insert(st addr.ServerThread) {
	g.base.insert(st, virtualNodesPerThread)
}

func (g *GlobalHashRing) Remove(st addr.ServerThread) {
	g.base.remove(st)
}

// ResponsibleThreads walks the ring starting at the key's hash position
// and returns up to replicaCount distinct threads, the replica set for
// that key in this tier.
func (g *GlobalHashRing) ResponsibleThreads(key string, replicaCount int) []addr.ServerThread {
	return g.base.walk(hashKey(key), replicaCount)
}

// UniqueServers returns the set of distinct nodes (by PrivateIP) with at
// least one thread on the ring, the analogue of the original's
// get_unique_servers used when picking a target node rather than a
// target thread.
func (g *GlobalHashRing) UniqueServers() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range g.base.points {
		if _, ok := seen[p.thread.PrivateIP]; !ok {
			seen[p.thread.PrivateIP] = struct{}{}
			out = append(out, p.thread.PrivateIP)
		}
	}
	sort.Strings(out)
	return out
}

func (g *GlobalHashRing) Size() int {
	return countDistinctThreads(g.base.points)
}

// UniqueThreadReps returns one representative thread per distinct node
// (by PrivateIP) on the ring, carrying that node's PublicIP and
// JoinEpoch — the detail UniqueServers drops — for building a
// ClusterMembership snapshot.
func (g *GlobalHashRing) UniqueThreadReps() []addr.ServerThread {
	seen := map[string]struct{}{}
	var out []addr.ServerThread
	for _, p := range g.base.points {
		if _, ok := seen[p.thread.PrivateIP]; ok {
			continue
		}
		seen[p.thread.PrivateIP] = struct{}{}
		out = append(out, p.thread)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrivateIP < out[j].PrivateIP })
	return out
}

// LocalHashRing places the worker threads of a single node (for one
// tier) on a ring, used to fan a node-level responsibility out to the
// specific thread(s) within that node that should own a key.
type LocalHashRing struct {
	base baseRing
}

func NewLocalHashRing() *LocalHashRing {
	return &LocalHashRing{}
}

func (l *LocalHashRing) Insert(st addr.ServerThread) {
	l.base.insert(st, virtualNodesPerThread)
}

func (l *LocalHashRing) Remove(st addr.ServerThread) {
	l.base.remove(st)
}

func (l *LocalHashRing) ResponsibleThreads(key string, localReplicaCount int) []addr.ServerThread {
	return l.base.walk(hashKey(key), localReplicaCount)
}

func (l *LocalHashRing) Size() int {
	return countDistinctThreads(l.base.points)
}
