package ring

import (
	"testing"

	"github.com/driftkv/driftkv/internal/addr"
)

func thread(ip string, tid uint32, epoch uint64) addr.ServerThread {
	return addr.ServerThread{Tier: addr.TierMemory, PublicIP: ip, PrivateIP: ip, JoinEpoch: epoch, Tid: tid}
}

func TestGlobalRingResponsibleThreadsDistinct(t *testing.T) {
	g := NewGlobalHashRing()
	g.Insert(thread("10.0.0.1", 0, 1))
	g.Insert(thread("10.0.0.2", 0, 1))
	g.Insert(thread("10.0.0.3", 0, 1))

	out := g.ResponsibleThreads("some-key", 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 responsible threads, got %d", len(out))
	}
	if out[0].Equal(out[1]) {
		t.Fatalf("expected distinct threads, got %v twice", out[0])
	}
}

func TestGlobalRingResponsibleThreadsCappedBySize(t *testing.T) {
	g := NewGlobalHashRing()
	g.Insert(thread("10.0.0.1", 0, 1))

	out := g.ResponsibleThreads("some-key", 5)
	if len(out) != 1 {
		t.Fatalf("expected ring to cap at its own size (1), got %d", len(out))
	}
}

func TestGlobalRingStableAcrossRepeatedLookups(t *testing.T) {
	g := NewGlobalHashRing()
	g.Insert(thread("10.0.0.1", 0, 1))
	g.Insert(thread("10.0.0.2", 0, 1))

	first := g.ResponsibleThreads("stable-key", 1)
	second := g.ResponsibleThreads("stable-key", 1)
	if !first[0].Equal(second[0]) {
		t.Fatalf("expected repeated lookups of the same key to agree: %v vs %v", first, second)
	}
}

func TestGlobalRingRemove(t *testing.T) {
	g := NewGlobalHashRing()
	a := thread("10.0.0.1", 0, 1)
	b := thread("10.0.0.2", 0, 1)
	g.Insert(a)
	g.Insert(b)
	if g.Size() != 2 {
		t.Fatalf("expected size 2, got %d", g.Size())
	}

	g.Remove(a)
	if g.Size() != 1 {
		t.Fatalf("expected size 1 after remove, got %d", g.Size())
	}
	out := g.ResponsibleThreads("any-key", 2)
	for _, th := range out {
		if th.Equal(a) {
			t.Fatalf("removed thread %v still responsible", a)
		}
	}
}

func TestUniqueServersDeduplicatesByPrivateIP(t *testing.T) {
	g := NewGlobalHashRing()
	g.Insert(thread("10.0.0.1", 0, 1))
	g.Insert(thread("10.0.0.1", 1, 1))
	g.Insert(thread("10.0.0.2", 0, 1))

	servers := g.UniqueServers()
	if len(servers) != 2 {
		t.Fatalf("expected 2 unique servers, got %v", servers)
	}
}

func TestUniqueThreadRepsCarriesJoinEpoch(t *testing.T) {
	g := NewGlobalHashRing()
	g.Insert(thread("10.0.0.1", 0, 7))

	reps := g.UniqueThreadReps()
	if len(reps) != 1 {
		t.Fatalf("expected 1 rep, got %d", len(reps))
	}
	if reps[0].JoinEpoch != 7 {
		t.Fatalf("expected join epoch 7 preserved, got %d", reps[0].JoinEpoch)
	}
}

func TestLocalRingResponsibleThreads(t *testing.T) {
	l := NewLocalHashRing()
	l.Insert(thread("10.0.0.1", 0, 1))
	l.Insert(thread("10.0.0.1", 1, 1))
	l.Insert(thread("10.0.0.1", 2, 1))

	out := l.ResponsibleThreads("local-key", 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 local responsible threads, got %d", len(out))
	}
}

func TestEmptyRingReturnsNil(t *testing.T) {
	g := NewGlobalHashRing()
	if out := g.ResponsibleThreads("x", 3); out != nil {
		t.Fatalf("expected nil from an empty ring, got %v", out)
	}
}
