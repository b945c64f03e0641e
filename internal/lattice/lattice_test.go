package lattice

import (
	"reflect"
	"testing"
)

func TestLWWMergePicksHigherTimestamp(t *testing.T) {
	a := LWWValue{Timestamp: 1, Payload: []byte("a")}
	b := LWWValue{Timestamp: 2, Payload: []byte("b")}

	m1, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := b.Merge(a)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m1, m2) {
		t.Fatalf("merge not commutative: %v vs %v", m1, m2)
	}
	if m1.(LWWValue).Timestamp != 2 {
		t.Fatalf("expected timestamp 2, got %d", m1.(LWWValue).Timestamp)
	}
}

func TestLWWMergeTieBreaksOnPayload(t *testing.T) {
	a := LWWValue{Timestamp: 5, Payload: []byte("aaa")}
	b := LWWValue{Timestamp: 5, Payload: []byte("bbb")}

	m, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(m.(LWWValue).Payload) != "bbb" {
		t.Fatalf("expected tie-break to favor larger payload, got %q", m.(LWWValue).Payload)
	}
}

func TestLWWMergeIdempotent(t *testing.T) {
	a := LWWValue{Timestamp: 3, Payload: []byte("x")}
	m, err := a.Merge(a)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m, a) {
		t.Fatalf("merge with self not idempotent: %v vs %v", m, a)
	}
}

func TestLWWMergeTypeMismatch(t *testing.T) {
	a := LWWValue{Timestamp: 1}
	_, err := a.Merge(NewSetValue("x"))
	if err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestSetMergeUnion(t *testing.T) {
	a := NewSetValue("a", "b")
	b := NewSetValue("b", "c")

	m, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	merged := m.(SetValue)
	for _, want := range []string{"a", "b", "c"} {
		if _, ok := merged.Elements[want]; !ok {
			t.Fatalf("expected element %q in union, got %v", want, merged.Elements)
		}
	}
	if len(merged.Elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(merged.Elements))
	}
}

func TestSetMergeCommutative(t *testing.T) {
	a := NewSetValue("a", "b")
	b := NewSetValue("b", "c")

	m1, _ := a.Merge(b)
	m2, _ := b.Merge(a)
	if !reflect.DeepEqual(m1.(SetValue).Elements, m2.(SetValue).Elements) {
		t.Fatalf("set merge not commutative: %v vs %v", m1, m2)
	}
}

func TestOrderedSetMergeKeepsHigherRank(t *testing.T) {
	a := OrderedSetValue{Ranks: map[string]int64{"x": 1}}
	b := OrderedSetValue{Ranks: map[string]int64{"x": 5, "y": 2}}

	m, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	merged := m.(OrderedSetValue)
	if merged.Ranks["x"] != 5 {
		t.Fatalf("expected rank 5 for x, got %d", merged.Ranks["x"])
	}
	if merged.Ranks["y"] != 2 {
		t.Fatalf("expected rank 2 for y, got %d", merged.Ranks["y"])
	}
}

func TestCausalMergeDominance(t *testing.T) {
	a := CausalValue{VectorClock: map[string]uint64{"n1": 1}, Payloads: [][]byte{[]byte("a")}}
	b := CausalValue{VectorClock: map[string]uint64{"n1": 2}, Payloads: [][]byte{[]byte("b")}}

	m, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	merged := m.(CausalValue)
	if len(merged.Payloads) != 1 || string(merged.Payloads[0]) != "b" {
		t.Fatalf("expected dominant payload to win outright, got %v", merged.Payloads)
	}
}

func TestCausalMergeConcurrentKeepsBoth(t *testing.T) {
	a := CausalValue{VectorClock: map[string]uint64{"n1": 1}, Payloads: [][]byte{[]byte("a")}}
	b := CausalValue{VectorClock: map[string]uint64{"n2": 1}, Payloads: [][]byte{[]byte("b")}}

	m, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	merged := m.(CausalValue)
	if len(merged.Payloads) != 2 {
		t.Fatalf("expected both concurrent payloads to survive, got %v", merged.Payloads)
	}
}

func TestPriorityMergeHighestWins(t *testing.T) {
	a := PriorityValue{Priority: 1, Payload: []byte("low")}
	b := PriorityValue{Priority: 9, Payload: []byte("high")}

	m, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(m.(PriorityValue).Payload) != "high" {
		t.Fatalf("expected higher priority payload, got %q", m.(PriorityValue).Payload)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	v := NewSetValue("a", "b", "c")
	data, err := v.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Unmarshal(SET, data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(decoded.(SetValue).Elements, v.Elements) {
		t.Fatalf("round trip mismatch: %v vs %v", decoded, v)
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	if _, err := Unmarshal(Type("BOGUS"), nil); err == nil {
		t.Fatal("expected error for unknown lattice type")
	}
}
