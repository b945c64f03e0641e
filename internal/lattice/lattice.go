// Package lattice implements §3's value model: every stored value is a
// point in a conflict-free merge-semilattice, and merge is the only way
// two replicas of a key are ever reconciled. Each Value implementation
// here must keep merge associative, commutative and idempotent — those
// three properties are what let gossip be at-least-once and still
// converge.
package lattice

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Type names the six lattice flavors a key can be declared as.
type Type string

const (
	LWW         Type = "LWW"
	SET         Type = "SET"
	OrderedSet  Type = "ORDERED_SET"
	SingleCausal Type = "SINGLE_CAUSAL"
	MultiCausal  Type = "MULTI_CAUSAL"
	Priority     Type = "PRIORITY"
)

func (t Type) Valid() bool {
	switch t {
	case LWW, SET, OrderedSet, SingleCausal, MultiCausal, Priority:
		return true
	default:
		return false
	}
}

// Value is a point in one of the six semilattices. Merge must be total:
// merging two values of the same Type always succeeds and never panics.
type Value interface {
	Type() Type
	// Merge joins this value with other, returning the least upper bound.
	// other must have the same Type, or Merge returns a LATTICE_MISMATCH-
	// flavored error (checked by callers via kverrors, not here, so this
	// package stays free of the kverrors import cycle).
	Merge(other Value) (Value, error)
	// Marshal serializes the value for storage/wire transmission with gob,
	// the pack's closest stand-in for the protobuf the original used.
	Marshal() ([]byte, error)
	// Size estimates the serialized footprint for telemetry's key_size report.
	Size() int
}

var errMismatch = fmt.Errorf("lattice type mismatch")

// ErrMismatch is returned by Merge when the two operands' Types differ.
func ErrMismatch() error { return errMismatch }

func init() {
	gob.Register(LWWValue{})
	gob.Register(SetValue{})
	gob.Register(OrderedSetValue{})
	gob.Register(CausalValue{})
	gob.Register(MultiCausalValue{})
	gob.Register(PriorityValue{})
}

// Unmarshal decodes a gob-encoded Value of the given Type.
func Unmarshal(t Type, data []byte) (Value, error) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	switch t {
	case LWW:
		var v LWWValue
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case SET:
		var v SetValue
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case OrderedSet:
		var v OrderedSetValue
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case SingleCausal:
		var v CausalValue
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case MultiCausal:
		var v MultiCausalValue
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case Priority:
		var v PriorityValue
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown lattice type %q", t)
	}
}

func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// --- LWW ---------------------------------------------------------------

// LWWValue is a last-writer-wins register: ties are broken by comparing
// payload bytes so merge stays deterministic regardless of arrival order.
type LWWValue struct {
	Timestamp uint64
	Payload   []byte
}

func (v LWWValue) Type() Type { return LWW }

func (v LWWValue) Merge(other Value) (Value, error) {
	o, ok := other.(LWWValue)
	if !ok {
		return nil, errMismatch
	}
	if v.Timestamp > o.Timestamp {
		return v, nil
	}
	if o.Timestamp > v.Timestamp {
		return o, nil
	}
	if bytes.Compare(v.Payload, o.Payload) >= 0 {
		return v, nil
	}
	return o, nil
}

func (v LWWValue) Marshal() ([]byte, error) { return marshal(v) }
func (v LWWValue) Size() int                { return 8 + len(v.Payload) }

// --- SET -----------------------------------------------------------------

// SetValue is a grow-only set (union semilattice).
type SetValue struct {
	Elements map[string]struct{}
}

func NewSetValue(elems ...string) SetValue {
	m := make(map[string]struct{}, len(elems))
	for _, e := range elems {
		m[e] = struct{}{}
	}
	return SetValue{Elements: m}
}

func (v SetValue) Type() Type { return SET }

func (v SetValue) Merge(other Value) (Value, error) {
	o, ok := other.(SetValue)
	if !ok {
		return nil, errMismatch
	}
	out := make(map[string]struct{}, len(v.Elements)+len(o.Elements))
	for e := range v.Elements {
		out[e] = struct{}{}
	}
	for e := range o.Elements {
		out[e] = struct{}{}
	}
	return SetValue{Elements: out}, nil
}

func (v SetValue) Marshal() ([]byte, error) { return marshal(v) }
func (v SetValue) Size() int {
	n := 0
	for e := range v.Elements {
		n += len(e)
	}
	return n
}

// --- ORDERED_SET -----------------------------------------------------------

// OrderedSetValue is a set where each element carries a monotonically
// increasing rank; merge takes the union and, for elements present in
// both operands, the higher rank — giving a grow-only set with a
// deterministic, mergeable ordering.
type OrderedSetValue struct {
	Ranks map[string]int64
}

func NewOrderedSetValue() OrderedSetValue {
	return OrderedSetValue{Ranks: map[string]int64{}}
}

func (v OrderedSetValue) Type() Type { return OrderedSet }

func (v OrderedSetValue) Merge(other Value) (Value, error) {
	o, ok := other.(OrderedSetValue)
	if !ok {
		return nil, errMismatch
	}
	out := make(map[string]int64, len(v.Ranks)+len(o.Ranks))
	for e, r := range v.Ranks {
		out[e] = r
	}
	for e, r := range o.Ranks {
		if cur, exists := out[e]; !exists || r > cur {
			out[e] = r
		}
	}
	return OrderedSetValue{Ranks: out}, nil
}

func (v OrderedSetValue) Marshal() ([]byte, error) { return marshal(v) }
func (v OrderedSetValue) Size() int {
	n := 0
	for e := range v.Ranks {
		n += len(e) + 8
	}
	return n
}

// --- SINGLE_CAUSAL ---------------------------------------------------------

// CausalValue is a multi-value register guarded by a vector clock: when
// one operand's clock dominates the other's, the dominant payload wins
// outright; when the clocks are concurrent, both payload sets survive
// merged together until a future write observes (and so causally
// subsumes) both branches.
type CausalValue struct {
	VectorClock map[string]uint64
	Payloads    [][]byte
}

func (v CausalValue) Type() Type { return SingleCausal }

func dominates(a, b map[string]uint64) bool {
	for k, bv := range b {
		if a[k] < bv {
			return false
		}
	}
	return true
}

func joinClocks(a, b map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if out[k] < v {
			out[k] = v
		}
	}
	return out
}

func unionPayloads(a, b [][]byte) [][]byte {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([][]byte, 0, len(a)+len(b))
	for _, p := range append(append([][]byte{}, a...), b...) {
		k := string(p)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

func (v CausalValue) Merge(other Value) (Value, error) {
	o, ok := other.(CausalValue)
	if !ok {
		return nil, errMismatch
	}
	clock := joinClocks(v.VectorClock, o.VectorClock)
	aDominatesB := dominates(v.VectorClock, o.VectorClock)
	bDominatesA := dominates(o.VectorClock, v.VectorClock)
	switch {
	case aDominatesB && !bDominatesA:
		return CausalValue{VectorClock: clock, Payloads: v.Payloads}, nil
	case bDominatesA && !aDominatesB:
		return CausalValue{VectorClock: clock, Payloads: o.Payloads}, nil
	default:
		return CausalValue{VectorClock: clock, Payloads: unionPayloads(v.Payloads, o.Payloads)}, nil
	}
}

func (v CausalValue) Marshal() ([]byte, error) { return marshal(v) }
func (v CausalValue) Size() int {
	n := len(v.VectorClock) * 16
	for _, p := range v.Payloads {
		n += len(p)
	}
	return n
}

// --- MULTI_CAUSAL -----------------------------------------------------------

// MultiCausalValue extends CausalValue with causal dependencies on other
// keys, each tracked as its own vector clock. The dependency map merges
// per-key the same way the primary clock does.
type MultiCausalValue struct {
	VectorClock  map[string]uint64
	Dependencies map[string]map[string]uint64
	Payloads     [][]byte
}

func (v MultiCausalValue) Type() Type { return MultiCausal }

func (v MultiCausalValue) Merge(other Value) (Value, error) {
	o, ok := other.(MultiCausalValue)
	if !ok {
		return nil, errMismatch
	}
	clock := joinClocks(v.VectorClock, o.VectorClock)

	deps := make(map[string]map[string]uint64, len(v.Dependencies)+len(o.Dependencies))
	for k, c := range v.Dependencies {
		deps[k] = joinClocks(c, nil)
	}
	for k, c := range o.Dependencies {
		if cur, ok := deps[k]; ok {
			deps[k] = joinClocks(cur, c)
		} else {
			deps[k] = joinClocks(c, nil)
		}
	}

	aDominatesB := dominates(v.VectorClock, o.VectorClock)
	bDominatesA := dominates(o.VectorClock, v.VectorClock)
	var payloads [][]byte
	switch {
	case aDominatesB && !bDominatesA:
		payloads = v.Payloads
	case bDominatesA && !aDominatesB:
		payloads = o.Payloads
	default:
		payloads = unionPayloads(v.Payloads, o.Payloads)
	}
	return MultiCausalValue{VectorClock: clock, Dependencies: deps, Payloads: payloads}, nil
}

func (v MultiCausalValue) Marshal() ([]byte, error) { return marshal(v) }
func (v MultiCausalValue) Size() int {
	n := len(v.VectorClock) * 16
	for _, c := range v.Dependencies {
		n += len(c) * 16
	}
	for _, p := range v.Payloads {
		n += len(p)
	}
	return n
}

// --- PRIORITY -----------------------------------------------------------

// PriorityValue keeps the payload with the highest priority number seen;
// ties are broken by byte comparison of the payload, same as LWW.
type PriorityValue struct {
	Priority int64
	Payload  []byte
}

func (v PriorityValue) Type() Type { return Priority }

func (v PriorityValue) Merge(other Value) (Value, error) {
	o, ok := other.(PriorityValue)
	if !ok {
		return nil, errMismatch
	}
	if v.Priority > o.Priority {
		return v, nil
	}
	if o.Priority > v.Priority {
		return o, nil
	}
	if bytes.Compare(v.Payload, o.Payload) >= 0 {
		return v, nil
	}
	return o, nil
}

func (v PriorityValue) Marshal() ([]byte, error) { return marshal(v) }
func (v PriorityValue) Size() int                { return 8 + len(v.Payload) }
