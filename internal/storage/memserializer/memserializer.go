// Package memserializer backs the MEMORY tier's serializers: one flat
// map per lattice type, no persistence, no internal locking since the
// owning worker goroutine is its only caller.
package memserializer

import (
	"github.com/driftkv/driftkv/internal/lattice"
	"github.com/driftkv/driftkv/internal/storage"
)

type memSerializer struct {
	kind lattice.Type
	data map[string]lattice.Value
}

// New returns a Serializer for lattice type kind, backed by an in-memory
// map. Used by every MEMORY-tier worker thread.
func New(kind lattice.Type) storage.Serializer {
	return &memSerializer{kind: kind, data: map[string]lattice.Value{}}
}

func (m *memSerializer) Get(key string) (lattice.Value, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memSerializer) Put(key string, incoming lattice.Value) (int, lattice.Value, error) {
	existing, ok := m.data[key]
	if !ok {
		m.data[key] = incoming
		return incoming.Size(), incoming, nil
	}
	merged, err := existing.Merge(incoming)
	if err != nil {
		return 0, nil, err
	}
	m.data[key] = merged
	return merged.Size(), merged, nil
}

func (m *memSerializer) Remove(key string) error {
	delete(m.data, key)
	return nil
}

func (m *memSerializer) Keys() []string {
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

func (m *memSerializer) Close() error { return nil }
