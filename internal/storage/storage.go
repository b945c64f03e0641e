// Package storage implements §4.D: one Serializer per lattice type, each
// owning the on-disk or in-memory representation for every key declared
// with that type. A worker opens one Serializer instance for every Type
// at construction, mirroring the original's serializers[LatticeType]
// map.
package storage

import "github.com/driftkv/driftkv/internal/lattice"

// KeyProperty is the bookkeeping record a worker keeps per key,
// independent of which Serializer backs it: its declared lattice type
// and its last-known serialized size (fed into telemetry's key_size
// report without re-touching the Serializer on every tick).
type KeyProperty struct {
	Type lattice.Type
	Size int
}

// Serializer is the storage backend for every key of one lattice type.
// A single Serializer is never shared between worker goroutines.
type Serializer interface {
	// Get returns the merged value currently stored for key.
	Get(key string) (lattice.Value, bool, error)
	// Put merges incoming into whatever is already stored for key (or
	// installs it directly if key is new) and returns the resulting
	// serialized size, for KeyProperty bookkeeping.
	Put(key string, incoming lattice.Value) (newSize int, merged lattice.Value, err error)
	// Remove deletes a key outright, used once a redistributed key has
	// finished shipping to its new owners.
	Remove(key string) error
	// Keys returns every key currently stored.
	Keys() []string
	// Close releases any underlying resources (file handles for disk
	// serializers); a no-op for memory serializers.
	Close() error
}
