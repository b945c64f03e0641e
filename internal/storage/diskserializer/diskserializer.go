// Package diskserializer backs the DISK tier's serializers with a real
// LSM-backed engine (cockroachdb/pebble) instead of an in-memory map,
// namespaced per worker thread so that every tid on a node owns its own
// on-disk store under <data-dir>/<tid>/<lattice-type>/.
package diskserializer

import (
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"github.com/driftkv/driftkv/internal/lattice"
	"github.com/driftkv/driftkv/internal/storage"
)

type diskSerializer struct {
	kind lattice.Type
	db   *pebble.DB
}

// Open creates (or reopens) a pebble-backed Serializer rooted at
// dataDir/tid/kind. Each lattice type gets an independent pebble
// instance so that one type's compaction activity never blocks another.
func Open(dataDir string, tid uint32, kind lattice.Type) (storage.Serializer, error) {
	dir := filepath.Join(dataDir, itoa(tid), string(kind))
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &diskSerializer{kind: kind, db: db}, nil
}

func itoa(tid uint32) string {
	const digits = "0123456789"
	if tid == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for tid > 0 {
		i--
		buf[i] = digits[tid%10]
		tid /= 10
	}
	return string(buf[i:])
}

func (d *diskSerializer) Get(key string) (lattice.Value, bool, error) {
	raw, closer, err := d.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	cp := make([]byte, len(raw))
	copy(cp, raw)
	v, err := lattice.Unmarshal(d.kind, cp)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (d *diskSerializer) Put(key string, incoming lattice.Value) (int, lattice.Value, error) {
	existing, found, err := d.Get(key)
	if err != nil {
		return 0, nil, err
	}
	merged := incoming
	if found {
		merged, err = existing.Merge(incoming)
		if err != nil {
			return 0, nil, err
		}
	}
	encoded, err := merged.Marshal()
	if err != nil {
		return 0, nil, err
	}
	if err := d.db.Set([]byte(key), encoded, pebble.NoSync); err != nil {
		return 0, nil, err
	}
	return merged.Size(), merged, nil
}

func (d *diskSerializer) Remove(key string) error {
	return d.db.Delete([]byte(key), pebble.NoSync)
}

func (d *diskSerializer) Keys() []string {
	iter := d.db.NewIter(nil)
	defer iter.Close()
	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, string(iter.Key()))
	}
	return out
}

func (d *diskSerializer) Close() error {
	return d.db.Close()
}
