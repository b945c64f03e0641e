// Package replication implements §4.C: the per-key replication factor
// record every worker keeps, defaulting to tier-wide values until an
// explicit override arrives over the replication-change channel.
package replication

import (
	"strings"
	"sync"

	"github.com/driftkv/driftkv/internal/addr"
)

// MetadataPrefix marks a key as metadata per §3: metadata keys route
// only through the MEMORY tier regardless of this node's own tier, and
// carry replication records, stats, and access data rather than
// client-written values.
const MetadataPrefix = "__meta/"

// IsMetadataKey reports whether key must be routed through the MEMORY
// tier only.
func IsMetadataKey(key string) bool {
	return strings.HasPrefix(key, MetadataPrefix)
}

const replicationRecordPrefix = MetadataPrefix + "replication/"

// ReplicationRecordKey names the metadata key carrying k's replication
// override, the "GET for the replication record on the MEMORY tier"
// that §4.B's responsible-threads resolution issues when k's
// replication is unknown.
func ReplicationRecordKey(k string) string {
	return replicationRecordPrefix + k
}

// ParseReplicationKey reverses ReplicationRecordKey, reporting the
// original key and true if metaKey names a replication record.
func ParseReplicationKey(metaKey string) (string, bool) {
	if !strings.HasPrefix(metaKey, replicationRecordPrefix) {
		return "", false
	}
	return strings.TrimPrefix(metaKey, replicationRecordPrefix), true
}

// Factor is the replica count for a single tier, split into how many
// nodes in that tier hold a replica (global) and how many threads per
// node (local).
type Factor struct {
	Global int
	Local  int
}

// KeyReplication is the full per-key record: a Factor per tier. Cache
// IPs caching the key are not part of it; they live only in the worker's
// cache-IP tracker (see internal/worker).
type KeyReplication struct {
	Tiers map[addr.Tier]Factor
}

func (r KeyReplication) clone() KeyReplication {
	out := KeyReplication{Tiers: make(map[addr.Tier]Factor, len(r.Tiers))}
	for t, f := range r.Tiers {
		out.Tiers[t] = f
	}
	return out
}

// Defaults holds the tier-wide fallback replication factors read from
// configuration, used whenever a key has no explicit entry in the map.
type Defaults struct {
	mu     sync.RWMutex
	values map[addr.Tier]Factor
}

func NewDefaults(values map[addr.Tier]Factor) *Defaults {
	copied := make(map[addr.Tier]Factor, len(values))
	for t, f := range values {
		copied[t] = f
	}
	return &Defaults{values: copied}
}

func (d *Defaults) Get() KeyReplication {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := KeyReplication{Tiers: make(map[addr.Tier]Factor, len(d.values))}
	for t, f := range d.values {
		out.Tiers[t] = f
	}
	return out
}

func (d *Defaults) For(tier addr.Tier) Factor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.values[tier]
}

// Map is the per-worker table of key -> KeyReplication. It is owned
// exclusively by one worker goroutine (per §5's no-shared-state rule)
// and so needs no internal locking; concurrency safety comes from never
// handing a *Map to more than one goroutine.
type Map struct {
	defaults *Defaults
	entries  map[string]KeyReplication
}

func NewMap(defaults *Defaults) *Map {
	return &Map{defaults: defaults, entries: map[string]KeyReplication{}}
}

// Lookup returns the key's replication record and whether it was found
// explicitly (false means the tier defaults were substituted, per §4.B's
// "missing entries mean use tier default" invariant).
func (m *Map) Lookup(key string) (KeyReplication, bool) {
	if r, ok := m.entries[key]; ok {
		return r, true
	}
	return m.defaults.Get(), false
}

// Set installs or replaces a key's replication record, as delivered by a
// replication response or a replication-change message.
func (m *Map) Set(key string, r KeyReplication) {
	m.entries[key] = r.clone()
}

// Ensure returns the existing record for key, creating one from tier
// defaults (and storing it) if absent. Used when answering a lookup of a
// key's replication record, so the reply always carries concrete factors.
func (m *Map) Ensure(key string) KeyReplication {
	if r, ok := m.entries[key]; ok {
		return r
	}
	r := m.defaults.Get()
	m.entries[key] = r
	return r
}

// Delete removes a key's explicit override, reverting future lookups to
// tier defaults. Note §9: the original never evicts these records even
// after a key is gone from storage, and driftkv matches that intentionally
// documented characteristic rather than silently changing it — see
// DESIGN.md. Delete exists for completeness but is not invoked from the
// GC path for that reason.
func (m *Map) Delete(key string) {
	delete(m.entries, key)
}

// DefaultFor returns tier's fallback replication factor, used when a
// key's record is missing an entry for that specific tier.
func (m *Map) DefaultFor(tier addr.Tier) Factor {
	return m.defaults.For(tier)
}

func (m *Map) Len() int {
	return len(m.entries)
}
