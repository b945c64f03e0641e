package replication

import (
	"testing"

	"github.com/driftkv/driftkv/internal/addr"
)

func TestIsMetadataKey(t *testing.T) {
	if !IsMetadataKey(MetadataPrefix + "stats") {
		t.Fatal("expected metadata-prefixed key to be recognized")
	}
	if IsMetadataKey("ordinary-key") {
		t.Fatal("expected ordinary key not to be recognized as metadata")
	}
}

func TestReplicationRecordKeyRoundTrip(t *testing.T) {
	orig := "user/42"
	metaKey := ReplicationRecordKey(orig)
	if !IsMetadataKey(metaKey) {
		t.Fatalf("expected replication record key %q to be a metadata key", metaKey)
	}
	got, ok := ParseReplicationKey(metaKey)
	if !ok {
		t.Fatal("expected ParseReplicationKey to recognize its own output")
	}
	if got != orig {
		t.Fatalf("expected %q, got %q", orig, got)
	}
}

func TestParseReplicationKeyRejectsOther(t *testing.T) {
	if _, ok := ParseReplicationKey(MetadataPrefix + "stats/node1"); ok {
		t.Fatal("expected a non-replication metadata key to be rejected")
	}
}

func TestMapLookupFallsBackToDefaults(t *testing.T) {
	defaults := NewDefaults(map[addr.Tier]Factor{
		addr.TierMemory: {Global: 2, Local: 1},
	})
	m := NewMap(defaults)

	got, explicit := m.Lookup("unknown-key")
	if explicit {
		t.Fatal("expected lookup of an unset key to report not explicit")
	}
	if got.Tiers[addr.TierMemory].Global != 2 {
		t.Fatalf("expected default global factor 2, got %d", got.Tiers[addr.TierMemory].Global)
	}
}

func TestMapSetOverridesDefaults(t *testing.T) {
	defaults := NewDefaults(map[addr.Tier]Factor{addr.TierMemory: {Global: 2, Local: 1}})
	m := NewMap(defaults)

	m.Set("k", KeyReplication{Tiers: map[addr.Tier]Factor{addr.TierMemory: {Global: 5, Local: 3}}})

	got, explicit := m.Lookup("k")
	if !explicit {
		t.Fatal("expected lookup of an explicitly set key to report explicit")
	}
	if got.Tiers[addr.TierMemory].Global != 5 {
		t.Fatalf("expected overridden global factor 5, got %d", got.Tiers[addr.TierMemory].Global)
	}
}

func TestMapSetClonesSoCallerMutationDoesNotLeak(t *testing.T) {
	defaults := NewDefaults(nil)
	m := NewMap(defaults)

	rec := KeyReplication{Tiers: map[addr.Tier]Factor{addr.TierMemory: {Global: 1, Local: 1}}}
	m.Set("k", rec)
	rec.Tiers[addr.TierMemory] = Factor{Global: 99, Local: 99}

	got, _ := m.Lookup("k")
	if got.Tiers[addr.TierMemory].Global != 1 {
		t.Fatalf("expected stored record to be unaffected by later caller mutation, got %d", got.Tiers[addr.TierMemory].Global)
	}
}

func TestMapEnsureCreatesFromDefaults(t *testing.T) {
	defaults := NewDefaults(map[addr.Tier]Factor{addr.TierDisk: {Global: 3, Local: 2}})
	m := NewMap(defaults)

	r := m.Ensure("new-key")
	if r.Tiers[addr.TierDisk].Global != 3 {
		t.Fatalf("expected ensured record to carry tier defaults, got %d", r.Tiers[addr.TierDisk].Global)
	}
	if m.Len() != 1 {
		t.Fatalf("expected Ensure to store the record, Len()=%d", m.Len())
	}
}

func TestMapDeleteRevertsToDefaults(t *testing.T) {
	defaults := NewDefaults(map[addr.Tier]Factor{addr.TierMemory: {Global: 2, Local: 1}})
	m := NewMap(defaults)
	m.Set("k", KeyReplication{Tiers: map[addr.Tier]Factor{addr.TierMemory: {Global: 9, Local: 9}}})

	m.Delete("k")

	got, explicit := m.Lookup("k")
	if explicit {
		t.Fatal("expected deleted key to fall back to defaults")
	}
	if got.Tiers[addr.TierMemory].Global != 2 {
		t.Fatalf("expected default global factor 2 after delete, got %d", got.Tiers[addr.TierMemory].Global)
	}
}
