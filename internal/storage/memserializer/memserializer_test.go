package memserializer

import (
	"testing"

	"github.com/driftkv/driftkv/internal/lattice"
)

func TestPutThenGet(t *testing.T) {
	s := New(lattice.SET)
	_, _, err := s.Put("k", lattice.NewSetValue("a"))
	if err != nil {
		t.Fatal(err)
	}

	v, ok, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected key to be found")
	}
	if _, present := v.(lattice.SetValue).Elements["a"]; !present {
		t.Fatalf("expected element 'a' in stored set, got %v", v)
	}
}

func TestPutMergesRepeatedWrites(t *testing.T) {
	s := New(lattice.SET)
	s.Put("k", lattice.NewSetValue("a"))
	s.Put("k", lattice.NewSetValue("b"))

	v, _, _ := s.Get("k")
	set := v.(lattice.SetValue)
	if len(set.Elements) != 2 {
		t.Fatalf("expected merged set of 2 elements, got %v", set.Elements)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := New(lattice.LWW)
	_, ok, err := s.Get("missing")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected missing key to report not found")
	}
}

func TestRemove(t *testing.T) {
	s := New(lattice.LWW)
	s.Put("k", lattice.LWWValue{Timestamp: 1, Payload: []byte("v")})
	if err := s.Remove("k"); err != nil {
		t.Fatal(err)
	}
	_, ok, _ := s.Get("k")
	if ok {
		t.Fatal("expected key to be gone after Remove")
	}
}

func TestKeysListsEverythingStored(t *testing.T) {
	s := New(lattice.LWW)
	s.Put("a", lattice.LWWValue{Timestamp: 1})
	s.Put("b", lattice.LWWValue{Timestamp: 1})

	keys := s.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}
