package wire

import (
	"reflect"
	"testing"
)

func codecs() map[string]Codec {
	return map[string]Codec{
		"json":   NewJSONCodec(),
		"gob":    NewGobCodec(),
		"binary": NewBinaryCodec(),
	}
}

func TestCodecRoundTrip(t *testing.T) {
	env := Envelope{Type: MsgKeyRequest, Payload: []byte("hello world")}

	for name, c := range codecs() {
		data, err := c.Marshal(env)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		got, err := c.Unmarshal(data)
		if err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if got.Type != env.Type || !reflect.DeepEqual(got.Payload, env.Payload) {
			t.Fatalf("%s: round trip mismatch: got %+v, want %+v", name, got, env)
		}
	}
}

func TestCodecRoundTripEmptyPayload(t *testing.T) {
	env := Envelope{Type: MsgGossip, Payload: nil}

	for name, c := range codecs() {
		data, err := c.Marshal(env)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		got, err := c.Unmarshal(data)
		if err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if got.Type != env.Type {
			t.Fatalf("%s: expected type to survive round trip, got %v", name, got.Type)
		}
	}
}

func TestByNameKnownCodecs(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary"} {
		c, err := ByName(name)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if c.Name() != name {
			t.Fatalf("expected codec named %q, got %q", name, c.Name())
		}
	}
}

func TestByNameUnknownCodec(t *testing.T) {
	if _, err := ByName("protobuf"); err == nil {
		t.Fatal("expected an error for an unsupported codec name")
	}
}

func TestBinaryCodecRejectsShortBuffer(t *testing.T) {
	c := NewBinaryCodec()
	if _, err := c.Unmarshal([]byte{1, 2}); err == nil {
		t.Fatal("expected an error unmarshaling a too-short buffer")
	}
}
