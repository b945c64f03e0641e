package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// Codec marshals/unmarshals an Envelope, mirroring the teacher's
// pluggable IRPCSerializer but scoped to the one struct that ever
// crosses the wire directly.
type Codec interface {
	Marshal(env Envelope) ([]byte, error)
	Unmarshal(data []byte) (Envelope, error)
	Name() string
}

// --- JSON ----------------------------------------------------------------

type jsonCodec struct{}

func NewJSONCodec() Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (jsonCodec) Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// --- Gob -------------------------------------------------------------------

type gobCodec struct{}

func NewGobCodec() Codec { return gobCodec{} }

func (gobCodec) Name() string { return "gob" }

func (gobCodec) Marshal(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env)
	return env, err
}

// --- Binary ----------------------------------------------------------------

// binaryCodec is a hand-rolled flat encoding of Envelope: a one-byte
// type tag, a four-byte big-endian payload length, then the payload
// bytes. It mirrors the shape of the teacher's binaryImpl.go (explicit
// size pre-calculation, manual cursor) without needing a flag byte,
// since Envelope only ever has the two fields.
type binaryCodec struct{}

func NewBinaryCodec() Codec { return binaryCodec{} }

func (binaryCodec) Name() string { return "binary" }

func (binaryCodec) Marshal(env Envelope) ([]byte, error) {
	size := 1 + 4 + len(env.Payload)
	out := make([]byte, size)
	pos := 0

	out[pos] = byte(env.Type)
	pos++

	binary.BigEndian.PutUint32(out[pos:], uint32(len(env.Payload)))
	pos += 4

	copy(out[pos:], env.Payload)

	return out, nil
}

func (binaryCodec) Unmarshal(data []byte) (Envelope, error) {
	if len(data) < 5 {
		return Envelope{}, fmt.Errorf("binary codec: short envelope (%d bytes)", len(data))
	}
	pos := 0

	msgType := MsgType(data[pos])
	pos++

	payloadLen := binary.BigEndian.Uint32(data[pos:])
	pos += 4

	if pos+int(payloadLen) > len(data) {
		return Envelope{}, fmt.Errorf("binary codec: payload length %d exceeds buffer", payloadLen)
	}

	payload := make([]byte, payloadLen)
	copy(payload, data[pos:pos+int(payloadLen)])

	return Envelope{Type: msgType, Payload: payload}, nil
}

// ByName picks a Codec the same way the teacher's cmd/util.GetSerializer
// switches on a flag string.
func ByName(name string) (Codec, error) {
	switch name {
	case "json":
		return NewJSONCodec(), nil
	case "gob":
		return NewGobCodec(), nil
	case "binary":
		return NewBinaryCodec(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q (want json, gob or binary)", name)
	}
}
