package transport

import (
	"encoding/binary"
	"io"
	"net"
)

// writeFrame writes a length-delimited frame: a 4-byte big-endian length
// followed by the payload. Simpler than the teacher's 20-byte
// shardID+requestID+length header because PUSH/PULL here is strictly
// fire-and-forget — there is no response to correlate back to a request.
func writeFrame(conn net.Conn, data []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one length-delimited frame using buf as scratch space,
// growing it if the incoming frame is larger.
func readFrame(conn net.Conn, buf []byte) ([]byte, error) {
	if buf == nil || len(buf) < 4 {
		buf = make([]byte, 4)
	}

	if _, err := io.ReadFull(conn, buf[:4]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(buf[:4])
	if length == 0 {
		return []byte{}, nil
	}

	if len(buf) < int(length) {
		buf = make([]byte, length)
	}
	if _, err := io.ReadFull(conn, buf[:length]); err != nil {
		return nil, err
	}

	out := make([]byte, length)
	copy(out, buf[:length])
	return out, nil
}
