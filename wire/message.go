// Package wire defines the on-disk and in-memory wire format shared by the
// ring buffer, the log writer/reader, and every consumer: a fixed 24-byte
// message and the 64-byte log file header that precedes a run of them.
package wire

import (
	"encoding/binary"
	"math"
)

// SeqNum is the monotonic sequence number assigned by the Ring on publish.
// It doubles as the addressing scheme for both in-memory slots and on-disk
// record offsets.
type SeqNum = int64

// InvalidSeq is the sentinel meaning "absent" or "not yet assigned".
const InvalidSeq SeqNum = -1

// MessageSize is the wire size of a Message: three 8-byte fields.
const MessageSize = 24

// Message is the unit of the stream: a sequence number, a nanosecond
// timestamp, and an 8-byte double payload. The producer supplies Timestamp
// and Payload; the Ring assigns Seq at publish time, overwriting whatever
// was passed in.
type Message struct {
	Seq       SeqNum
	Timestamp int64
	Payload   float64
}

// Valid reports whether the message carries a real sequence number.
func (m Message) Valid() bool { return m.Seq != InvalidSeq }

// Encode writes the message's 24-byte little-endian wire form into dst.
// dst must be at least MessageSize bytes.
func (m Message) Encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(m.Seq))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(m.Timestamp))
	binary.LittleEndian.PutUint64(dst[16:24], math.Float64bits(m.Payload))
}

// Decode parses a 24-byte little-endian wire record from src.
func Decode(src []byte) Message {
	return Message{
		Seq:       int64(binary.LittleEndian.Uint64(src[0:8])),
		Timestamp: int64(binary.LittleEndian.Uint64(src[8:16])),
		Payload:   math.Float64frombits(binary.LittleEndian.Uint64(src[16:24])),
	}
}
