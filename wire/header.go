package wire

import "encoding/binary"

const (
	// Magic is "MKTD" read as a big-endian uint32 literal.
	Magic uint32 = 0x4D4B5444

	// Version is the current on-disk format version. Version 1 (no
	// first/last/flags fields) is rejected on open.
	Version uint16 = 2

	// FlagCleanlyClosed is bit 0 of the header's flags field. Set only by
	// the writer's explicit Close.
	FlagCleanlyClosed uint16 = 0x0001

	// HeaderSize is the fixed on-disk header size in bytes.
	HeaderSize = 64
)

// FileHeader is the 64-byte header preceding a log file's records.
//
//	magic(4) version(2) flags(2) date(4) reserved1(4)
//	count(8) firstSeq(8) lastSeq(8) reserved2(24)
type FileHeader struct {
	Magic    uint32
	Version  uint16
	Flags    uint16
	Date     uint32
	Count    int64
	FirstSeq SeqNum
	LastSeq  SeqNum
}

// NewFileHeader returns a zero-value header with magic/version populated
// and an empty (sentinel) sequence range, matching FileHeader's default
// constructor in the original C++ design.
func NewFileHeader(date uint32) FileHeader {
	return FileHeader{
		Magic:    Magic,
		Version:  Version,
		Date:     date,
		Count:    0,
		FirstSeq: InvalidSeq,
		LastSeq:  InvalidSeq,
	}
}

// Valid reports whether the magic and version fields match.
func (h FileHeader) Valid() bool {
	return h.Magic == Magic && h.Version == Version
}

// Consistent checks the structural invariant: count==0 implies both first
// and last are the sentinel; otherwise both are non-negative and
// last-first+1==count.
func (h FileHeader) Consistent() bool {
	if !h.Valid() {
		return false
	}
	if h.Count < 0 {
		return false
	}
	if h.Count == 0 {
		return h.FirstSeq == InvalidSeq && h.LastSeq == InvalidSeq
	}
	if h.FirstSeq < 0 || h.LastSeq < 0 {
		return false
	}
	if h.FirstSeq > h.LastSeq {
		return false
	}
	return h.LastSeq-h.FirstSeq+1 == h.Count
}

// CleanlyClosed reports whether bit 0 of flags is set.
func (h FileHeader) CleanlyClosed() bool {
	return h.Flags&FlagCleanlyClosed != 0
}

// Encode writes the 64-byte little-endian wire form of the header into dst.
func (h FileHeader) Encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], h.Magic)
	binary.LittleEndian.PutUint16(dst[4:6], h.Version)
	binary.LittleEndian.PutUint16(dst[6:8], h.Flags)
	binary.LittleEndian.PutUint32(dst[8:12], h.Date)
	binary.LittleEndian.PutUint32(dst[12:16], 0) // reserved1
	binary.LittleEndian.PutUint64(dst[16:24], uint64(h.Count))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(h.FirstSeq))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(h.LastSeq))
	for i := 40; i < HeaderSize; i++ {
		dst[i] = 0 // reserved2
	}
}

// DecodeHeader parses a 64-byte little-endian header from src.
func DecodeHeader(src []byte) FileHeader {
	return FileHeader{
		Magic:    binary.LittleEndian.Uint32(src[0:4]),
		Version:  binary.LittleEndian.Uint16(src[4:6]),
		Flags:    binary.LittleEndian.Uint16(src[6:8]),
		Date:     binary.LittleEndian.Uint32(src[8:12]),
		Count:    int64(binary.LittleEndian.Uint64(src[16:24])),
		FirstSeq: int64(binary.LittleEndian.Uint64(src[24:32])),
		LastSeq:  int64(binary.LittleEndian.Uint64(src[32:40])),
	}
}
