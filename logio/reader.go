package logio

import (
	"fmt"
	"io"
	"os"

	"github.com/mktdata/replayfabric/metrics"
	"github.com/mktdata/replayfabric/wire"
)

// Reader is a sequential and seekable replay source over a log file,
// validating monotonic sequence continuity and surfacing integrity flags.
// One Reader is created per recovery cycle and discarded when the cycle
// ends — it never outlives a single replay.
type Reader struct {
	file   *os.File
	header wire.FileHeader

	// structurallyConsistent is false when the header failed its
	// consistency check on open; in that case Count is still trusted but
	// FirstSeq/LastSeq are reported as the sentinel and the file is
	// treated as not cleanly closed, regardless of the on-disk flag.
	structurallyConsistent bool
	cleanlyClosed          bool

	current   int64 // next record index to read, 0-based position in file
	lastRead  wire.SeqNum
	catchUpCB func(replaySeq, liveSeq wire.SeqNum)

	metrics metrics.ReplayMetrics
}

// OpenReader opens path for replay. It rejects files whose magic or
// version don't match. A structurally inconsistent header (negative
// count, or a non-empty range that doesn't satisfy last-first+1==count)
// falls back to trusting Count alone, clears first/last to the sentinel,
// and marks the file as not cleanly closed.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("logio: open reader %s: %w", path, err)
	}

	var hdrBuf [wire.HeaderSize]byte
	if _, err := io.ReadFull(f, hdrBuf[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("logio: read header %s: %w", path, err)
	}

	h := wire.DecodeHeader(hdrBuf[:])
	if !h.Valid() {
		f.Close()
		return nil, fmt.Errorf("logio: %s: bad magic/version (got magic=%#x version=%d)", path, h.Magic, h.Version)
	}

	r := &Reader{
		file:     f,
		header:   h,
		lastRead: wire.InvalidSeq,
	}

	if h.Consistent() {
		r.structurallyConsistent = true
		r.cleanlyClosed = h.CleanlyClosed()
	} else {
		r.structurallyConsistent = false
		r.header.FirstSeq = wire.InvalidSeq
		r.header.LastSeq = wire.InvalidSeq
		r.cleanlyClosed = false
	}

	return r, nil
}

// Close releases the underlying file descriptor.
func (r *Reader) Close() error { return r.file.Close() }

// Count returns the header-recorded message count — the authoritative
// bound; any trailing bytes beyond it are ignored.
func (r *Reader) Count() int64 { return r.header.Count }

// FirstSeq and LastSeq report the header's recorded sequence range, or
// wire.InvalidSeq if the file is empty or the header was inconsistent.
func (r *Reader) FirstSeq() wire.SeqNum { return r.header.FirstSeq }
func (r *Reader) LastSeq() wire.SeqNum  { return r.header.LastSeq }

// CleanlyClosed reports whether the writer's Close ran before this file
// was read — an advisory "may be truncated" signal, not an error.
func (r *Reader) CleanlyClosed() bool { return r.cleanlyClosed }

// ViolationCount returns the number of sequence-continuity violations
// observed so far by Next.
func (r *Reader) ViolationCount() int64 { return r.metrics.ViolationCount.Load() }

// Metrics exposes the reader's observability counters.
func (r *Reader) Metrics() *metrics.ReplayMetrics { return &r.metrics }

// Next emits the next record in file order. After each emission it
// compares the sequence to the previously emitted one; a non-strictly-
// increasing sequence increments the violation counter but the record is
// still returned — continuity enforcement is the caller's call. Returns
// ok=false once Count records have been consumed.
func (r *Reader) Next() (wire.Message, bool) {
	if r.current >= r.header.Count {
		return wire.Message{}, false
	}

	var buf [wire.MessageSize]byte
	if _, err := io.ReadFull(r.file, buf[:]); err != nil {
		return wire.Message{}, false
	}
	r.current++

	m := wire.Decode(buf[:])

	if r.lastRead != wire.InvalidSeq && m.Seq <= r.lastRead {
		r.metrics.ViolationCount.Add(1)
	}
	r.lastRead = m.Seq

	return m, true
}

// Seek repositions the reader at the given sequence number, computed as
// offset 64 + seq*24. A seek invalidates the continuity-check state — no
// continuity claim is made across a seek boundary.
func (r *Reader) Seek(seq wire.SeqNum) error {
	if seq < 0 || seq >= r.header.Count {
		return fmt.Errorf("logio: seek seq %d out of range [0, %d)", seq, r.header.Count)
	}
	offset := int64(wire.HeaderSize) + seq*wire.MessageSize
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("logio: seek: %w", err)
	}
	r.current = seq
	r.lastRead = wire.InvalidSeq
	return nil
}

// SetCatchUpCallback registers a callback invoked the first time
// ShouldCatchUp transitions to eligible.
func (r *Reader) SetCatchUpCallback(cb func(replaySeq, liveSeq wire.SeqNum)) {
	r.catchUpCB = cb
}

// ShouldCatchUp reports catch-up eligibility: live - current <= threshold.
// Per Open Question 3, the comparison is deliberately signed: if live < current
// (clock skew during replay) the subtraction goes negative and the
// predicate is satisfied, matching the original implementation exactly.
func (r *Reader) ShouldCatchUp(live wire.SeqNum, threshold int64) bool {
	if r.current < 0 {
		return false
	}
	should := live-r.current <= threshold
	if should && r.catchUpCB != nil {
		cb := r.catchUpCB
		r.catchUpCB = nil
		cb(r.current, live)
	}
	return should
}

// CurrentSeq returns the file-order position the next Next() call will
// read, as a 0-based record index. It equals the record's sequence number
// only for well-formed files whose records ascend contiguously from
// sequence 0.
func (r *Reader) CurrentSeq() wire.SeqNum { return r.current }
