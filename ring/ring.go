// Package ring implements the lock-free single-producer/multi-consumer
// broadcast channel at the core of the replay fabric: a fixed power-of-two
// circular slot array indexed by sequence number, with non-blocking publish
// and a three-valued seqlock read that distinguishes "not yet published"
// from "overwritten".
package ring

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/mktdata/replayfabric/wire"
)

// cacheLineSize matches the teacher's MmapCoordinationState reasoning:
// keep hot atomics on their own cache line to avoid false sharing.
const cacheLineSize = 64

// ReadStatus is the three-valued result of ReadEx.
type ReadStatus int

const (
	// StatusOK means the message at the expected sequence was read intact.
	StatusOK ReadStatus = iota
	// StatusNotReady means the producer hasn't published that slot yet.
	StatusNotReady
	// StatusOverwritten means the producer has lapped the reader; the
	// message at that sequence is gone for good.
	StatusOverwritten
)

func (s ReadStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotReady:
		return "NOT_READY"
	case StatusOverwritten:
		return "OVERWRITTEN"
	default:
		return "UNKNOWN"
	}
}

// ringSlot is one cache-line-sized cell. published holds the sequence
// number currently occupying the slot (wire.InvalidSeq until first
// publish); msg is the payload. The slot is responsible for every sequence
// s where s mod capacity == its index.
type ringSlot struct {
	published atomic.Int64
	msg       wire.Message
	_         [cacheLineSize - 8 - 24]byte // pad to one cache line
}

func init() {
	if unsafe.Sizeof(ringSlot{}) != cacheLineSize {
		panic(fmt.Sprintf("ringSlot size is %d, expected %d", unsafe.Sizeof(ringSlot{}), cacheLineSize))
	}
}

// Ring is the fixed-capacity SPMC channel. Capacity must be a power of two.
type Ring struct {
	mask  uint64
	slots []ringSlot

	// writeCursor and overwriteCount each occupy their own cache line so
	// that producer writes don't contend with consumers polling slots.
	writeCursor    paddedCounter
	overwriteCount paddedCounter
}

type paddedCounter struct {
	v atomic.Int64
	_ [cacheLineSize - 8]byte
}

// New creates a ring of the given capacity, which must be a positive power
// of two.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ring: capacity must be a positive power of 2, got %d", capacity)
	}
	r := &Ring{
		mask:  uint64(capacity - 1),
		slots: make([]ringSlot, capacity),
	}
	for i := range r.slots {
		r.slots[i].published.Store(wire.InvalidSeq)
	}
	return r, nil
}

// Capacity returns the ring's fixed slot count.
func (r *Ring) Capacity() int { return int(r.mask) + 1 }

// Publish writes one message, assigning it the next sequence number. It
// never blocks and never fails: if the target slot is occupied, the
// occupant is simply overwritten and the overwrite counter is bumped. This
// is the deliberate trade a market-data feed makes — buffer-full is
// expressed as overwrite, not backpressure.
func (r *Ring) Publish(timestampNs int64, payload float64) wire.SeqNum {
	seq := r.writeCursor.v.Add(1) - 1
	r.publishAt(seq, wire.Message{Timestamp: timestampNs, Payload: payload})
	return seq
}

// PublishBatch reserves len(msgs) consecutive sequence numbers atomically
// and publishes each message to its slot in order, preserving the same
// per-slot publish guarantees as Publish. It returns the first sequence
// number assigned, or wire.InvalidSeq if msgs is empty.
func (r *Ring) PublishBatch(msgs []wire.Message) wire.SeqNum {
	if len(msgs) == 0 {
		return wire.InvalidSeq
	}
	n := int64(len(msgs))
	first := r.writeCursor.v.Add(n) - n
	for i, m := range msgs {
		r.publishAt(first+int64(i), m)
	}
	return first
}

func (r *Ring) publishAt(seq wire.SeqNum, m wire.Message) {
	slot := &r.slots[uint64(seq)&r.mask]

	if slot.published.Load() != wire.InvalidSeq {
		// A slow consumer is about to lose this slot's prior occupant.
		r.overwriteCount.v.Add(1)
	}

	m.Seq = seq
	slot.msg = m
	slot.published.Store(seq) // release: publish after the payload write
}

// ReadEx reads the slot for expected, distinguishing OK / NOT_READY /
// OVERWRITTEN. A negative expected sequence is always NOT_READY.
//
// The OK path is a seqlock double-check: after copying the message, the
// published field is re-read. If it no longer equals expected, the
// producer wrote at least once more into this slot while the copy was in
// flight and the copy is torn — report OVERWRITTEN rather than return
// inconsistent data.
func (r *Ring) ReadEx(expected wire.SeqNum) (wire.Message, ReadStatus) {
	if expected < 0 {
		return wire.Message{}, StatusNotReady
	}

	slot := &r.slots[uint64(expected)&r.mask]
	published := slot.published.Load()

	switch {
	case published == expected:
		local := slot.msg
		recheck := slot.published.Load()
		if recheck == expected {
			return local, StatusOK
		}
		return wire.Message{}, StatusOverwritten
	case published > expected:
		return wire.Message{}, StatusOverwritten
	default:
		return wire.Message{}, StatusNotReady
	}
}

// LatestSeq returns the most recently published sequence number, or
// wire.InvalidSeq if nothing has been published yet.
func (r *Ring) LatestSeq() wire.SeqNum {
	return r.writeCursor.v.Load() - 1
}

// NextWriteSeq returns the sequence number the next Publish will assign.
func (r *Ring) NextWriteSeq() wire.SeqNum {
	return r.writeCursor.v.Load()
}

// OverwriteCount returns the total number of slot overwrites since
// creation — a system-level indicator of buffer pressure.
func (r *Ring) OverwriteCount() int64 {
	return r.overwriteCount.v.Load()
}
