package ring

import (
	"sync/atomic"

	"github.com/mktdata/replayfabric/wire"
)

// Cursor is a per-consumer monotonic read-position sequence number,
// initialised to 0. Each consumer (Recorder, Client) owns exactly one.
type Cursor struct {
	seq atomic.Int64
}

// Read returns the current read position.
func (c *Cursor) Read() wire.SeqNum { return c.seq.Load() }

// Advance moves the cursor forward by one and returns the prior value.
func (c *Cursor) Advance() wire.SeqNum { return c.seq.Add(1) - 1 }

// Set repositions the cursor, e.g. on recovery handoff or a forced skip.
func (c *Cursor) Set(seq wire.SeqNum) { c.seq.Store(seq) }
