// Package client implements the Client: a Ring consumer that maintains a
// Kahan-compensated accumulator, detects or accepts injected faults, and on
// fault recovers by replaying the log and handing back off to the live
// Ring at a computed, gap-free, duplicate-free boundary.
package client

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/mktdata/replayfabric/internal/telemetry"
	"github.com/mktdata/replayfabric/logio"
	"github.com/mktdata/replayfabric/metrics"
	"github.com/mktdata/replayfabric/ring"
	"github.com/mktdata/replayfabric/wire"
)

// temporaryHangDuration is how long a FaultTemporaryHang pauses the
// consumer loop, simulating a stalled client without tripping recovery.
const temporaryHangDuration = 50 * time.Millisecond

// DefaultCatchUpThreshold is the maximum gap L-r at which a replaying
// Client switches back to the live Ring.
const DefaultCatchUpThreshold int64 = 100

// FaultCallback is invoked synchronously at the start of a CLIENT_CRASH
// fault, before recovery begins.
type FaultCallback func()

// Client consumes the Ring, maintains a running Kahan sum, and can be
// faulted and recovered.
//
// INV-C1: processMessage accepts only strictly-increasing sequence
// numbers; duplicates/out-of-order are counted and dropped.
// INV-C2: the replay-to-live handoff guarantees
// first_live_seq == last_replay_seq+1, provided T << ring capacity.
// INV-C3: after a fault-free suffix following recovery, the accumulator
// equals what an uninterrupted client would have computed.
type Client struct {
	buffer   *ring.Ring
	diskFile string
	log      telemetry.Logger

	cursor ring.Cursor

	sum    float64
	kahanC float64

	lastSeq   wire.SeqNum
	processed int64

	state      State
	inRecovery bool
	stateMu    sync.Mutex // guards state, inRecovery, sum, kahanC, lastSeq, processed

	catchUpThreshold   int64
	autoFaultDetection bool

	faultCallback FaultCallback
	faultMu       sync.Mutex // serialises fault entry (Open Question 1)

	switchMu sync.Mutex // guards the replay->live cursor handoff

	metrics metrics.ClientMetrics

	wg      sync.WaitGroup
	stopped chan struct{}
}

// New constructs a Client that consumes buffer and, on recovery, replays
// diskFile.
func New(buffer *ring.Ring, diskFile string, log telemetry.Logger) *Client {
	if log == nil {
		log = telemetry.NoOp{}
	}
	return &Client{
		buffer:             buffer,
		diskFile:           diskFile,
		log:                log,
		lastSeq:            wire.InvalidSeq,
		state:              StateNormal,
		catchUpThreshold:   DefaultCatchUpThreshold,
		autoFaultDetection: true,
		stopped:            make(chan struct{}),
	}
}

// SetCatchUpThreshold overrides DefaultCatchUpThreshold. Must be called
// before Start.
func (c *Client) SetCatchUpThreshold(t int64) { c.catchUpThreshold = t }

// SetAutoFaultDetection enables or disables automatic CLIENT_CRASH
// recovery on an OVERWRITTEN read (default: enabled). When disabled, an
// OVERWRITTEN read just skips the cursor to the current live head.
func (c *Client) SetAutoFaultDetection(enabled bool) {
	c.stateMu.Lock()
	c.autoFaultDetection = enabled
	c.stateMu.Unlock()
}

// SetFaultCallback registers a callback invoked at the start of a
// CLIENT_CRASH fault, before recovery begins.
func (c *Client) SetFaultCallback(cb FaultCallback) { c.faultCallback = cb }

// Metrics exposes the client's observability counters.
func (c *Client) Metrics() *metrics.ClientMetrics { return &c.metrics }

// Sum returns the current Kahan-compensated accumulator value.
func (c *Client) Sum() float64 {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.sum
}

// ProcessedCount returns the number of messages accepted into the
// accumulator so far.
func (c *Client) ProcessedCount() int64 {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.processed
}

// LastSeq returns the last sequence number accepted.
func (c *Client) LastSeq() wire.SeqNum {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.lastSeq
}

// State returns the current state-machine position.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// InRecovery reports whether a recovery cycle is in flight.
func (c *Client) InRecovery() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.inRecovery
}

// Start launches the client's worker goroutine. affinityPin, if non-nil,
// is invoked as the worker's first action.
func (c *Client) Start(ctx context.Context, affinityPin func() error) {
	c.wg.Add(1)
	go c.run(ctx, affinityPin)
}

// Stop signals the worker to exit and waits for it to join. Any in-flight
// recovery is aborted at its next log read once stop is observed.
func (c *Client) Stop() {
	close(c.stopped)
	c.wg.Wait()
}

// TriggerFault injects a fault of the given kind, as if observed
// externally (e.g. by a test harness).
func (c *Client) TriggerFault(kind FaultKind) {
	c.onFault(kind)
}

func (c *Client) run(ctx context.Context, affinityPin func() error) {
	defer c.wg.Done()

	if affinityPin != nil {
		if err := affinityPin(); err != nil {
			c.log.Warn("client: cpu pin failed", "err", err)
		}
	}

	c.cursor.Set(0)

	for {
		select {
		case <-c.stopped:
			return
		case <-ctx.Done():
			return
		default:
		}

		if c.InRecovery() {
			runtime.Gosched()
			continue
		}

		seq := c.cursor.Read()
		msg, status := c.buffer.ReadEx(seq)

		switch status {
		case ring.StatusOK:
			c.processMessage(msg)
			c.cursor.Advance()

		case ring.StatusOverwritten:
			c.metrics.OverwriteCount.Add(1)
			c.metrics.SeqGapCount.Add(1)
			c.log.Warn("client: ring overwrite detected, considering recovery", "seq", seq)

			c.stateMu.Lock()
			auto := c.autoFaultDetection
			already := c.inRecovery
			c.stateMu.Unlock()

			if auto && !already {
				c.metrics.AutoFaultCount.Add(1)
				c.onFault(FaultClientCrash)
			} else {
				latest := c.buffer.LatestSeq()
				if latest >= 0 {
					c.cursor.Set(latest + 1)
				}
			}

		case ring.StatusNotReady:
			runtime.Gosched()
		}
	}
}

// processMessage applies the processing rule: a sequence must be strictly
// greater than the last accepted one or it is counted as a duplicate and
// dropped. A forward jump of more than one is counted as a gap but
// accepted.
func (c *Client) processMessage(m wire.Message) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.lastSeq != wire.InvalidSeq && m.Seq <= c.lastSeq {
		c.log.Warn("client: sequence monotonicity violation", "prev", c.lastSeq, "got", m.Seq)
		c.metrics.SeqGapCount.Add(1)
		return
	}

	if c.lastSeq != wire.InvalidSeq && m.Seq != c.lastSeq+1 {
		gap := m.Seq - c.lastSeq - 1
		c.metrics.SeqGapCount.Add(gap)
		c.log.Warn("client: sequence gap", "expected", c.lastSeq+1, "got", m.Seq, "gap", gap)
	}

	y := m.Payload - c.kahanC
	t := c.sum + y
	c.kahanC = (t - c.sum) - y
	c.sum = t

	c.lastSeq = m.Seq
	c.processed++
}

// onFault handles an injected or detected fault. Fault entry is
// serialised by faultMu so a manually triggered CLIENT_CRASH racing an
// auto-detected OVERWRITTEN collapses into exactly one recovery cycle
// (Open Question 1), rather than two concurrent ones.
func (c *Client) onFault(kind FaultKind) {
	switch kind {
	case FaultClientCrash:
		c.faultMu.Lock()
		defer c.faultMu.Unlock()

		c.stateMu.Lock()
		if c.inRecovery {
			c.stateMu.Unlock()
			return
		}
		c.stateMu.Unlock()

		c.log.Warn("client: CLIENT_CRASH fault, starting recovery")

		c.stateMu.Lock()
		c.state = StateFaulted
		c.sum = 0
		c.kahanC = 0
		c.lastSeq = wire.InvalidSeq
		c.processed = 0
		c.stateMu.Unlock()

		if c.faultCallback != nil {
			c.faultCallback()
		}

		c.startRecovery()

	case FaultMessageLoss:
		c.log.Warn("client: MESSAGE_LOSS fault, skipping messages")
		c.cursor.Set(c.cursor.Read() + messageLossSkip)

	case FaultTemporaryHang:
		c.log.Warn("client: TEMPORARY_HANG fault")
		time.Sleep(temporaryHangDuration)
	}
}

// startRecovery implements the five-step recovery protocol: replay the
// log from the beginning, applying the normal processing rule, until the
// catch-up predicate fires against the live Ring, then hand the cursor
// off at replay_seq+1. If stop is observed mid-replay, recovery aborts in
// place. If the log is exhausted before catch-up, the cursor resumes at
// last_replay_seq+1 and the main loop's own OVERWRITTEN detection is the
// safety net if that position has already been lapped.
func (c *Client) startRecovery() {
	c.stateMu.Lock()
	c.inRecovery = true
	c.state = StateReplaying
	c.metrics.RecoveryCount.Add(1)
	c.stateMu.Unlock()

	c.log.Info("client: recovery started", "file", c.diskFile)

	reader, err := logio.OpenReader(c.diskFile)
	if err != nil {
		c.log.Error("client: failed to open replay file, aborting recovery", "err", err)
		c.stateMu.Lock()
		c.inRecovery = false
		c.state = StateNormal
		c.stateMu.Unlock()
		return
	}
	defer reader.Close()

	if !reader.CleanlyClosed() {
		c.log.Warn("client: replay file was not cleanly closed, data may be truncated", "file", c.diskFile)
	}

	var lastRecovered wire.SeqNum = wire.InvalidSeq
	switched := false

loop:
	for {
		select {
		case <-c.stopped:
			break loop
		default:
		}

		msg, ok := reader.Next()
		if !ok {
			break
		}

		c.processMessage(msg)
		lastRecovered = msg.Seq

		live := c.buffer.LatestSeq()
		if live >= 0 && reader.ShouldCatchUp(live, c.catchUpThreshold) {
			c.stateMu.Lock()
			c.state = StateCatchingUp
			c.stateMu.Unlock()

			boundary := msg.Seq + 1
			c.switchToLive(boundary)
			switched = true

			c.log.Info("client: replay-to-live boundary",
				"last_replay_seq", msg.Seq, "first_live_seq", boundary, "live_head", live)
			break
		}
	}

	if !switched && lastRecovered != wire.InvalidSeq {
		c.cursor.Set(lastRecovered + 1)
		c.log.Info("client: replay exhausted, resuming without live switch", "seq", lastRecovered+1)
	}

	c.stateMu.Lock()
	c.inRecovery = false
	c.state = StateNormal
	c.stateMu.Unlock()

	c.log.Info("client: recovery finished", "last_seq", lastRecovered)
}

// switchToLive retargets the cursor from replay to the live Ring at
// expectedSeq, under switchMu so a concurrent Stop can't race the swap.
func (c *Client) switchToLive(expectedSeq wire.SeqNum) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	latest := c.buffer.LatestSeq()
	oldest := latest - int64(c.buffer.Capacity()) + 1
	if oldest < 0 {
		oldest = 0
	}

	if expectedSeq < oldest {
		c.log.Warn("client: switchToLive target already overwritten, recovery will re-trigger",
			"expected_seq", expectedSeq, "oldest_available", oldest)
	}

	c.cursor.Set(expectedSeq)
	c.log.Info("client: switched to live", "expected_seq", expectedSeq, "oldest", oldest, "latest", latest)
}
