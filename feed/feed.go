// Package feed implements the synthetic market-data generator: the
// producer side of the system, publishing rate-limited messages into a
// Ring. Grounded on the original implementation's MktDataServer, whose
// run loop generates a payload, pushes it, then sleeps until the next
// scheduled tick to honor the configured rate.
package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/mktdata/replayfabric/internal/telemetry"
	"github.com/mktdata/replayfabric/ring"
)

// Generator produces the next payload value for sequence i (0-based).
// The default generator used when none is supplied draws uniformly from
// [0, 100), matching the original's default distribution.
type Generator func(i int64) float64

// Feed is the Ring's sole producer.
type Feed struct {
	buffer *ring.Ring
	log    telemetry.Logger

	messageCount int64
	ratePerSec   int64
	generator    Generator

	sent int64
}

// New constructs a Feed that will publish messageCount messages at
// ratePerSec messages/second (0 = unthrottled) into buffer. generator may
// be nil, in which case payloads are drawn uniformly from [0, 100).
func New(buffer *ring.Ring, messageCount, ratePerSec int64, generator Generator, log telemetry.Logger) *Feed {
	if log == nil {
		log = telemetry.NoOp{}
	}
	if generator == nil {
		rng := rand.New(rand.NewSource(1))
		generator = func(i int64) float64 { return rng.Float64() * 100 }
	}
	return &Feed{
		buffer:       buffer,
		log:          log,
		messageCount: messageCount,
		ratePerSec:   ratePerSec,
		generator:    generator,
	}
}

// SentCount returns the number of messages published so far. Safe to call
// concurrently with Run only after Run has returned; Run itself is not
// reentrant.
func (f *Feed) SentCount() int64 { return f.sent }

// Run publishes messageCount messages, honoring ratePerSec, until done,
// ctx is cancelled, or stop fires. affinityPin, if non-nil, is invoked
// first.
//
// Run executes on the calling goroutine rather than spawning its own —
// unlike Recorder and Client, the Feed's lifetime is naturally bounded
// (it stops after messageCount messages), so callers that want it
// backgrounded can wrap this call in their own `go`.
func (f *Feed) Run(ctx context.Context, stop <-chan struct{}, affinityPin func() error) error {
	if affinityPin != nil {
		if err := affinityPin(); err != nil {
			f.log.Warn("feed: cpu pin failed", "err", err)
		}
	}

	f.log.Info("feed: starting", "messages", f.messageCount, "rate", f.ratePerSec)

	var interval time.Duration
	if f.ratePerSec > 0 {
		interval = time.Second / time.Duration(f.ratePerSec)
	}
	start := time.Now()

	for i := int64(0); i < f.messageCount; i++ {
		select {
		case <-stop:
			f.log.Info("feed: stopped early", "sent", f.sent)
			return nil
		case <-ctx.Done():
			f.log.Info("feed: cancelled", "sent", f.sent)
			return ctx.Err()
		default:
		}

		payload := f.generator(i)
		f.buffer.Publish(time.Now().UnixNano(), payload)
		f.sent++

		if interval > 0 {
			expected := start.Add(interval * time.Duration(i+1))
			if d := time.Until(expected); d > 0 {
				time.Sleep(d)
			}
		}
	}

	f.log.Info("feed: completed", "sent", f.sent)
	return nil
}
