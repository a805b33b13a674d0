package feed

import (
	"context"
	"testing"

	"github.com/mktdata/replayfabric/ring"
)

func TestRunPublishesExactCount(t *testing.T) {
	r, err := ring.New(1024)
	if err != nil {
		t.Fatal(err)
	}

	f := New(r, 500, 0, nil, nil) // rate 0 = unthrottled

	stop := make(chan struct{})
	if err := f.Run(context.Background(), stop, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.SentCount() != 500 {
		t.Errorf("SentCount() = %d, want 500", f.SentCount())
	}
	if r.LatestSeq() != 499 {
		t.Errorf("LatestSeq() = %d, want 499", r.LatestSeq())
	}
}

func TestRunRespectsCustomGenerator(t *testing.T) {
	r, err := ring.New(64)
	if err != nil {
		t.Fatal(err)
	}

	gen := func(i int64) float64 { return float64(i) * 2 }
	f := New(r, 10, 0, gen, nil)

	if err := f.Run(context.Background(), make(chan struct{}), nil); err != nil {
		t.Fatal(err)
	}

	for i := int64(0); i < 10; i++ {
		msg, status := r.ReadEx(i)
		if status != ring.StatusOK {
			t.Fatalf("readEx(%d) = %v, want OK", i, status)
		}
		if msg.Payload != float64(i)*2 {
			t.Errorf("seq %d payload = %v, want %v", i, msg.Payload, float64(i)*2)
		}
	}
}

func TestRunStopsEarlyOnSignal(t *testing.T) {
	r, err := ring.New(64)
	if err != nil {
		t.Fatal(err)
	}

	f := New(r, 1_000_000, 100, nil, nil) // slow rate, huge count
	stop := make(chan struct{})
	close(stop) // already stopped before Run begins

	if err := f.Run(context.Background(), stop, nil); err != nil {
		t.Fatalf("Run should return nil on early stop, got %v", err)
	}
	if f.SentCount() != 0 {
		t.Errorf("SentCount() = %d, want 0 (stopped before first publish)", f.SentCount())
	}
}

func TestRunCancelledByContext(t *testing.T) {
	r, err := ring.New(64)
	if err != nil {
		t.Fatal(err)
	}

	f := New(r, 1_000_000, 100, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.Run(ctx, make(chan struct{}), nil); err == nil {
		t.Error("Run should return context.Canceled when ctx is already done")
	}
}
