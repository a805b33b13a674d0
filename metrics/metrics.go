// Package metrics defines the small atomic-counter structs each core
// component exposes for observability, following the split the teacher
// uses between a live atomic-backed struct and an immutable point-in-time
// snapshot (see orbiterhq/comet's MetricsProvider / MetricsSnapshot).
package metrics

import "sync/atomic"

// RecorderMetrics tracks the Recorder's data-loss and continuity counters.
type RecorderMetrics struct {
	SeqGapCount    atomic.Int64
	OverwriteCount atomic.Int64
}

// RecorderSnapshot is a point-in-time copy of RecorderMetrics.
type RecorderSnapshot struct {
	SeqGapCount    int64
	OverwriteCount int64
}

// Snapshot returns an immutable copy of the current counter values.
func (m *RecorderMetrics) Snapshot() RecorderSnapshot {
	return RecorderSnapshot{
		SeqGapCount:    m.SeqGapCount.Load(),
		OverwriteCount: m.OverwriteCount.Load(),
	}
}

// ClientMetrics tracks the Client's fault, recovery, and continuity
// counters.
type ClientMetrics struct {
	SeqGapCount    atomic.Int64
	OverwriteCount atomic.Int64
	RecoveryCount  atomic.Int64
	AutoFaultCount atomic.Int64
}

// ClientSnapshot is a point-in-time copy of ClientMetrics.
type ClientSnapshot struct {
	SeqGapCount    int64
	OverwriteCount int64
	RecoveryCount  int64
	AutoFaultCount int64
}

// Snapshot returns an immutable copy of the current counter values.
func (m *ClientMetrics) Snapshot() ClientSnapshot {
	return ClientSnapshot{
		SeqGapCount:    m.SeqGapCount.Load(),
		OverwriteCount: m.OverwriteCount.Load(),
		RecoveryCount:  m.RecoveryCount.Load(),
		AutoFaultCount: m.AutoFaultCount.Load(),
	}
}

// ReplayMetrics tracks integrity counters surfaced by the Log Reader /
// Replay Engine.
type ReplayMetrics struct {
	ViolationCount atomic.Int64
}

// ReplaySnapshot is a point-in-time copy of ReplayMetrics.
type ReplaySnapshot struct {
	ViolationCount int64
}

// Snapshot returns an immutable copy of the current counter value.
func (m *ReplayMetrics) Snapshot() ReplaySnapshot {
	return ReplaySnapshot{ViolationCount: m.ViolationCount.Load()}
}
