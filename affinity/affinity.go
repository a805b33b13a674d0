// Package affinity pins the calling goroutine's OS thread to a logical
// CPU core. Grounded on the original implementation's setCpuAffinity
// (common/CpuAffinity.hpp), which wraps sched_setaffinity(2) for the
// calling thread.
package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Unset is the sentinel meaning "don't pin to any specific core".
const Unset = -1

// Pin locks the calling goroutine to its current OS thread and restricts
// that thread's scheduling to coreID. If coreID is Unset, Pin is a no-op.
//
// Callers must invoke Pin as the first action on a goroutine that is
// meant to run for the lifetime of a worker (producer, Recorder, Client),
// since runtime.LockOSThread binds the goroutine to the thread for as
// long as it runs.
func Pin(coreID int, name string) error {
	if coreID == Unset {
		return nil
	}

	numCPU := runtime.NumCPU()
	if coreID < 0 || coreID >= numCPU {
		return fmt.Errorf("affinity: %s: core_id=%d out of range [0, %d)", name, coreID, numCPU)
	}

	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity failed for %s on core %d: %w", name, coreID, err)
	}

	return nil
}
