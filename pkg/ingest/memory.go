package ingest

import (
	"errors"
	"runtime"
)

// ErrMemoryPressure signals that the worker refused a task because resident
// memory exceeds the configured cap. The consumer leaves the message
// uncommitted so the broker redelivers it later.
var ErrMemoryPressure = errors.New("memory pressure, task rejected")

// MemoryGate refuses new tasks above 80% of a configured heap cap. A
// collection hint is requested once before the final decision.
type MemoryGate struct {
	// Cap is the resident memory bound in bytes. Zero disables the gate.
	Cap uint64

	// readUsage is swappable in tests; defaults to the runtime heap size.
	readUsage func() uint64
}

// NewMemoryGate creates a gate with the given cap in bytes.
func NewMemoryGate(capBytes uint64) *MemoryGate {
	return &MemoryGate{Cap: capBytes, readUsage: heapInUse}
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}

// Check returns ErrMemoryPressure when usage stays above 80% of the cap
// even after a GC hint.
func (g *MemoryGate) Check() error {
	if g.Cap == 0 {
		return nil
	}
	threshold := g.Cap / 10 * 8

	if g.readUsage() <= threshold {
		return nil
	}
	runtime.GC()
	if g.readUsage() <= threshold {
		return nil
	}
	return ErrMemoryPressure
}
