package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryGateDisabled(t *testing.T) {
	g := NewMemoryGate(0)
	assert.NoError(t, g.Check())
}

func TestMemoryGateBelowThreshold(t *testing.T) {
	g := NewMemoryGate(1000)
	g.readUsage = func() uint64 { return 100 }
	assert.NoError(t, g.Check())
}

func TestMemoryGateRecoversAfterGC(t *testing.T) {
	g := NewMemoryGate(1000)
	calls := 0
	g.readUsage = func() uint64 {
		calls++
		if calls == 1 {
			return 900 // above 80% on first read
		}
		return 100 // recovered after the collection hint
	}
	assert.NoError(t, g.Check())
	assert.Equal(t, 2, calls)
}

func TestMemoryGateRejectsUnderSustainedPressure(t *testing.T) {
	g := NewMemoryGate(1000)
	g.readUsage = func() uint64 { return 900 }
	assert.ErrorIs(t, g.Check(), ErrMemoryPressure)
}
