package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSelectsTier(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"small", 100, DefaultSmallSize},
		{"small boundary", DefaultSmallSize, DefaultSmallSize},
		{"medium", 10 << 10, DefaultMediumSize},
		{"extractor block", 64 << 10, DefaultMediumSize},
		{"upload chunk", 5<<20 + 1, DefaultLargeSize},
		{"zero", 0, DefaultSmallSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)
			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.wantCap, cap(buf))
		})
	}
}

func TestOversizedNotPooled(t *testing.T) {
	buf := Get(DefaultLargeSize + 1)
	assert.Len(t, buf, DefaultLargeSize+1)
	assert.Equal(t, len(buf), cap(buf))
	// Returning it is a no-op, not a panic.
	Put(buf)
}

func TestPutNilIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { Put(nil) })
}

func TestPutForeignBufferIgnored(t *testing.T) {
	p := NewPool(nil)
	assert.NotPanics(t, func() { p.Put(make([]byte, 123)) })
}

func TestCustomTiers(t *testing.T) {
	p := NewPool(&Config{SmallSize: 16, MediumSize: 32, LargeSize: 64})

	buf := p.Get(20)
	assert.Equal(t, 32, cap(buf))
	p.Put(buf)

	buf = p.Get(64)
	assert.Equal(t, 64, cap(buf))
	p.Put(buf)
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := Get(64 << 10)
				buf[0] = byte(j)
				Put(buf)
			}
		}()
	}
	wg.Wait()
}
