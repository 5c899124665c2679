// Package bufpool provides a tiered byte-buffer pool.
//
// Chunk uploads and document parsing read fixed-size blocks at high rates;
// pooling those buffers keeps allocation and GC pressure flat under load.
// Three size tiers cover the hot paths: small control payloads, extractor
// read blocks, and full upload chunks. Requests above the large tier are
// allocated directly and never pooled.
package bufpool

import (
	"sync"
)

// Default buffer size classes.
const (
	// DefaultSmallSize covers envelope bodies and small payloads (4 KiB).
	DefaultSmallSize = 4 << 10

	// DefaultMediumSize covers extractor read blocks (64 KiB).
	DefaultMediumSize = 64 << 10

	// DefaultLargeSize covers one full upload chunk with headroom (6 MiB).
	DefaultLargeSize = 6 << 20
)

// Pool manages byte slices organized by size class.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config holds the tier sizes for a custom pool. Zero values fall back to
// the defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// NewPool creates a buffer pool. A nil config uses the default tiers.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.SmallSize <= 0 {
		cfg.SmallSize = DefaultSmallSize
	}
	if cfg.MediumSize <= 0 {
		cfg.MediumSize = DefaultMediumSize
	}
	if cfg.LargeSize <= 0 {
		cfg.LargeSize = DefaultLargeSize
	}

	p := &Pool{
		smallSize:  cfg.SmallSize,
		mediumSize: cfg.MediumSize,
		largeSize:  cfg.LargeSize,
	}
	p.small = sync.Pool{New: func() any {
		buf := make([]byte, p.smallSize)
		return &buf
	}}
	p.medium = sync.Pool{New: func() any {
		buf := make([]byte, p.mediumSize)
		return &buf
	}}
	p.large = sync.Pool{New: func() any {
		buf := make([]byte, p.largeSize)
		return &buf
	}}
	return p
}

// Get returns a byte slice of exactly the requested length, backed by a
// pooled buffer whose capacity may be larger. Pair every Get with a Put.
// Sizes above the large tier are allocated directly and not pooled.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte
	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	buf := *bufPtr
	return buf[:size]
}

// Put returns a buffer to its tier. Buffers not sized to a tier (including
// oversized direct allocations) are left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	switch cap(buf) {
	case p.smallSize:
		full := buf[:cap(buf)]
		p.small.Put(&full)
	case p.mediumSize:
		full := buf[:cap(buf)]
		p.medium.Put(&full)
	case p.largeSize:
		full := buf[:cap(buf)]
		p.large.Put(&full)
	}
}

// globalPool backs the package-level Get and Put.
var globalPool = NewPool(nil)

// Get returns a byte slice of at least the requested size from the global
// pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer to the global pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}
