// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pool implements a fixed-size, aligned slab allocator.
//
// Blocks are drawn from slabs of BlockSize-byte blocks, SlabBlocks blocks
// per slab. A freed block is threaded onto a single-linked free list
// through its own first 8 bytes; slabs are never returned to the Go
// allocator while the Pool lives, trading high-water-mark memory for O(1)
// allocate/release on the request hot path.
package pool

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/tarantool-go/tntgo/tnterr"
)

const (
	// BlockSize is the size, in bytes, of one block. 16 KiB matches the
	// typical Tarantool client buffer segment size.
	BlockSize = 16 * 1024

	// BlockAlign is the alignment of a block's address: the largest
	// power-of-two divisor of BlockSize.
	BlockAlign = BlockSize

	// SlabBlocks is the number of blocks carved out of one slab
	// allocation.
	SlabBlocks = 64

	// SlabSize is the size, in bytes, of one slab.
	SlabSize = BlockSize * SlabBlocks

	// SlabAlign is the alignment of a slab's address.
	SlabAlign = BlockSize
)

// Pool is a fixed-size block allocator. The zero value is not usable; call
// New.
//
// A Pool is safe for concurrent use if Concurrent(true) was passed to New;
// by default (per spec §5) it is confined to a single goroutine/thread and
// performs no internal locking.
type Pool struct {
	mu         sync.Mutex
	locking    bool
	free       unsafe.Pointer // head of the free list, or nil
	slabs      [][]byte       // retained so slabs are never GC'd early
	allocated  int64
	freelisted int64
	slabCount  int64
}

// Option configures a Pool at construction.
type Option func(*Pool)

// Concurrent makes the Pool safe for concurrent Allocate/Release calls at
// the cost of a mutex around the free list. The core client never sets
// this: per spec §5 a Pool is process-wide or per-thread and its caller is
// responsible for confinement. It exists for embedders that want a shared
// pool across multiple reactors.
func Concurrent(enabled bool) Option {
	return func(p *Pool) { p.locking = enabled }
}

// New returns an empty Pool. No slab is allocated until the first
// Allocate.
func New(opts ...Option) *Pool {
	p := &Pool{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Block is one BlockSize-byte chunk drawn from a Pool. ID is a
// monotonically increasing identifier assigned each time Allocate creates
// a Block, including when the chunk comes off the free list; Block IDs
// define a total order over all blocks handed out in the process and back
// the buffer cursor's comparison operator (buffer.Cursor.Compare).
type Block struct {
	ID    uint64
	bytes []byte
}

// Bytes returns the full BlockSize-byte backing slice of b.
func (b *Block) Bytes() []byte { return b.bytes }

var nextBlockID uint64

func newBlockID() uint64 {
	// Block IDs only need to be unique and increasing within one process;
	// a package-level counter matches the C++ original's process-wide
	// monotonic counter. It is shared by every Pool, so it is incremented
	// atomically.
	return atomic.AddUint64(&nextBlockID, 1)
}

// Allocate returns a new block, reusing one from the free list when
// possible. Allocate never returns an error at the API level: if the
// underlying slab allocation fails (Go's allocator is OOM), Allocate
// panics with tnterr.ErrOOM, matching the spec's "aborts" policy for pool
// exhaustion.
func (p *Pool) Allocate() *Block {
	if p.locking {
		p.mu.Lock()
		defer p.mu.Unlock()
	}
	if p.free != nil {
		return p.popFree()
	}
	p.growSlab()
	return p.popFree()
}

// Release returns a block to the pool's free list in O(1). The block must
// not be referenced by any live cursor after Release returns.
func (p *Pool) Release(b *Block) {
	if p.locking {
		p.mu.Lock()
		defer p.mu.Unlock()
	}
	p.pushFree(b.bytes)
	p.allocated--
}

// growSlab allocates one new slab, aligned to SlabAlign, splits it into
// SlabBlocks blocks, and threads them onto the free list.
func (p *Pool) growSlab() {
	raw := make([]byte, SlabSize+SlabAlign-1)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	offset := (base+SlabAlign-1)/SlabAlign*SlabAlign - base
	aligned := raw[offset : offset+SlabSize]
	p.slabs = append(p.slabs, raw)
	p.slabCount++

	for i := 0; i < SlabBlocks; i++ {
		chunk := aligned[i*BlockSize : (i+1)*BlockSize]
		p.pushFree(chunk)
	}
}

// pushFree threads bytes onto the head of the free list using its own
// first 8 bytes to hold the previous head pointer.
func (p *Pool) pushFree(bytes []byte) {
	ptr := unsafe.Pointer(unsafe.SliceData(bytes))
	binary.NativeEndian.PutUint64(bytes[:8], uint64(uintptr(p.free)))
	p.free = ptr
	p.freelisted++
}

// popFree unthreads the head of the free list and wraps it as a Block.
// Must be called with the free list non-empty and, if p.locking, the lock
// held.
func (p *Pool) popFree() *Block {
	if p.free == nil {
		// growSlab is always called first by Allocate; reaching this
		// with a still-empty free list means the slab allocation
		// itself failed catastrophically.
		panic(tnterr.ErrOOM)
	}
	bytes := unsafe.Slice((*byte)(p.free), BlockSize)
	next := uintptr(binary.NativeEndian.Uint64(bytes[:8]))
	p.free = unsafe.Pointer(next)
	p.allocated++
	p.freelisted--
	return &Block{ID: newBlockID(), bytes: bytes}
}

// Stats is a point-in-time snapshot of a Pool's counters, suitable for
// logging or for adapting into a prometheus.Collector (see NewCollector).
// This supplements, and does not replace, the spec's "optional usage
// counters for tests": it is always collected, never load-bearing for
// correctness.
type Stats struct {
	Allocated  int64
	FreeListed int64
	Slabs      int64
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	if p.locking {
		p.mu.Lock()
		defer p.mu.Unlock()
	}
	return Stats{Allocated: p.allocated, FreeListed: p.freelisted, Slabs: p.slabCount}
}
