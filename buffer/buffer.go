// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package buffer implements the segmented, zero-copy byte container that
// every other layer of tntgo is built on: a double-ended chain of
// pool.Block-backed segments, plus cursors that track positions inside it
// and survive structural mutation.
//
// A Buffer is not copyable; nothing in this package implements it as a
// value type that should be assigned around. Pass *Buffer.
package buffer

import (
	"fmt"

	"github.com/tarantool-go/tntgo/pool"
)

// Buffer is a double-ended chain of fixed-size blocks drawn from a
// pool.Pool. See spec §3 for the begin/end offset and cursor invariants
// this type maintains.
type Buffer struct {
	pool *pool.Pool

	head, tail  *blockNode
	beginOffset int // offset of first live byte, inside head
	endOffset   int // offset one past the last live byte, inside tail

	// Cursor bookkeeping, per design note §9: an arena-plus-index
	// representation rather than an intrusive linked list. slots is
	// addressed by a Cursor's stable index; order holds slot indices
	// sorted by position and is what Insert/Release walk.
	slots    []cursorSlot
	freeSlot []int
	order    []int
}

type cursorSlot struct {
	node  *blockNode
	off   int
	gen   uint64
	alive bool
}

// New returns an empty Buffer backed by p, with one block already drawn
// from the pool.
func New(p *pool.Pool) *Buffer {
	b := &Buffer{pool: p}
	n := b.newNode()
	b.head, b.tail = n, n
	return b
}

func (b *Buffer) newNode() *blockNode {
	blk := b.pool.Allocate()
	return &blockNode{blk: blk}
}

// IsEmpty reports whether the buffer's live range is empty (begin == end).
func (b *Buffer) IsEmpty() bool {
	return b.head == b.tail && b.beginOffset == b.endOffset
}

func (b *Buffer) beginPos() Pos { return Pos{node: b.head, offset: b.beginOffset} }
func (b *Buffer) endPos() Pos   { return Pos{node: b.tail, offset: b.endOffset} }

// tailFree returns the number of unused bytes remaining in the tail
// block.
func (b *Buffer) tailFree() int { return blockCap - b.endOffset }

// growTail appends fresh blocks and advances endOffset so that at least n
// additional bytes of capacity exist after the current end position. The
// new bytes are uninitialized. Per spec §4.2, a mid-append failure must
// leave the buffer unchanged; pool.Allocate only ever panics (OOM is
// fatal), so there is nothing partial to roll back here.
func (b *Buffer) growTail(n int) {
	remaining := n
	for remaining > 0 {
		free := b.tailFree()
		if free == 0 {
			nn := b.newNode()
			nn.prev = b.tail
			b.tail.next = nn
			b.tail = nn
			b.endOffset = 0
			free = blockCap
		}
		step := remaining
		if step > free {
			step = free
		}
		b.endOffset += step
		remaining -= step
	}
}

// AppendBytes copies src onto the tail of the buffer, growing the chain as
// needed.
func (b *Buffer) AppendBytes(src []byte) {
	n := len(src)
	if n == 0 {
		return
	}
	start := b.endPos()
	b.growTail(n)
	b.writeAt(start, src)
}

// Append writes the standard-layout value v (any fixed-width numeric type)
// onto the tail of the buffer in native byte order, matching how the
// typed cursor API encodes the same types (see Cursor.WriteValue).
func Append[T Fixed](b *Buffer, v T) {
	var buf [8]byte
	n := putFixed(buf[:], v)
	b.AppendBytes(buf[:n])
}

// AdvanceBack reserves n uninitialized bytes at the tail without copying
// any data, returning the position at the start of the reserved region.
// This is used to reserve header space (e.g. the IPROTO size prefix) whose
// value is known only after the body that follows it has been written.
func (b *Buffer) AdvanceBack(n int) Pos {
	start := b.endPos()
	b.growTail(n)
	return start
}

// DropFront releases n bytes from the front of the buffer. Pre-condition
// (spec §4.2): no live cursor may point into the dropped range.
func (b *Buffer) DropFront(n int) error {
	if n == 0 {
		return nil
	}
	if !b.hasFrom(b.beginPos(), n) {
		return fmt.Errorf("buffer: drop_front(%d): only %d bytes live", n, posDistance(b.endPos(), b.beginPos()))
	}
	target := posAdvance(b.beginPos(), n)
	for idx := range b.slots {
		s := &b.slots[idx]
		if !s.alive {
			continue
		}
		if posCompare(Pos{s.node, s.off}, target) < 0 {
			return fmt.Errorf("buffer: drop_front(%d): live cursor in dropped range", n)
		}
	}
	// Release blocks strictly before target.node.
	for b.head != target.node {
		next := b.head.next
		b.pool.Release(b.head.blk)
		b.head = next
		b.head.prev = nil
	}
	b.beginOffset = target.offset
	return nil
}

// DropBack releases n bytes from the back of the buffer. Pre-condition:
// no live cursor may point into the dropped range.
func (b *Buffer) DropBack(n int) error {
	if n == 0 {
		return nil
	}
	if !b.hasUpTo(b.endPos(), n) {
		return fmt.Errorf("buffer: drop_back(%d): only %d bytes live", n, posDistance(b.endPos(), b.beginPos()))
	}
	target := posRetreat(b.endPos(), n)
	for idx := range b.slots {
		s := &b.slots[idx]
		if !s.alive {
			continue
		}
		if posCompare(Pos{s.node, s.off}, target) > 0 {
			return fmt.Errorf("buffer: drop_back(%d): live cursor in dropped range", n)
		}
	}
	for b.tail != target.node {
		prev := b.tail.prev
		b.pool.Release(b.tail.blk)
		b.tail = prev
		b.tail.next = nil
	}
	b.endOffset = target.offset
	return nil
}

// hasFrom reports whether n bytes of live data exist starting at p,
// walking forward from the buffer's head.
func (b *Buffer) hasFrom(p Pos, n int) bool {
	return posDistance(b.endPos(), p) >= int64(n)
}

// hasUpTo reports whether n bytes of live data exist ending at p.
func (b *Buffer) hasUpTo(p Pos, n int) bool {
	return posDistance(p, b.beginPos()) >= int64(n)
}

// Has reports whether n bytes are available after position at.
func (b *Buffer) Has(at Pos, n int) bool {
	return b.hasFrom(at, n)
}

// Flush drops everything before the leftmost live cursor, or the whole
// buffer if there are no live cursors.
func (b *Buffer) Flush() {
	target := b.endPos()
	for i := range b.slots {
		s := &b.slots[i]
		if !s.alive {
			continue
		}
		p := Pos{s.node, s.off}
		if posCompare(p, target) < 0 {
			target = p
		}
	}
	n := posDistance(target, b.beginPos())
	if n > 0 {
		_ = b.DropFront(int(n))
	}
}

// Insert inserts n uninitialized bytes at position at. n must be <=
// pool.BlockSize. Every live cursor whose position is >= at is advanced
// by n; cursors strictly before at are unchanged (spec §4.2, and see the
// open question in design note §9 about cursors that share at's exact
// position: they are all advanced uniformly).
//
// Implementation, per spec: extend the tail by n bytes, then slide the
// suffix [at, oldEnd) right by n.
func (b *Buffer) Insert(at Pos, n int) (Pos, error) {
	if n > blockCap {
		return Pos{}, fmt.Errorf("buffer: insert size %d exceeds block size %d", n, blockCap)
	}
	if n == 0 {
		return at, nil
	}
	oldEnd := b.endPos()
	suffixLen := posDistance(oldEnd, at)
	if suffixLen < 0 {
		return Pos{}, fmt.Errorf("buffer: insert position is outside the live range")
	}
	b.growTail(n)
	if suffixLen > 0 {
		tmp := make([]byte, suffixLen)
		b.readAt(at, tmp)
		dst := posAdvance(at, n)
		b.writeAt(dst, tmp)
	}
	b.adjustForInsert(at, n)
	return posAdvance(at, n), nil
}

// Release is the inverse of Insert: it slides the tail left by n starting
// at position at, then drops n bytes from the back. Every live cursor
// whose position is > at+n is moved back by n; cursors in [at, at+n] are
// clamped to at.
func (b *Buffer) Release(at Pos, n int) (Pos, error) {
	if n == 0 {
		return at, nil
	}
	releaseEnd := posAdvance(at, n)
	if !b.hasFrom(at, n) {
		return Pos{}, fmt.Errorf("buffer: release(%d) past end of live range", n)
	}
	suffixLen := posDistance(b.endPos(), releaseEnd)
	if suffixLen > 0 {
		tmp := make([]byte, suffixLen)
		b.readAt(releaseEnd, tmp)
		b.writeAt(at, tmp)
	}
	b.adjustForRelease(at, releaseEnd, n)
	if err := b.DropBack(n); err != nil {
		return Pos{}, err
	}
	return at, nil
}

// lowerBound returns the index into b.order of the first live cursor
// slot whose position is >= target (binary search; b.order is kept
// sorted by position at all times).
func (b *Buffer) lowerBound(target Pos) int {
	lo, hi := 0, len(b.order)
	for lo < hi {
		mid := (lo + hi) / 2
		s := b.slots[b.order[mid]]
		if posCompare(Pos{s.node, s.off}, target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// adjustForInsert advances every live cursor at or after at by n bytes.
// Per the open question in design note §9, cursors that share at's exact
// position are advanced uniformly along with the rest; no attempt is made
// to distinguish cursors "conceptually before" the insertion point.
func (b *Buffer) adjustForInsert(at Pos, n int) {
	start := b.lowerBound(at)
	for _, idx := range b.order[start:] {
		s := &b.slots[idx]
		p := posAdvance(Pos{s.node, s.off}, n)
		s.node, s.off = p.node, p.offset
	}
}

// adjustForRelease moves every live cursor strictly after releaseEnd back
// by n bytes, and clamps every live cursor in [at, releaseEnd] to at.
func (b *Buffer) adjustForRelease(at, releaseEnd Pos, n int) {
	start := b.lowerBound(at)
	for _, idx := range b.order[start:] {
		s := &b.slots[idx]
		p := Pos{s.node, s.off}
		switch {
		case posCompare(p, releaseEnd) > 0:
			np := posRetreat(p, n)
			s.node, s.off = np.node, np.offset
		default:
			s.node, s.off = at.node, at.offset
		}
	}
}

// readAt copies len(dst) bytes starting at p into dst, walking across
// block boundaries as needed. The caller must ensure the bytes exist.
func (b *Buffer) readAt(p Pos, dst []byte) {
	node, off := p.node, p.offset
	n := 0
	for n < len(dst) {
		avail := blockCap - off
		chunk := len(dst) - n
		if chunk > avail {
			chunk = avail
		}
		copy(dst[n:n+chunk], node.data()[off:off+chunk])
		n += chunk
		off += chunk
		if off >= blockCap {
			node = node.next
			off = 0
		}
	}
}

// writeAt copies src into the buffer starting at p, walking across block
// boundaries as needed. The caller must ensure the capacity exists.
func (b *Buffer) writeAt(p Pos, src []byte) {
	node, off := p.node, p.offset
	n := 0
	for n < len(src) {
		avail := blockCap - off
		chunk := len(src) - n
		if chunk > avail {
			chunk = avail
		}
		copy(node.data()[off:off+chunk], src[n:n+chunk])
		n += chunk
		off += chunk
		if off >= blockCap {
			node = node.next
			off = 0
		}
	}
}
