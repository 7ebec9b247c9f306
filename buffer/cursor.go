// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer

import (
	"encoding/binary"
	"math"

	"github.com/tarantool-go/tntgo/tnterr"
)

// Fixed is the set of fixed-width, standard-layout scalar types the typed
// cursor API can read and write directly against buffer memory.
type Fixed interface {
	uint8 | uint16 | uint32 | uint64 | int8 | int16 | int32 | int64 | float32 | float64
}

// putFixed encodes v into buf (which must have capacity for sizeof(T)) in
// the machine's native byte order and returns the number of bytes
// written. Native order is used here, not MessagePack's mandated
// big-endian: this is the "standard layout T" fast path of spec §4.2, an
// entirely separate concern from the wire codec in package msgpack.
func putFixed[T Fixed](buf []byte, v T) int {
	order := binary.NativeEndian
	switch x := any(v).(type) {
	case uint8:
		buf[0] = x
		return 1
	case int8:
		buf[0] = uint8(x)
		return 1
	case uint16:
		order.PutUint16(buf, x)
		return 2
	case int16:
		order.PutUint16(buf, uint16(x))
		return 2
	case uint32:
		order.PutUint32(buf, x)
		return 4
	case int32:
		order.PutUint32(buf, uint32(x))
		return 4
	case uint64:
		order.PutUint64(buf, x)
		return 8
	case int64:
		order.PutUint64(buf, uint64(x))
		return 8
	case float32:
		order.PutUint32(buf, math.Float32bits(x))
		return 4
	case float64:
		order.PutUint64(buf, math.Float64bits(x))
		return 8
	default:
		panic("buffer: unsupported Fixed type")
	}
}

func sizeOfFixed[T Fixed]() int {
	var zero T
	switch any(zero).(type) {
	case uint8, int8:
		return 1
	case uint16, int16:
		return 2
	case uint32, int32, float32:
		return 4
	case uint64, int64, float64:
		return 8
	default:
		panic("buffer: unsupported Fixed type")
	}
}

func getFixed[T Fixed](buf []byte) T {
	order := binary.NativeEndian
	var zero T
	switch any(zero).(type) {
	case uint8:
		return any(buf[0]).(T)
	case int8:
		return any(int8(buf[0])).(T)
	case uint16:
		return any(order.Uint16(buf)).(T)
	case int16:
		return any(int16(order.Uint16(buf))).(T)
	case uint32:
		return any(order.Uint32(buf)).(T)
	case int32:
		return any(int32(order.Uint32(buf))).(T)
	case uint64:
		return any(order.Uint64(buf)).(T)
	case int64:
		return any(int64(order.Uint64(buf))).(T)
	case float32:
		return any(math.Float32frombits(order.Uint32(buf))).(T)
	case float64:
		return any(math.Float64frombits(order.Uint64(buf))).(T)
	default:
		panic("buffer: unsupported Fixed type")
	}
}

// --- heavy cursor ---------------------------------------------------------

// Cursor is a "heavy" position inside a Buffer: it is linked into the
// buffer's cursor bookkeeping and is therefore kept valid across Insert
// and Release (spec §3, §4.2). Create one with Buffer.Begin, Buffer.End,
// or LightCursor.Heavy (promoting a LightCursor).
type Cursor struct {
	buf *Buffer
	idx int
	gen uint64
}

func (b *Buffer) registerCursor(node *blockNode, offset int) int {
	var idx int
	if n := len(b.freeSlot); n > 0 {
		idx = b.freeSlot[n-1]
		b.freeSlot = b.freeSlot[:n-1]
		b.slots[idx] = cursorSlot{node: node, off: offset, gen: b.slots[idx].gen + 1, alive: true}
	} else {
		idx = len(b.slots)
		b.slots = append(b.slots, cursorSlot{node: node, off: offset, gen: 1, alive: true})
	}
	target := Pos{node, offset}
	at := len(b.order)
	for i, oi := range b.order {
		if posCompare(Pos{b.slots[oi].node, b.slots[oi].off}, target) > 0 {
			at = i
			break
		}
	}
	b.order = append(b.order, 0)
	copy(b.order[at+1:], b.order[at:])
	b.order[at] = idx
	return idx
}

func (b *Buffer) unregisterCursor(idx int) {
	b.slots[idx].alive = false
	for i, oi := range b.order {
		if oi == idx {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.freeSlot = append(b.freeSlot, idx)
}

// Begin returns a heavy cursor at the start of the buffer's live range.
func (b *Buffer) Begin() *Cursor {
	idx := b.registerCursor(b.head, b.beginOffset)
	return &Cursor{buf: b, idx: idx, gen: b.slots[idx].gen}
}

// End returns a heavy cursor one byte past the buffer's live range.
func (b *Buffer) End() *Cursor {
	idx := b.registerCursor(b.tail, b.endOffset)
	return &Cursor{buf: b, idx: idx, gen: b.slots[idx].gen}
}

// CursorAt returns a heavy cursor at p, a position previously obtained
// from this same buffer (e.g. from AdvanceBack or another Cursor's Pos).
// Used by codecs that reserve header space before the body whose length
// determines the header's contents exists (see iproto.EncodeRequest).
func (b *Buffer) CursorAt(p Pos) *Cursor {
	idx := b.registerCursor(p.node, p.offset)
	return &Cursor{buf: b, idx: idx, gen: b.slots[idx].gen}
}

func (c *Cursor) checkedSlot() *cursorSlot {
	s := &c.buf.slots[c.idx]
	if !s.alive || s.gen != c.gen {
		panic(tnterr.ErrCursorStale)
	}
	return s
}

// Pos returns c's current block/offset position.
func (c *Cursor) Pos() Pos {
	s := c.checkedSlot()
	return Pos{s.node, s.off}
}

// Close unlinks c from its buffer's cursor list. After Close, c must not
// be used again. Buffers that create many short-lived heavy cursors
// (e.g. one per decoded frame boundary) should Close them promptly:
// Insert/Release/Flush only see cursors that are still linked.
func (c *Cursor) Close() {
	c.buf.unregisterCursor(c.idx)
}

// Clone returns a new heavy cursor at the same position as c.
func (c *Cursor) Clone() *Cursor {
	p := c.Pos()
	idx := c.buf.registerCursor(p.node, p.offset)
	return &Cursor{buf: c.buf, idx: idx, gen: c.buf.slots[idx].gen}
}

// Advance moves c forward by n bytes in place.
func (c *Cursor) Advance(n int) {
	s := c.checkedSlot()
	p := posAdvance(Pos{s.node, s.off}, n)
	s.node, s.off = p.node, p.offset
}

// Compare orders c against c2 by (block id, offset). Comparing cursors
// from two different buffers is a programming error (spec §7) and panics
// with tnterr.ErrCursorMismatch.
func (c *Cursor) Compare(c2 *Cursor) int {
	if c.buf != c2.buf {
		panic(tnterr.ErrCursorMismatch)
	}
	return posCompare(c.Pos(), c2.Pos())
}

// Less reports whether c sorts before c2.
func (c *Cursor) Less(c2 *Cursor) bool { return c.Compare(c2) < 0 }

// Equal reports whether c and c2 are at the same position.
func (c *Cursor) Equal(c2 *Cursor) bool { return c.Compare(c2) == 0 }

// Sub returns the byte distance from c2 to c (c - c2).
func (c *Cursor) Sub(c2 *Cursor) int64 {
	if c.buf != c2.buf {
		panic(tnterr.ErrCursorMismatch)
	}
	return posDistance(c.Pos(), c2.Pos())
}

// ReadBytes copies len(dst) bytes starting at c into dst and advances c
// past them. It returns tnterr.ErrNeedMore if fewer bytes are available.
func (c *Cursor) ReadBytes(dst []byte) error {
	s := c.checkedSlot()
	p := Pos{s.node, s.off}
	if !c.buf.Has(p, len(dst)) {
		return tnterr.ErrNeedMore
	}
	c.buf.readAt(p, dst)
	np := posAdvance(p, len(dst))
	s.node, s.off = np.node, np.offset
	return nil
}

// WriteBytes writes src starting at c's position, growing the tail if c
// is at the end of the buffer, and advances c past them.
func (c *Cursor) WriteBytes(src []byte) {
	s := c.checkedSlot()
	p := Pos{s.node, s.off}
	need := len(src) - int(posDistance(c.buf.endPos(), p))
	if need > 0 {
		c.buf.growTail(need)
	}
	c.buf.writeAt(p, src)
	np := posAdvance(p, len(src))
	s.node, s.off = np.node, np.offset
}

// ReadValue reads a Fixed-width value at c's position and advances c past
// it.
func ReadValue[T Fixed](c *Cursor) (T, error) {
	var buf [8]byte
	n := sizeOfFixed[T]()
	if err := c.ReadBytes(buf[:n]); err != nil {
		var zero T
		return zero, err
	}
	return getFixed[T](buf[:n]), nil
}

// WriteValue writes a Fixed-width value at c's position and advances c
// past it.
func WriteValue[T Fixed](c *Cursor, v T) {
	var buf [8]byte
	n := putFixed(buf[:], v)
	c.WriteBytes(buf[:n])
}

// --- light cursor ----------------------------------------------------------

// LightCursor is a position inside a Buffer that is not linked into the
// buffer's cursor list: cheaper to create and move, but invalidated by
// any structural mutation of the buffer (Insert, Release, DropFront,
// DropBack, Flush). Use it for short-lived scans that don't straddle a
// mutation, e.g. the codec's read-ahead inside one already-framed
// message.
type LightCursor struct {
	buf  *Buffer
	node *blockNode
	off  int
}

// Light returns an unlinked cursor at c's current position.
func (c *Cursor) Light() LightCursor {
	p := c.Pos()
	return LightCursor{buf: c.buf, node: p.node, off: p.offset}
}

// Heavy promotes lc to a linked heavy cursor at its current position.
func (lc LightCursor) Heavy() *Cursor {
	idx := lc.buf.registerCursor(lc.node, lc.off)
	return &Cursor{buf: lc.buf, idx: idx, gen: lc.buf.slots[idx].gen}
}

func (lc LightCursor) Pos() Pos { return Pos{lc.node, lc.off} }

func (lc *LightCursor) Advance(n int) {
	p := posAdvance(lc.Pos(), n)
	lc.node, lc.off = p.node, p.offset
}

func (lc *LightCursor) Compare(o *LightCursor) int {
	if lc.buf != o.buf {
		panic(tnterr.ErrCursorMismatch)
	}
	return posCompare(lc.Pos(), o.Pos())
}

func (lc *LightCursor) Less(o *LightCursor) bool { return lc.Compare(o) < 0 }

func (lc *LightCursor) Sub(o *LightCursor) int64 {
	if lc.buf != o.buf {
		panic(tnterr.ErrCursorMismatch)
	}
	return posDistance(lc.Pos(), o.Pos())
}

func (lc *LightCursor) ReadBytes(dst []byte) error {
	if !lc.buf.Has(lc.Pos(), len(dst)) {
		return tnterr.ErrNeedMore
	}
	lc.buf.readAt(lc.Pos(), dst)
	p := posAdvance(lc.Pos(), len(dst))
	lc.node, lc.off = p.node, p.offset
	return nil
}

func (lc *LightCursor) WriteBytes(src []byte) {
	need := len(src) - int(posDistance(lc.buf.endPos(), lc.Pos()))
	if need > 0 {
		lc.buf.growTail(need)
	}
	lc.buf.writeAt(lc.Pos(), src)
	p := posAdvance(lc.Pos(), len(src))
	lc.node, lc.off = p.node, p.offset
}

// ReadLightValue reads a Fixed-width value at lc's position and advances
// lc past it.
func ReadLightValue[T Fixed](lc *LightCursor) (T, error) {
	var buf [8]byte
	n := sizeOfFixed[T]()
	if err := lc.ReadBytes(buf[:n]); err != nil {
		var zero T
		return zero, err
	}
	return getFixed[T](buf[:n]), nil
}

// WriteLightValue writes a Fixed-width value at lc's position and
// advances lc past it.
func WriteLightValue[T Fixed](lc *LightCursor, v T) {
	var buf [8]byte
	n := putFixed(buf[:], v)
	lc.WriteBytes(buf[:n])
}
