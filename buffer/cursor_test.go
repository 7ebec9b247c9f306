// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer_test

import (
	"errors"
	"testing"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/pool"
	"github.com/tarantool-go/tntgo/tnterr"
)

func TestTypedReadWriteRoundTrip(t *testing.T) {
	b := newBuf()
	end := b.End()
	defer end.Close()
	buffer.WriteValue[uint32](end, 0xDEADBEEF)
	buffer.WriteValue[int64](end, -12345)
	buffer.WriteValue[float64](end, 3.25)

	c := b.Begin()
	defer c.Close()

	u, err := buffer.ReadValue[uint32](c)
	if err != nil || u != 0xDEADBEEF {
		t.Fatalf("uint32 round trip: got %v, err %v", u, err)
	}
	i, err := buffer.ReadValue[int64](c)
	if err != nil || i != -12345 {
		t.Fatalf("int64 round trip: got %v, err %v", i, err)
	}
	f, err := buffer.ReadValue[float64](c)
	if err != nil || f != 3.25 {
		t.Fatalf("float64 round trip: got %v, err %v", f, err)
	}
}

func TestReadBytesNeedsMoreOnShortBuffer(t *testing.T) {
	b := newBuf()
	b.AppendBytes([]byte{1, 2, 3})
	c := b.Begin()
	defer c.Close()
	dst := make([]byte, 10)
	err := c.ReadBytes(dst)
	if !errors.Is(err, tnterr.ErrNeedMore) {
		t.Fatalf("expected ErrNeedMore, got %v", err)
	}
}

func TestCursorOrderingTotalOrder(t *testing.T) {
	b := newBuf()
	b.AppendBytes(make([]byte, pool.BlockSize*2))

	a := b.Begin()
	defer a.Close()
	c := b.Begin()
	defer c.Close()
	c.Advance(pool.BlockSize + 5)

	if !a.Less(c) {
		t.Fatalf("expected a < c")
	}
	if c.Less(a) {
		t.Fatalf("expected !(c < a)")
	}
	if a.Equal(c) {
		t.Fatalf("expected a != c")
	}
	d := a.Clone()
	defer d.Close()
	if !a.Equal(d) {
		t.Fatalf("clone should compare equal to its origin")
	}
}

func TestLightCursorPromotion(t *testing.T) {
	b := newBuf()
	b.AppendBytes([]byte("abcdef"))
	c := b.Begin()
	lc := c.Light()
	c.Close()

	var got [3]byte
	if err := lc.ReadBytes(got[:]); err != nil {
		t.Fatalf("ReadBytes on light cursor: %v", err)
	}
	if string(got[:]) != "abc" {
		t.Fatalf("got %q, want abc", got)
	}

	heavy := lc.Heavy()
	defer heavy.Close()
	var rest [3]byte
	if err := heavy.ReadBytes(rest[:]); err != nil {
		t.Fatalf("ReadBytes on promoted cursor: %v", err)
	}
	if string(rest[:]) != "def" {
		t.Fatalf("got %q, want def", rest)
	}
}

func TestCursorMismatchPanics(t *testing.T) {
	b1 := newBuf()
	b2 := newBuf()
	c1 := b1.Begin()
	defer c1.Close()
	c2 := b2.Begin()
	defer c2.Close()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic comparing cursors from different buffers")
		}
	}()
	c1.Compare(c2)
}
