// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer_test

import (
	"bytes"
	"testing"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/pool"
)

func newBuf() *buffer.Buffer {
	return buffer.New(pool.New())
}

func TestAppendAndReadBack(t *testing.T) {
	b := newBuf()
	want := []byte("hello, tarantool")
	b.AppendBytes(want)

	c := b.Begin()
	defer c.Close()
	got := make([]byte, len(want))
	if err := c.ReadBytes(got); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	end := b.End()
	defer end.Close()
	if !c.Equal(end) {
		t.Fatalf("cursor after reading everything should equal End()")
	}
}

func TestAppendAcrossBlockBoundary(t *testing.T) {
	b := newBuf()
	want := bytes.Repeat([]byte{0xAB}, pool.BlockSize*3+17)
	b.AppendBytes(want)

	c := b.Begin()
	defer c.Close()
	got := make([]byte, len(want))
	if err := c.ReadBytes(got); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("content mismatch across block boundary")
	}
}

func TestDropFrontReclaims(t *testing.T) {
	b := newBuf()
	b.AppendBytes(bytes.Repeat([]byte{1}, 100))
	if err := b.DropFront(40); err != nil {
		t.Fatalf("DropFront: %v", err)
	}
	c := b.Begin()
	defer c.Close()
	rest := make([]byte, 60)
	if err := c.ReadBytes(rest); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
}

func TestDropFrontRejectsLiveCursorInRange(t *testing.T) {
	b := newBuf()
	b.AppendBytes(bytes.Repeat([]byte{1}, 100))
	c := b.Begin()
	defer c.Close()
	c.Advance(10)
	if err := b.DropFront(50); err == nil {
		t.Fatalf("expected DropFront to reject dropping past a live cursor")
	}
}

func TestInsertAdjustsCursorsAtOrAfter(t *testing.T) {
	b := newBuf()
	b.AppendBytes(bytes.Repeat([]byte{0}, 50))

	origin := b.Begin()
	defer origin.Close()

	before := b.Begin()
	defer before.Close()
	before.Advance(10) // position 10, strictly before insertion point

	at := b.Begin()
	defer at.Close()
	at.Advance(20) // position 20, the insertion point itself

	after := b.Begin()
	defer after.Close()
	after.Advance(30) // position 30, strictly after

	if _, err := b.Insert(at.Pos(), 5); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if got := before.Sub(origin); got != 10 {
		t.Fatalf("cursor strictly before insertion point moved: got %d, want 10", got)
	}
	if got := at.Sub(origin); got != 25 {
		t.Fatalf("cursor at insertion point did not advance by n: got %d, want 25", got)
	}
	if got := after.Sub(origin); got != 35 {
		t.Fatalf("cursor after insertion point did not advance by n: got %d, want 35", got)
	}
}

func TestReleaseClampsAndShifts(t *testing.T) {
	b := newBuf()
	b.AppendBytes(bytes.Repeat([]byte{0}, 50))

	origin := b.Begin()
	defer origin.Close()

	inRange := b.Begin()
	defer inRange.Close()
	inRange.Advance(22) // inside [20, 25]

	after := b.Begin()
	defer after.Close()
	after.Advance(30) // strictly after the released range

	at := b.Begin()
	defer at.Close()
	at.Advance(20)

	if _, err := b.Release(at.Pos(), 5); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if got := inRange.Sub(origin); got != 20 {
		t.Fatalf("cursor inside released range should clamp to release point: got %d, want 20", got)
	}
	if got := after.Sub(origin); got != 25 {
		t.Fatalf("cursor after released range should move back by n: got %d, want 25", got)
	}
}

func TestGetIOVCoversRangeExactly(t *testing.T) {
	b := newBuf()
	want := bytes.Repeat([]byte{0x42}, pool.BlockSize*2+13)
	b.AppendBytes(want)

	start := b.Begin()
	defer start.Close()
	end := b.End()
	defer end.Close()

	vecs := b.GetIOV(start.Pos(), end.Pos(), 0)
	var got []byte
	total := 0
	for _, v := range vecs {
		got = append(got, v...)
		total += len(v)
	}
	if total != len(want) {
		t.Fatalf("iovec total length = %d, want %d", total, len(want))
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("iovec content mismatch")
	}
}

func TestIsEmptyAndHas(t *testing.T) {
	b := newBuf()
	if !b.IsEmpty() {
		t.Fatalf("new buffer should be empty")
	}
	b.AppendBytes([]byte("x"))
	if b.IsEmpty() {
		t.Fatalf("buffer with data should not be empty")
	}
	c := b.Begin()
	defer c.Close()
	if !b.Has(c.Pos(), 1) {
		t.Fatalf("expected 1 byte available")
	}
	if b.Has(c.Pos(), 2) {
		t.Fatalf("expected only 1 byte available")
	}
}
