// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgpack_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/msgpack"
	"github.com/tarantool-go/tntgo/pool"
	"github.com/tarantool-go/tntgo/tnterr"
)

func newBuf() *buffer.Buffer { return buffer.New(pool.New()) }

func roundTrip(t *testing.T, enc any, dec any) {
	t.Helper()
	b := newBuf()
	if err := msgpack.Encode(b, enc); err != nil {
		t.Fatalf("Encode(%#v): %v", enc, err)
	}
	c := b.Begin()
	defer c.Close()
	lc := c.Light()
	if err := msgpack.Decode(&lc, dec); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}

func TestScalarRoundTrip(t *testing.T) {
	var b bool
	roundTrip(t, true, &b)
	if !b {
		t.Fatalf("bool round trip failed")
	}

	var i int64
	roundTrip(t, int64(-12345), &i)
	if i != -12345 {
		t.Fatalf("int64 round trip: got %d", i)
	}

	var u uint64
	roundTrip(t, uint64(0xFFFFFFFF), &u)
	if u != 0xFFFFFFFF {
		t.Fatalf("uint64 round trip: got %d", u)
	}

	var f float64
	roundTrip(t, 3.5, &f)
	if f != 3.5 {
		t.Fatalf("float64 round trip: got %v", f)
	}

	var s string
	roundTrip(t, "tarantool", &s)
	if s != "tarantool" {
		t.Fatalf("string round trip: got %q", s)
	}
}

func TestFamilyWrappingPinsBinVsStr(t *testing.T) {
	b := newBuf()
	if err := msgpack.Encode(b, msgpack.Bin("abc")); err != nil {
		t.Fatalf("Encode Bin: %v", err)
	}
	c := b.Begin()
	defer c.Close()
	lc := c.Light()

	var s string
	if err := msgpack.Decode(&lc, &s); !errors.Is(err, tnterr.ErrWrongType) {
		t.Fatalf("decoding bin into string should fail wrong-type, got %v", err)
	}
}

func TestSliceAndMapRoundTrip(t *testing.T) {
	in := []int{1, 2, 3, 4}
	var out []int
	roundTrip(t, in, &out)
	if len(out) != len(in) {
		t.Fatalf("slice length mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("slice[%d] = %d, want %d", i, out[i], in[i])
		}
	}

	m := map[string]int{"a": 1, "b": 2}
	var got map[string]int
	roundTrip(t, m, &got)
	if len(got) != 2 || got["a"] != 1 || got["b"] != 2 {
		t.Fatalf("map round trip mismatch: %#v", got)
	}
}

type tuplePoint struct {
	X int
	Y int
}

type mapShaped struct {
	Name string `msgpack:"name"`
	Age  int    `msgpack:"age,omitempty"`
}

func TestStructPositionalByDefault(t *testing.T) {
	in := tuplePoint{X: 3, Y: 4}
	var out tuplePoint
	roundTrip(t, in, &out)
	if out != in {
		t.Fatalf("positional struct round trip: got %+v, want %+v", out, in)
	}
}

func TestStructMapShapedByTag(t *testing.T) {
	in := mapShaped{Name: "box", Age: 7}
	var out mapShaped
	roundTrip(t, in, &out)
	if out != in {
		t.Fatalf("map-shaped struct round trip: got %+v, want %+v", out, in)
	}
}

func TestMapDecodeMatchOrSkipIgnoresUnknownKeys(t *testing.T) {
	b := newBuf()
	if err := msgpack.Encode(b, map[string]any{
		"name": "box", "age": 7, "unknown_field": []int{1, 2, 3},
	}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c := b.Begin()
	defer c.Close()
	lc := c.Light()

	var out mapShaped
	if err := msgpack.Decode(&lc, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Name != "box" || out.Age != 7 {
		t.Fatalf("got %+v", out)
	}
}

func TestOptionalEncodeDecode(t *testing.T) {
	b := newBuf()
	if err := msgpack.Encode(b, msgpack.None[int]()); err != nil {
		t.Fatalf("Encode None: %v", err)
	}
	if err := msgpack.Encode(b, msgpack.Some(42)); err != nil {
		t.Fatalf("Encode Some: %v", err)
	}

	c := b.Begin()
	defer c.Close()
	lc := c.Light()

	var o1 msgpack.Optional[int]
	if err := msgpack.Decode(&lc, &o1); err != nil {
		t.Fatalf("Decode None: %v", err)
	}
	if o1.Valid {
		t.Fatalf("expected None to decode invalid")
	}

	var o2 msgpack.Optional[int]
	if err := msgpack.Decode(&lc, &o2); err != nil {
		t.Fatalf("Decode Some: %v", err)
	}
	if !o2.Valid || o2.Value != 42 {
		t.Fatalf("expected Some(42), got %+v", o2)
	}
}

func TestVariantDecodesNaturalGoShape(t *testing.T) {
	b := newBuf()
	if err := msgpack.Encode(b, "oops"); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c := b.Begin()
	defer c.Close()
	lc := c.Light()

	var v msgpack.Variant
	if err := msgpack.Decode(&lc, &v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	s, ok := v.Value.(string)
	if !ok || s != "oops" {
		t.Fatalf("expected variant to hold string %q, got %#v", "oops", v.Value)
	}
}

type otherMapShaped struct {
	Code int `msgpack:"code"`
}

func TestVariantAltsDispatchByFamily(t *testing.T) {
	b := newBuf()
	if err := msgpack.Encode(b, tuplePoint{X: 1, Y: 2}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := msgpack.Encode(b, mapShaped{Name: "box", Age: 7}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c := b.Begin()
	defer c.Close()
	lc := c.Light()

	alts := []msgpack.Alt{
		{Accept: msgpack.FamilyArr, New: func() any { return new(tuplePoint) }},
		{Accept: msgpack.FamilyMap, New: func() any { return new(mapShaped) }},
	}

	v1 := msgpack.Variant{Alts: alts}
	if err := msgpack.Decode(&lc, &v1); err != nil {
		t.Fatalf("Decode arr alt: %v", err)
	}
	tp, ok := v1.Value.(*tuplePoint)
	if !ok || *tp != (tuplePoint{X: 1, Y: 2}) {
		t.Fatalf("expected *tuplePoint{1 2}, got %#v", v1.Value)
	}

	v2 := msgpack.Variant{Alts: alts}
	if err := msgpack.Decode(&lc, &v2); err != nil {
		t.Fatalf("Decode map alt: %v", err)
	}
	ms, ok := v2.Value.(*mapShaped)
	if !ok || *ms != (mapShaped{Name: "box", Age: 7}) {
		t.Fatalf("expected *mapShaped{box 7}, got %#v", v2.Value)
	}
}

func TestVariantAltsPrefersFirstMatchingAlternative(t *testing.T) {
	b := newBuf()
	if err := msgpack.Encode(b, mapShaped{Name: "box", Age: 7}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c := b.Begin()
	defer c.Close()
	lc := c.Light()

	v := msgpack.Variant{Alts: []msgpack.Alt{
		{Accept: msgpack.FamilyMap, New: func() any { return new(mapShaped) }},
		{Accept: msgpack.FamilyMap, New: func() any { return new(otherMapShaped) }},
	}}
	if err := msgpack.Decode(&lc, &v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := v.Value.(*mapShaped); !ok {
		t.Fatalf("expected the first declared alternative (*mapShaped) to win, got %#v", v.Value)
	}
}

func TestVariantAltsRejectsUnmatchedFamily(t *testing.T) {
	b := newBuf()
	if err := msgpack.Encode(b, "oops"); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c := b.Begin()
	defer c.Close()
	lc := c.Light()

	v := msgpack.Variant{Alts: []msgpack.Alt{
		{Accept: msgpack.FamilyMap, New: func() any { return new(mapShaped) }},
	}}
	if err := msgpack.Decode(&lc, &v); !errors.Is(err, tnterr.ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
}

func TestRawSliceCapturesExactBytes(t *testing.T) {
	b := newBuf()
	if err := msgpack.Encode(b, []int{9, 8, 7}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c := b.Begin()
	defer c.Close()
	lc := c.Light()

	var raw msgpack.RawSlice
	if err := msgpack.Decode(&lc, &raw); err != nil {
		t.Fatalf("Decode RawSlice: %v", err)
	}

	b2 := newBuf()
	b2.AppendBytes(raw.Bytes)
	c2 := b2.Begin()
	defer c2.Close()
	lc2 := c2.Light()
	var out []int
	if err := msgpack.Decode(&lc2, &out); err != nil {
		t.Fatalf("Decode captured raw bytes: %v", err)
	}
	if len(out) != 3 || out[0] != 9 || out[1] != 8 || out[2] != 7 {
		t.Fatalf("raw capture round trip mismatch: %#v", out)
	}
}

func TestNeedMoreLeavesCursorPositionUnchanged(t *testing.T) {
	b := newBuf()
	b.AppendBytes([]byte{0xcd, 0x00}) // uint16 tag, only 1 of 2 body bytes
	c := b.Begin()
	defer c.Close()
	lc := c.Light()
	start := lc

	var u uint64
	err := msgpack.Decode(&lc, &u)
	if !errors.Is(err, tnterr.ErrNeedMore) {
		t.Fatalf("expected ErrNeedMore, got %v", err)
	}
	if lc.Sub(&start) != 0 {
		t.Fatalf("cursor should not have advanced on ErrNeedMore")
	}

	b.AppendBytes([]byte{0x05})
	if err := msgpack.Decode(&lc, &u); err != nil {
		t.Fatalf("Decode after more bytes arrived: %v", err)
	}
	if u != 5 {
		t.Fatalf("got %d, want 5", u)
	}
}

func TestBrokenMsgpackTagRejected(t *testing.T) {
	b := newBuf()
	b.AppendBytes([]byte{0xc1})
	c := b.Begin()
	defer c.Close()
	lc := c.Light()

	var v msgpack.Variant
	if err := msgpack.Decode(&lc, &v); !errors.Is(err, tnterr.ErrBrokenMsgpack) {
		t.Fatalf("expected ErrBrokenMsgpack, got %v", err)
	}
}

func TestExtValueRoundTrip(t *testing.T) {
	in := msgpack.ExtValue{Type: 7, Data: []byte{1, 2, 3, 4}}
	var out msgpack.ExtValue
	roundTrip(t, in, &out)
	if out.Type != in.Type || !bytes.Equal(out.Data, in.Data) {
		t.Fatalf("ext round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestArrMapExtConstructors(t *testing.T) {
	var outArr msgpack.Arr
	roundTrip(t, msgpack.Arr{int64(1), int64(2)}, &outArr)
	// Non-negative ints are encoded in the uint family, which decodes
	// into an untyped slot as uint64.
	if len(outArr) != 2 || outArr[0] != uint64(1) || outArr[1] != uint64(2) {
		t.Fatalf("Arr round trip mismatch: got %#v", outArr)
	}

	var outMap msgpack.Map
	roundTrip(t, msgpack.Map{"a": int64(1)}, &outMap)
	if len(outMap) != 1 || outMap["a"] != uint64(1) {
		t.Fatalf("Map round trip mismatch: got %#v", outMap)
	}

	in := msgpack.Ext(7, []byte{1, 2, 3, 4})
	var out msgpack.ExtValue
	roundTrip(t, in, &out)
	if out.Type != in.Type || !bytes.Equal(out.Data, in.Data) {
		t.Fatalf("Ext round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestArrayLengthMismatchIsWrongType(t *testing.T) {
	b := newBuf()
	if err := msgpack.Encode(b, []int{1, 2, 3}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c := b.Begin()
	defer c.Close()
	lc := c.Light()

	var out [2]int
	if err := msgpack.Decode(&lc, &out); !errors.Is(err, tnterr.ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
}
