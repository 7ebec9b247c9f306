// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgpack

import "github.com/tarantool-go/tntgo/buffer"

// Family wrapping (spec §4.3): a Go value that is otherwise ambiguous
// about which wire family it should take — is this int meant to be a
// msgpack uint or a float? should this []byte be str or bin? — is pinned
// to a specific family by wrapping it in one of these types before
// passing it to Encode. Unwrapped values fall back to container-shape
// inference in encode.go.
type (
	// Nil encodes as the msgpack nil object regardless of what it wraps.
	Nil struct{}
	// Bool pins boolean family encoding.
	Bool bool
	// Uint pins unsigned-integer family encoding (shortest form).
	Uint uint64
	// Int pins signed-integer family encoding (shortest form).
	Int int64
	// Float32 pins single-precision float family encoding.
	Float32 float32
	// Float64 pins double-precision float family encoding.
	Float64 float64
	// Str pins the UTF-8 string family, as opposed to Bin.
	Str string
	// Bin pins the raw-bytes family, as opposed to Str.
	Bin []byte
	// Arr pins array-family encoding, equivalent to passing a bare
	// []any through container-shape inference; it exists so every
	// family has an explicit pin, matching Str/Bin, for callers (e.g.
	// a Variant Alt) that want to declare "array" without relying on
	// inference picking it.
	Arr []any
	// Map pins string-keyed map-family encoding, equivalent to a bare
	// map[string]any through inference; see Arr's doc comment.
	Map map[string]any
)

// ExtValue is an application-defined extension object: a type byte plus
// opaque payload bytes, passed through uninterpreted (spec §4.6's ext
// family; Tarantool does not use ext types on the wire today, but the
// family exists for forward compatibility with servers that do).
type ExtValue struct {
	Type int8
	Data []byte
}

// Ext constructs an ExtValue, the functional-constructor counterpart to
// Nil{}/Bool(x)/Uint(x)/.../Arr(x)/Map(x) for the one family whose wire
// shape (a type byte plus a length) doesn't fit a single-field type
// conversion.
func Ext(t int8, data []byte) ExtValue { return ExtValue{Type: t, Data: data} }

// Raw is a pre-encoded, already-valid MessagePack byte string that is
// spliced verbatim into the output instead of being re-encoded. It
// grounds the original's "tracked range" / raw passthrough facility
// (spec §4.3): building an IPROTO body that embeds an opaque, previously
// serialized tuple without paying to decode-then-re-encode it. The
// decode-side counterpart that captures (rather than emits) raw bytes is
// RawSlice, below.
type Raw []byte

// RawSlice captures the exact wire bytes of the next complete object,
// without interpreting them, by recording the cursor positions that
// bracket it. Use it as a Decode destination when a caller wants to
// forward an object (e.g. one tuple inside a SELECT response) without
// paying to materialize it into a Go value.
type RawSlice struct {
	Bytes []byte
}

func encodeWrapped(b *buffer.Buffer, v any) (bool, error) {
	switch x := v.(type) {
	case Nil:
		encodeNil(b)
	case Bool:
		encodeBool(b, bool(x))
	case Uint:
		encodeUint(b, uint64(x))
	case Int:
		encodeInt(b, int64(x))
	case Float32:
		encodeFloat32(b, float32(x))
	case Float64:
		encodeFloat64(b, float64(x))
	case Str:
		encodeStr(b, string(x))
	case Bin:
		encodeBin(b, []byte(x))
	case Arr:
		if err := Encode(b, []any(x)); err != nil {
			return true, err
		}
	case Map:
		if err := Encode(b, map[string]any(x)); err != nil {
			return true, err
		}
	case ExtValue:
		encodeExtHeader(b, x.Type, len(x.Data))
		b.AppendBytes(x.Data)
	case Raw:
		b.AppendBytes([]byte(x))
	default:
		return false, nil
	}
	return true, nil
}

// decodeWrapped attempts to decode into one of the family-wrapping
// pointer types. It reports handled=false when dst is not one of them,
// so the caller can fall through to shape inference.
func decodeWrapped(lc *buffer.LightCursor, dst any) (handled bool, err error) {
	switch x := dst.(type) {
	case *Nil:
		err = decodeNil(lc)
		*x = Nil{}
	case *Bool:
		var v bool
		v, err = decodeBool(lc)
		*x = Bool(v)
	case *Uint:
		var v uint64
		v, err = decodeUintHeader(lc)
		*x = Uint(v)
	case *Int:
		var v int64
		v, err = decodeIntHeader(lc)
		*x = Int(v)
	case *Float32:
		var v float64
		v, err = decodeFloat64(lc)
		*x = Float32(v)
	case *Float64:
		var v float64
		v, err = decodeFloat64(lc)
		*x = Float64(v)
	case *Str:
		var v string
		v, err = decodeStr(lc)
		*x = Str(v)
	case *Bin:
		var v []byte
		v, err = decodeBin(lc)
		*x = Bin(v)
	case *Arr:
		var v []any
		err = NewDecoder(lc).Decode(&v)
		*x = Arr(v)
	case *Map:
		var v map[string]any
		err = NewDecoder(lc).Decode(&v)
		*x = Map(v)
	case *ExtValue:
		save := *lc
		n, extType, e := decodeLenHeader(lc, FamilyExt)
		if e != nil {
			err = e
			break
		}
		data, e := readN(lc, n)
		if e != nil {
			*lc = save
			err = e
			break
		}
		x.Type, x.Data = extType, data
		err = nil
	case *RawSlice:
		save := *lc
		if e := skip(lc, maxDepth); e != nil {
			*lc = save
			err = e
			break
		}
		raw, e := spanBytes(save, *lc)
		if e != nil {
			*lc = save
			err = e
			break
		}
		x.Bytes = raw
	default:
		return false, nil
	}
	return true, err
}

// maxDepth bounds recursive container nesting during Skip/RawSlice
// capture, matching spec §4.4's ABORTED_BY_USER-adjacent MAX_DEPTH_REACHED
// guard against pathological input.
const maxDepth = 64

// spanBytes materializes the bytes between two LightCursor positions
// taken from the same buffer, used by RawSlice to capture exactly the
// wire representation of one object.
func spanBytes(from, to buffer.LightCursor) ([]byte, error) {
	n := to.Sub(&from)
	if n < 0 {
		return nil, ErrInternal
	}
	out := make([]byte, n)
	if err := from.ReadBytes(out); err != nil {
		return nil, err
	}
	return out, nil
}
