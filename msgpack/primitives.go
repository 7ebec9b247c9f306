// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgpack

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/tnterr"
)

// The encode side always appends to the tail of a buffer.Buffer, which
// never runs short (it grows on demand), so encodeXxx functions have no
// error return. The decode side reads from a buffer.LightCursor, which
// can legitimately run out of bytes mid-frame (spec §4.4's NEED_MORE);
// every decodeXxx function restores lc to its entry position before
// returning tnterr.ErrNeedMore, so a caller can retry once more bytes
// have arrived without re-parsing what it already consumed.

func putTag(b *buffer.Buffer, tag byte) {
	b.AppendBytes([]byte{tag})
}

// encodeUint writes v using the shortest unsigned encoding.
func encodeUint(b *buffer.Buffer, v uint64) {
	switch {
	case v <= tagPosFixintMax:
		putTag(b, byte(v))
	case v <= math.MaxUint8:
		putTag(b, tagUint8)
		b.AppendBytes([]byte{byte(v)})
	case v <= math.MaxUint16:
		putTag(b, tagUint16)
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(v))
		b.AppendBytes(buf[:])
	case v <= math.MaxUint32:
		putTag(b, tagUint32)
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(v))
		b.AppendBytes(buf[:])
	default:
		putTag(b, tagUint64)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], v)
		b.AppendBytes(buf[:])
	}
}

// encodeInt writes v using the shortest signed encoding, falling back to
// encodeUint's fixint/positive path when v is non-negative.
func encodeInt(b *buffer.Buffer, v int64) {
	if v >= 0 {
		encodeUint(b, uint64(v))
		return
	}
	switch {
	case v >= -32:
		putTag(b, byte(int8(v)))
	case v >= math.MinInt8:
		putTag(b, tagInt8)
		b.AppendBytes([]byte{byte(int8(v))})
	case v >= math.MinInt16:
		putTag(b, tagInt16)
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(int16(v)))
		b.AppendBytes(buf[:])
	case v >= math.MinInt32:
		putTag(b, tagInt32)
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(int32(v)))
		b.AppendBytes(buf[:])
	default:
		putTag(b, tagInt64)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		b.AppendBytes(buf[:])
	}
}

func encodeNil(b *buffer.Buffer)        { putTag(b, tagNil) }
func encodeBool(b *buffer.Buffer, v bool) {
	if v {
		putTag(b, tagTrue)
	} else {
		putTag(b, tagFalse)
	}
}

func encodeFloat32(b *buffer.Buffer, v float32) {
	putTag(b, tagFloat32)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(v))
	b.AppendBytes(buf[:])
}

func encodeFloat64(b *buffer.Buffer, v float64) {
	putTag(b, tagFloat64)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	b.AppendBytes(buf[:])
}

func encodeStrHeader(b *buffer.Buffer, n int) {
	switch {
	case n <= 31:
		putTag(b, byte(tagFixstrMin|n))
	case n <= math.MaxUint8:
		putTag(b, tagStr8)
		b.AppendBytes([]byte{byte(n)})
	case n <= math.MaxUint16:
		putTag(b, tagStr16)
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(n))
		b.AppendBytes(buf[:])
	default:
		putTag(b, tagStr32)
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(n))
		b.AppendBytes(buf[:])
	}
}

func encodeStr(b *buffer.Buffer, s string) {
	encodeStrHeader(b, len(s))
	b.AppendBytes([]byte(s))
}

func encodeBinHeader(b *buffer.Buffer, n int) {
	switch {
	case n <= math.MaxUint8:
		putTag(b, tagBin8)
		b.AppendBytes([]byte{byte(n)})
	case n <= math.MaxUint16:
		putTag(b, tagBin16)
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(n))
		b.AppendBytes(buf[:])
	default:
		putTag(b, tagBin32)
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(n))
		b.AppendBytes(buf[:])
	}
}

func encodeBin(b *buffer.Buffer, v []byte) {
	encodeBinHeader(b, len(v))
	b.AppendBytes(v)
}

func encodeArrayHeader(b *buffer.Buffer, n int) {
	switch {
	case n <= 15:
		putTag(b, byte(tagFixarrMin|n))
	case n <= math.MaxUint16:
		putTag(b, tagArr16)
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(n))
		b.AppendBytes(buf[:])
	default:
		putTag(b, tagArr32)
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(n))
		b.AppendBytes(buf[:])
	}
}

func encodeMapHeader(b *buffer.Buffer, n int) {
	switch {
	case n <= 15:
		putTag(b, byte(tagFixmapMin|n))
	case n <= math.MaxUint16:
		putTag(b, tagMap16)
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(n))
		b.AppendBytes(buf[:])
	default:
		putTag(b, tagMap32)
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(n))
		b.AppendBytes(buf[:])
	}
}

func encodeExtHeader(b *buffer.Buffer, extType int8, n int) {
	switch n {
	case 1:
		putTag(b, tagFixext1)
	case 2:
		putTag(b, tagFixext2)
	case 4:
		putTag(b, tagFixext4)
	case 8:
		putTag(b, tagFixext8)
	case 16:
		putTag(b, tagFixext16)
	default:
		switch {
		case n <= math.MaxUint8:
			putTag(b, tagExt8)
			b.AppendBytes([]byte{byte(n)})
		case n <= math.MaxUint16:
			putTag(b, tagExt16)
			var buf [2]byte
			binary.BigEndian.PutUint16(buf[:], uint16(n))
			b.AppendBytes(buf[:])
		default:
			putTag(b, tagExt32)
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], uint32(n))
			b.AppendBytes(buf[:])
		}
	}
	b.AppendBytes([]byte{byte(extType)})
}

// --- decode primitives, operating on a restorable LightCursor --------------

func readN(lc *buffer.LightCursor, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := lc.ReadBytes(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// peekTag reports the next tag byte without consuming it.
func peekTag(lc *buffer.LightCursor) (byte, error) {
	save := *lc
	buf, err := readN(lc, 1)
	*lc = save
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// decodeUintHeader decodes an integer-family object and widens it to
// uint64. It rejects negative values (callers wanting signed semantics
// use decodeIntHeader instead); this matches spec §4.4's "wrong family"
// behavior for a Uint destination reading a negative int.
func decodeUintHeader(lc *buffer.LightCursor) (uint64, error) {
	save := *lc
	tag, err := readTag(lc)
	if err != nil {
		return 0, err
	}
	if tag == tagUint64 {
		// Read directly: values above math.MaxInt64 would turn negative
		// in decodeIntBody's int64 result.
		b, err := readN(lc, 8)
		if err != nil {
			*lc = save
			return 0, err
		}
		return binary.BigEndian.Uint64(b), nil
	}
	v, err := decodeIntBody(lc, tag)
	if err != nil {
		*lc = save
		return 0, err
	}
	if v < 0 {
		*lc = save
		return 0, tnterr.ErrWrongType
	}
	return uint64(v), nil
}

func decodeIntHeader(lc *buffer.LightCursor) (int64, error) {
	save := *lc
	tag, err := readTag(lc)
	if err != nil {
		return 0, err
	}
	v, err := decodeIntBody(lc, tag)
	if err != nil {
		*lc = save
		return 0, err
	}
	return v, nil
}

func readTag(lc *buffer.LightCursor) (byte, error) {
	buf, err := readN(lc, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// decodeIntBody decodes the integer body following an already-consumed
// tag byte. On a need-more failure partway through a multi-byte body, the
// caller (decodeUintHeader/decodeIntHeader) is responsible for restoring
// lc since this function only rewinds its own reads, not the tag byte.
func decodeIntBody(lc *buffer.LightCursor, tag byte) (int64, error) {
	switch {
	case tag <= tagPosFixintMax:
		return int64(tag), nil
	case tag >= tagNegFixintMin:
		return int64(int8(tag)), nil
	}
	switch tag {
	case tagUint8:
		b, err := readN(lc, 1)
		if err != nil {
			return 0, err
		}
		return int64(b[0]), nil
	case tagUint16:
		b, err := readN(lc, 2)
		if err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint16(b)), nil
	case tagUint32:
		b, err := readN(lc, 4)
		if err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint32(b)), nil
	case tagUint64:
		b, err := readN(lc, 8)
		if err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	case tagInt8:
		b, err := readN(lc, 1)
		if err != nil {
			return 0, err
		}
		return int64(int8(b[0])), nil
	case tagInt16:
		b, err := readN(lc, 2)
		if err != nil {
			return 0, err
		}
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case tagInt32:
		b, err := readN(lc, 4)
		if err != nil {
			return 0, err
		}
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case tagInt64:
		b, err := readN(lc, 8)
		if err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	case tagNeverUsed:
		return 0, tnterr.ErrBrokenMsgpack
	default:
		return 0, tnterr.ErrWrongType
	}
}

func decodeNil(lc *buffer.LightCursor) error {
	save := *lc
	tag, err := readTag(lc)
	if err != nil {
		return err
	}
	if tag == tagNeverUsed {
		*lc = save
		return tnterr.ErrBrokenMsgpack
	}
	if tag != tagNil {
		*lc = save
		return tnterr.ErrWrongType
	}
	return nil
}

func decodeBool(lc *buffer.LightCursor) (bool, error) {
	save := *lc
	tag, err := readTag(lc)
	if err != nil {
		return false, err
	}
	switch tag {
	case tagTrue:
		return true, nil
	case tagFalse:
		return false, nil
	case tagNeverUsed:
		*lc = save
		return false, tnterr.ErrBrokenMsgpack
	default:
		*lc = save
		return false, tnterr.ErrWrongType
	}
}

func decodeFloat64(lc *buffer.LightCursor) (float64, error) {
	save := *lc
	tag, err := readTag(lc)
	if err != nil {
		return 0, err
	}
	switch tag {
	case tagFloat32:
		b, err := readN(lc, 4)
		if err != nil {
			*lc = save
			return 0, err
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	case tagFloat64:
		b, err := readN(lc, 8)
		if err != nil {
			*lc = save
			return 0, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	default:
		// Tarantool and the wire format permit an integer where a
		// double is expected in several RPC replies; widen it.
		v, err := decodeIntBody(lc, tag)
		if err != nil {
			*lc = save
			if errors.Is(err, tnterr.ErrBrokenMsgpack) {
				return 0, err
			}
			return 0, tnterr.ErrWrongType
		}
		return float64(v), nil
	}
}

// decodeLenHeader decodes a length-prefixed family (str/bin/arr/map/ext)
// and returns the element/byte count. For ext families it also returns
// the ext type byte.
func decodeLenHeader(lc *buffer.LightCursor, want Family) (n int, extType int8, err error) {
	save := *lc
	tag, err := readTag(lc)
	if err != nil {
		return 0, 0, err
	}
	fail := func(e error) (int, int8, error) {
		*lc = save
		return 0, 0, e
	}
	switch {
	case tag >= tagFixstrMin && tag <= tagFixstrMax && want.Has(FamilyStr):
		return int(tag & 0x1f), 0, nil
	case tag >= tagFixarrMin && tag <= tagFixarrMax && want.Has(FamilyArr):
		return int(tag & 0x0f), 0, nil
	case tag >= tagFixmapMin && tag <= tagFixmapMax && want.Has(FamilyMap):
		return int(tag & 0x0f), 0, nil
	}
	if fam := familyOfTag(tag); fam != FamilyNone && !want.Has(fam) {
		return fail(tnterr.ErrWrongType)
	}
	switch tag {
	case tagStr8:
		b, e := readN(lc, 1)
		if e != nil {
			return fail(e)
		}
		return int(b[0]), 0, nil
	case tagStr16:
		b, e := readN(lc, 2)
		if e != nil {
			return fail(e)
		}
		return int(binary.BigEndian.Uint16(b)), 0, nil
	case tagStr32:
		b, e := readN(lc, 4)
		if e != nil {
			return fail(e)
		}
		return int(binary.BigEndian.Uint32(b)), 0, nil
	case tagBin8:
		b, e := readN(lc, 1)
		if e != nil {
			return fail(e)
		}
		return int(b[0]), 0, nil
	case tagBin16:
		b, e := readN(lc, 2)
		if e != nil {
			return fail(e)
		}
		return int(binary.BigEndian.Uint16(b)), 0, nil
	case tagBin32:
		b, e := readN(lc, 4)
		if e != nil {
			return fail(e)
		}
		return int(binary.BigEndian.Uint32(b)), 0, nil
	case tagArr16:
		b, e := readN(lc, 2)
		if e != nil {
			return fail(e)
		}
		return int(binary.BigEndian.Uint16(b)), 0, nil
	case tagArr32:
		b, e := readN(lc, 4)
		if e != nil {
			return fail(e)
		}
		return int(binary.BigEndian.Uint32(b)), 0, nil
	case tagMap16:
		b, e := readN(lc, 2)
		if e != nil {
			return fail(e)
		}
		return int(binary.BigEndian.Uint16(b)), 0, nil
	case tagMap32:
		b, e := readN(lc, 4)
		if e != nil {
			return fail(e)
		}
		return int(binary.BigEndian.Uint32(b)), 0, nil
	case tagFixext1, tagFixext2, tagFixext4, tagFixext8, tagFixext16:
		n := map[byte]int{tagFixext1: 1, tagFixext2: 2, tagFixext4: 4, tagFixext8: 8, tagFixext16: 16}[tag]
		b, e := readN(lc, 1)
		if e != nil {
			return fail(e)
		}
		return n, int8(b[0]), nil
	case tagExt8:
		b, e := readN(lc, 1)
		if e != nil {
			return fail(e)
		}
		t, e := readN(lc, 1)
		if e != nil {
			return fail(e)
		}
		return int(b[0]), int8(t[0]), nil
	case tagExt16:
		b, e := readN(lc, 2)
		if e != nil {
			return fail(e)
		}
		t, e := readN(lc, 1)
		if e != nil {
			return fail(e)
		}
		return int(binary.BigEndian.Uint16(b)), int8(t[0]), nil
	case tagExt32:
		b, e := readN(lc, 4)
		if e != nil {
			return fail(e)
		}
		t, e := readN(lc, 1)
		if e != nil {
			return fail(e)
		}
		return int(binary.BigEndian.Uint32(b)), int8(t[0]), nil
	case tagNeverUsed:
		return fail(tnterr.ErrBrokenMsgpack)
	default:
		return fail(tnterr.ErrWrongType)
	}
}

func decodeStr(lc *buffer.LightCursor) (string, error) {
	save := *lc
	n, _, err := decodeLenHeader(lc, FamilyStr)
	if err != nil {
		return "", err
	}
	b, err := readN(lc, n)
	if err != nil {
		*lc = save
		return "", err
	}
	return string(b), nil
}

func decodeBin(lc *buffer.LightCursor) ([]byte, error) {
	save := *lc
	n, _, err := decodeLenHeader(lc, FamilyBin)
	if err != nil {
		return nil, err
	}
	b, err := readN(lc, n)
	if err != nil {
		*lc = save
		return nil, err
	}
	return b, nil
}

// skip discards one complete MessagePack object starting at lc, honoring
// depth to bound recursive container nesting (spec §4.4's MAX_DEPTH
// error for pathological input).
func skip(lc *buffer.LightCursor, depth int) error {
	if depth <= 0 {
		return tnterr.ErrMaxDepth
	}
	save := *lc
	tag, err := peekTag(lc)
	if err != nil {
		return err
	}
	fam := familyOfTag(tag)
	switch fam {
	case FamilyNil, FamilyBool:
		_, _ = readTag(lc)
		return nil
	case FamilyUint, FamilyInt:
		if _, err := decodeIntHeader(lc); err != nil {
			*lc = save
			return err
		}
		return nil
	case FamilyFloat32, FamilyFloat64:
		if _, err := decodeFloat64(lc); err != nil {
			*lc = save
			return err
		}
		return nil
	case FamilyStr:
		if _, err := decodeStr(lc); err != nil {
			*lc = save
			return err
		}
		return nil
	case FamilyBin:
		if _, err := decodeBin(lc); err != nil {
			*lc = save
			return err
		}
		return nil
	case FamilyExt:
		n, _, err := decodeLenHeader(lc, FamilyExt)
		if err != nil {
			*lc = save
			return err
		}
		if _, err := readN(lc, n); err != nil {
			*lc = save
			return err
		}
		return nil
	case FamilyArr:
		n, _, err := decodeLenHeader(lc, FamilyArr)
		if err != nil {
			*lc = save
			return err
		}
		for i := 0; i < n; i++ {
			if err := skip(lc, depth-1); err != nil {
				*lc = save
				return err
			}
		}
		return nil
	case FamilyMap:
		n, _, err := decodeLenHeader(lc, FamilyMap)
		if err != nil {
			*lc = save
			return err
		}
		for i := 0; i < n; i++ {
			if err := skip(lc, depth-1); err != nil {
				*lc = save
				return err
			}
			if err := skip(lc, depth-1); err != nil {
				*lc = save
				return err
			}
		}
		return nil
	default:
		*lc = save
		return tnterr.ErrBrokenMsgpack
	}
}
