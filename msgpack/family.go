// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package msgpack implements a rule-driven MessagePack encoder and decoder
// over github.com/tarantool-go/tntgo/buffer, with no intermediate AST:
// every supported Go value is encoded or decoded directly against buffer
// bytes via one of three polymorphism mechanisms (family wrapping,
// user-declared rules, container-shape inference), selected per value at
// run time by type switches and, for container-shape inference, by
// reflection over the value's type, per spec §4.3.
package msgpack

// Family is a MessagePack type class: nil, bool, int, uint, float, double,
// str, bin, arr, map, ext. It is represented as a bitmask so a
// destination can declare the union of families it accepts (e.g. an
// Optional[T] accepts Nil|T's families; a Variant accepts the union of
// all its alternatives' families), mirroring the original's
// compact::Family / mpp::Family split.
type Family uint16

const (
	FamilyNil Family = 1 << iota
	FamilyBool
	FamilyUint
	FamilyInt
	FamilyFloat32
	FamilyFloat64
	FamilyStr
	FamilyBin
	FamilyArr
	FamilyMap
	FamilyExt
)

const (
	// FamilyAnyInt is the union of the two integer families: shortest
	// encoding picks between them based on signedness and value range.
	FamilyAnyInt = FamilyUint | FamilyInt
	// FamilyAnyFloat is the union of the two floating-point families.
	FamilyAnyFloat = FamilyFloat32 | FamilyFloat64
	// FamilyAnyNumber is every numeric family.
	FamilyAnyNumber = FamilyAnyInt | FamilyAnyFloat
	// FamilyNone accepts nothing; used as the zero value of an empty
	// union during dispatch-table construction.
	FamilyNone Family = 0
	// FamilyAny accepts every family; used by Raw/RawSlice destinations
	// that capture bytes without caring what they decode to.
	FamilyAny Family = FamilyNil | FamilyBool | FamilyAnyNumber | FamilyStr | FamilyBin | FamilyArr | FamilyMap | FamilyExt
)

// Has reports whether f includes the family bit other.
func (f Family) Has(other Family) bool { return f&other != 0 }

// String renders f for diagnostics (e.g. wrong-type error messages).
func (f Family) String() string {
	if f == FamilyNone {
		return "none"
	}
	names := []struct {
		bit  Family
		name string
	}{
		{FamilyNil, "nil"}, {FamilyBool, "bool"}, {FamilyUint, "uint"},
		{FamilyInt, "int"}, {FamilyFloat32, "float"}, {FamilyFloat64, "double"},
		{FamilyStr, "str"}, {FamilyBin, "bin"}, {FamilyArr, "arr"},
		{FamilyMap, "map"}, {FamilyExt, "ext"},
	}
	out := ""
	for _, n := range names {
		if f.Has(n.bit) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	return out
}

// familyOfTag returns the Family of the MessagePack object whose first
// byte is tag. This is the decoder's 256-entry jump table, keyed directly
// by tag rather than by destination type (spec §4.4): every reader
// specialized to a (family, destination-shape) pair first asks this
// function "what did the wire actually send," then checks it against the
// destination's accepted family set.
func familyOfTag(tag byte) Family {
	switch {
	case tag <= 0x7f: // positive fixint
		return FamilyUint
	case tag >= 0xe0: // negative fixint
		return FamilyInt
	case tag >= 0xa0 && tag <= 0xbf: // fixstr
		return FamilyStr
	case tag >= 0x90 && tag <= 0x9f: // fixarray
		return FamilyArr
	case tag >= 0x80 && tag <= 0x8f: // fixmap
		return FamilyMap
	}
	switch tag {
	case tagNil:
		return FamilyNil
	case tagFalse, tagTrue:
		return FamilyBool
	case tagBin8, tagBin16, tagBin32:
		return FamilyBin
	case tagExt8, tagExt16, tagExt32, tagFixext1, tagFixext2, tagFixext4, tagFixext8, tagFixext16:
		return FamilyExt
	case tagFloat32:
		return FamilyFloat32
	case tagFloat64:
		return FamilyFloat64
	case tagUint8, tagUint16, tagUint32, tagUint64:
		return FamilyUint
	case tagInt8, tagInt16, tagInt32, tagInt64:
		return FamilyInt
	case tagStr8, tagStr16, tagStr32:
		return FamilyStr
	case tagArr16, tagArr32:
		return FamilyArr
	case tagMap16, tagMap32:
		return FamilyMap
	}
	return FamilyNone // tagNeverUsed (0xc1): broken msgpack
}
