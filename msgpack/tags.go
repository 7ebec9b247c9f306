// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgpack

// MessagePack format tags, https://github.com/msgpack/msgpack/blob/master/spec.md.
const (
	tagPosFixintMax = 0x7f
	tagFixmapMin    = 0x80
	tagFixmapMax    = 0x8f
	tagFixarrMin    = 0x90
	tagFixarrMax    = 0x9f
	tagFixstrMin    = 0xa0
	tagFixstrMax    = 0xbf

	tagNil       = 0xc0
	tagNeverUsed = 0xc1
	tagFalse     = 0xc2
	tagTrue  = 0xc3

	tagBin8  = 0xc4
	tagBin16 = 0xc5
	tagBin32 = 0xc6

	tagExt8  = 0xc7
	tagExt16 = 0xc8
	tagExt32 = 0xc9

	tagFloat32 = 0xca
	tagFloat64 = 0xcb

	tagUint8  = 0xcc
	tagUint16 = 0xcd
	tagUint32 = 0xce
	tagUint64 = 0xcf

	tagInt8  = 0xd0
	tagInt16 = 0xd1
	tagInt32 = 0xd2
	tagInt64 = 0xd3

	tagFixext1  = 0xd4
	tagFixext2  = 0xd5
	tagFixext4  = 0xd6
	tagFixext8  = 0xd7
	tagFixext16 = 0xd8

	tagStr8  = 0xd9
	tagStr16 = 0xda
	tagStr32 = 0xdb

	tagArr16 = 0xdc
	tagArr32 = 0xdd

	tagMap16 = 0xde
	tagMap32 = 0xdf

	tagNegFixintMin = 0xe0
)
