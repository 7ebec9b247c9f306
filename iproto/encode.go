// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iproto

import (
	"encoding/binary"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/msgpack"
)

// sizePrefixLen is the width of the frame's length prefix: msgpack's
// fixed-width uint32 tag (0xce) plus 4 big-endian bytes, never the
// variable-width shortest encoding, so it can be backfilled once the
// body's length is known without having to shift anything after it
// (spec §4.7).
const sizePrefixLen = 5

// EncodeRequest appends one complete IPROTO request frame — size prefix,
// header map, body map — to buf. body is encoded with msgpack.Encode, so
// it may be a map[uint64]any, a msgpack.Rule, or any container-shape-
// inferred Go value; the concrete request-family wrappers in package
// client build exactly such a map per spec §6's body key table.
func EncodeRequest(buf *buffer.Buffer, code uint64, sync uint64, body any) error {
	sizeAt := buf.AdvanceBack(sizePrefixLen)

	header := map[uint64]any{KeyCode: code, KeySync: sync}
	if err := msgpack.Encode(buf, header); err != nil {
		return err
	}
	if err := msgpack.Encode(buf, body); err != nil {
		return err
	}

	start := buf.CursorAt(sizeAt)
	defer start.Close()
	end := buf.End()
	defer end.Close()
	// The size covers the header and body only, not the prefix itself.
	frameLen := end.Sub(start) - sizePrefixLen

	prefix := buf.CursorAt(sizeAt)
	defer prefix.Close()
	var tmp [5]byte
	tmp[0] = 0xce
	binary.BigEndian.PutUint32(tmp[1:], uint32(frameLen))
	prefix.WriteBytes(tmp[:])
	return nil
}
