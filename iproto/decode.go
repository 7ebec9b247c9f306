// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iproto

import (
	"fmt"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/msgpack"
	"github.com/tarantool-go/tntgo/tnterr"
)

// DecodeResponse decodes one complete IPROTO response frame starting at
// cur. If the frame has not fully arrived yet it returns
// tnterr.ErrNeedMore and leaves cur exactly where it was (spec §4.7),
// so the caller's read loop can simply retry once more bytes land in
// the input buffer. On success cur is advanced past the whole frame.
func DecodeResponse(cur *buffer.Cursor) (Response, error) {
	start := cur.Light()

	probe := start
	size, err := decodeFrameSize(&probe)
	if err != nil {
		return Response{}, err
	}

	// Confirm the whole frame has arrived before decoding any of it;
	// decoding only the size prefix and then blocking mid-header would
	// otherwise leave no way to "un-consume" a partially decoded header
	// on the next retry.
	avail := probe
	if err := avail.ReadBytes(make([]byte, size)); err != nil {
		return Response{}, err
	}

	lc := probe
	var header map[uint64]any
	if err := msgpack.Decode(&lc, &header); err != nil {
		return Response{}, err
	}
	var bodyRaw msgpack.RawSlice
	if err := msgpack.Decode(&lc, &bodyRaw); err != nil {
		return Response{}, err
	}

	resp := Response{
		Header: Header{
			Code:     asUint64(header[KeyCode]),
			Sync:     asUint64(header[KeySync]),
			SchemaID: asUint64(header[KeySchemaID]),
		},
		Body: bodyRaw.Bytes,
	}
	cur.Advance(int(lc.Sub(&start)))
	return resp, nil
}

func asUint64(v any) uint64 {
	u, _ := v.(uint64)
	return u
}

// decodeFrameSize decodes the 5-byte length prefix (spec §4.7: always a
// fixed-width msgpack uint32, never the shortest encoding, so the
// receiver can size its read without a second round trip).
func decodeFrameSize(lc *buffer.LightCursor) (int, error) {
	var size uint64
	if err := msgpack.Decode(lc, &size); err != nil {
		return 0, err
	}
	if size > 1<<31 {
		return 0, fmt.Errorf("%w: frame size %d implausibly large", tnterr.ErrBrokenMsgpack, size)
	}
	return int(size), nil
}
