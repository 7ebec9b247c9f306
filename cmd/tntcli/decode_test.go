// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/msgpack"
	"github.com/tarantool-go/tntgo/pool"
)

func TestDecodeBodyRoundTrip(t *testing.T) {
	p := pool.New()
	buf := buffer.New(p)
	want := map[uint64]any{0x30: []any{"ok"}}
	require.NoError(t, msgpack.Encode(buf, want))

	raw := make([]byte, 0)
	start := buf.Begin()
	end := buf.End()
	iov := buf.GetIOV(start.Pos(), end.Pos(), 0)
	start.Close()
	end.Close()
	for _, chunk := range iov {
		raw = append(raw, chunk...)
	}

	got, err := decodeBody(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
