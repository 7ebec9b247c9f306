// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/msgpack"
	"github.com/tarantool-go/tntgo/pool"
)

// decodeBody decodes a response's raw msgpack body map for display.
// It is intentionally generic (map[uint64]any) rather than typed per
// request family: tntcli is a debugging aid, not a typed ORM.
func decodeBody(raw []byte) (map[uint64]any, error) {
	p := pool.New()
	buf := buffer.New(p)
	buf.AppendBytes(raw)
	cur := buf.Begin()
	defer cur.Close()
	lc := cur.Light()

	var body map[uint64]any
	if err := msgpack.Decode(&lc, &body); err != nil {
		return nil, err
	}
	return body, nil
}
