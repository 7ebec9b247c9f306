// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer

import "github.com/tarantool-go/tntgo/pool"

// blockNode is one link in a buffer's doubly-linked chain of blocks (spec
// §3: "Blocks of one buffer form a doubly-linked list"). The block itself
// carries no list pointers; those live here so the pool-owned Block stays
// a plain byte-carrying value with nothing but its monotonic ID.
type blockNode struct {
	blk        *pool.Block
	prev, next *blockNode
}

func (n *blockNode) id() uint64 { return n.blk.ID }

func (n *blockNode) data() []byte { return n.blk.Bytes() }

// blockCap is the usable capacity of one block, BlockSize bytes.
const blockCap = pool.BlockSize
