// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer

// Pos is a position inside a Buffer: a block plus a byte offset inside
// that block. It carries no cursor-list membership of its own; Cursor and
// LightCursor both convert to and from Pos.
//
// offset is always in [0, blockCap]; offset == blockCap only occurs when
// the position is at the very end of the last block of the chain (there
// is no next block to normalize into).
type Pos struct {
	node   *blockNode
	offset int
}

// normPos rolls offset forward into subsequent blocks until it lands
// strictly inside a block, or there is no next block left to roll into.
func normPos(n *blockNode, offset int) Pos {
	for offset >= blockCap && n.next != nil {
		offset -= blockCap
		n = n.next
	}
	return Pos{node: n, offset: offset}
}

// posAdvance returns the position delta bytes after p, rolling across
// block boundaries as needed. The caller must ensure delta bytes of
// capacity actually exist ahead of p.
func posAdvance(p Pos, delta int) Pos {
	return normPos(p.node, p.offset+delta)
}

// posRetreat returns the position delta bytes before p, rolling back
// across block boundaries as needed.
func posRetreat(p Pos, delta int) Pos {
	n, offset := p.node, p.offset-delta
	for offset < 0 && n.prev != nil {
		n = n.prev
		offset += blockCap
	}
	if offset < 0 {
		offset = 0
	}
	return Pos{node: n, offset: offset}
}

// posCompare orders two positions by (block id, offset), exactly as spec
// §4.2 prescribes: block ids increase monotonically along the chain, so
// this is correct even though blocks are not contiguous in memory.
func posCompare(a, b Pos) int {
	switch {
	case a.node.id() < b.node.id():
		return -1
	case a.node.id() > b.node.id():
		return 1
	case a.offset < b.offset:
		return -1
	case a.offset > b.offset:
		return 1
	default:
		return 0
	}
}

// posDistance returns the byte distance from b to a (a - b), walking the
// chain rather than trusting block-id arithmetic: pool-issued block ids
// are globally monotonic but not necessarily contiguous within one
// buffer, so only a chain walk is unconditionally correct.
func posDistance(a, b Pos) int64 {
	if posCompare(a, b) < 0 {
		return -posDistance(b, a)
	}
	if a.node == b.node {
		return int64(a.offset - b.offset)
	}
	var dist int64
	n := b.node
	dist += int64(blockCap - b.offset)
	for n != a.node {
		n = n.next
		if n == a.node {
			dist += int64(a.offset)
			break
		}
		dist += int64(blockCap)
	}
	return dist
}
