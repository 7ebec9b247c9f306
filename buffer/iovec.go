// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer

import "net"

// Buffers groups multiple byte slices for vectored I/O, the same shape
// the reactor hands to writev/readv. It is an alias for net.Buffers so a
// GetIOV result can be passed directly to (*net.TCPConn).WriteTo-style
// vectored writes without copying (grounded on iobuf.Buffers = net.Buffers).
type Buffers = net.Buffers

// GetIOV writes up to max {base, len} extents describing [start, end)
// without copying any payload bytes and returns them; the number of
// extents produced is the length of the result. Concatenating the returned slices
// reproduces exactly the buffer content in [start, end); the sum of their
// lengths equals end-start.
func (b *Buffer) GetIOV(start, end Pos, max int) Buffers {
	if max <= 0 {
		max = 1 << 30
	}
	var out Buffers
	node, off := start.node, start.offset
	for len(out) < max {
		var limit int
		if node == end.node {
			limit = end.offset
		} else {
			limit = blockCap
		}
		if limit > off {
			out = append(out, node.data()[off:limit])
		}
		if node == end.node {
			break
		}
		node = node.next
		off = 0
	}
	return out
}
