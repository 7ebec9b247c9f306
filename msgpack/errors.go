// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgpack

import "errors"

// ErrInternal signals a codec invariant violation (e.g. a negative byte
// span while capturing a RawSlice) rather than a problem with the wire
// data itself; it should never surface from correct caller usage.
var ErrInternal = errors.New("msgpack: internal invariant violation")
