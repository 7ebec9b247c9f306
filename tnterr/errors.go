// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tnterr collects the sentinel error values shared by every layer
// of tntgo, from the slab pool up to the connector.
//
// Sentinels are designed to be matched with errors.Is; layers that need to
// attach context wrap them with fmt.Errorf("...: %w", sentinel) or, where a
// stack trace is useful for a caller debugging a live connection,
// github.com/pkg/errors.WithStack.
package tnterr

import "errors"

var (
	// ErrOOM reports that the slab pool could not satisfy an allocation.
	// Per spec, out-of-memory is fatal: the pool that raises it is no
	// longer usable.
	ErrOOM = errors.New("tntgo: out of memory")

	// ErrCursorMismatch reports cursor arithmetic or comparison performed
	// across two different buffers.
	ErrCursorMismatch = errors.New("tntgo: cursor does not belong to this buffer")

	// ErrCursorStale reports use of a heavy cursor after it was closed,
	// detected by its slot being free or reused under a newer generation.
	ErrCursorStale = errors.New("tntgo: cursor generation is stale")

	// ErrNeedMore reports that the decoder reached the end of available
	// bytes before completing the current object. Non-fatal: the
	// decoder's internal cursor is left at the start of the incomplete
	// object and the caller should retry once more bytes arrive.
	ErrNeedMore = errors.New("tntgo: need more bytes")

	// ErrWrongType reports that the encoded family did not match any
	// family accepted at the current destination.
	ErrWrongType = errors.New("tntgo: wrong msgpack type for destination")

	// ErrBrokenMsgpack reports an invalid first byte (0xc1) or another
	// structurally impossible encoding. Terminal for the current frame
	// and for the connection's input stream.
	ErrBrokenMsgpack = errors.New("tntgo: broken msgpack")

	// ErrMaxDepth reports that nested array/map decoding exceeded the
	// configured depth limit. Terminal for the current frame.
	ErrMaxDepth = errors.New("tntgo: maximum nesting depth reached")

	// ErrAborted reports that a user callback asked the decoder to stop.
	ErrAborted = errors.New("tntgo: decode aborted by caller")

	// ErrConnect reports a transport-level dial failure.
	ErrConnect = errors.New("tntgo: connect failed")

	// ErrGreeting reports a malformed or incomplete greeting banner.
	ErrGreeting = errors.New("tntgo: invalid greeting")

	// ErrAuth reports that the server rejected authentication.
	ErrAuth = errors.New("tntgo: authentication rejected")

	// ErrIO reports a transport read/write failure unrelated to framing.
	ErrIO = errors.New("tntgo: i/o error")

	// ErrTimeout reports that a wait deadline elapsed before a response
	// arrived. Soft failure: the request remains in flight.
	ErrTimeout = errors.New("tntgo: wait timed out")

	// ErrClosed reports that the connection was closed and can no longer
	// serve requests; Reset does not reopen it.
	ErrClosed = errors.New("tntgo: connection closed")

	// ErrWouldBlock mirrors POSIX EAGAIN/EWOULDBLOCK: the operation would
	// block and must be retried once the stream signals readiness again.
	// This is the sentinel the reactor's non-blocking read/write retry
	// loop is built around (see reactor.Reactor.Wait).
	ErrWouldBlock = errors.New("tntgo: would block")

	// ErrNoSuchSync reports that TakeResponse/ForgetSync was called with
	// a sync id that is not pending on this connection: never issued,
	// already taken, or already forgotten.
	ErrNoSuchSync = errors.New("tntgo: no such sync id")
)
