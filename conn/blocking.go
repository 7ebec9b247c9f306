// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package conn

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/iproto"
	"github.com/tarantool-go/tntgo/pool"
	"github.com/tarantool-go/tntgo/tnterr"
)

// BlockingConnection is Connection's counterpart for streams that
// cannot be driven by the raw-fd epoll reactor: chiefly *tls.Conn,
// since crypto/tls terminates the TLS record layer itself and exposes
// no fd a reactor could poll. It uses one dedicated background
// goroutine blocking-reading rw and a mutex to publish decoded
// responses, trading the primary Connection's single-goroutine
// confinement for ordinary goroutine-safety: SendRequest and Wait may
// be called from any goroutine.
type BlockingConnection struct {
	rw   io.ReadWriteCloser
	pool *pool.Pool

	writeMu sync.Mutex

	mu        sync.Mutex
	in        *buffer.Buffer
	decodedAt *buffer.Cursor
	pending   map[uint64]*pending
	nextSync  uint64
	readErr   error
	closed    bool

	requestsTotal atomic.Uint64
	inFlight      atomic.Int64
	errorsTotal   atomic.Uint64

	greeting iproto.Greeting
}

// NewBlocking wraps rw (already past Handshake) for request/response
// traffic driven by a background reader goroutine.
func NewBlocking(rw io.ReadWriteCloser, p *pool.Pool, greeting iproto.Greeting) *BlockingConnection {
	in := buffer.New(p)
	c := &BlockingConnection{
		rw:       rw,
		pool:     p,
		in:       in,
		pending:  make(map[uint64]*pending),
		greeting: greeting,
	}
	c.decodedAt = in.Begin()
	go c.readLoop()
	return c
}

func (c *BlockingConnection) readLoop() {
	var scratch [32 * 1024]byte
	for {
		n, err := c.rw.Read(scratch[:])
		if n > 0 {
			c.mu.Lock()
			c.in.AppendBytes(scratch[:n])
			c.decodeLocked()
			c.mu.Unlock()
		}
		if err != nil {
			c.errorsTotal.Add(1)
			c.mu.Lock()
			if c.readErr == nil {
				c.readErr = errors.WithStack(fmt.Errorf("%w: %v", tnterr.ErrIO, err))
			}
			c.mu.Unlock()
			return
		}
	}
}

func (c *BlockingConnection) decodeLocked() {
	for {
		resp, err := iproto.DecodeResponse(c.decodedAt)
		if err != nil {
			return
		}
		if p, ok := c.pending[resp.Header.Sync]; ok {
			p.resp = resp
			p.ready = true
		}
	}
}

// SendRequest frames and writes code/body synchronously; it blocks
// until the whole frame has been written (or fails).
func (c *BlockingConnection) SendRequest(code uint64, body any) (uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, tnterr.ErrClosed
	}
	sync := c.nextSync
	c.nextSync++
	c.pending[sync] = &pending{}
	c.mu.Unlock()
	c.requestsTotal.Add(1)
	c.inFlight.Add(1)

	p := buffer.New(c.pool)
	if err := iproto.EncodeRequest(p, code, sync, body); err != nil {
		return 0, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for !p.IsEmpty() {
		start := p.Begin()
		startPos := start.Pos()
		start.Close()
		end := p.End()
		endPos := end.Pos()
		end.Close()
		iov := p.GetIOV(startPos, endPos, maxIOV)
		written := 0
		for _, chunk := range iov {
			n, werr := c.rw.Write(chunk)
			written += n
			if werr != nil {
				_ = p.DropFront(written)
				return sync, fmt.Errorf("%w: %v", tnterr.ErrIO, werr)
			}
		}
		if err := p.DropFront(written); err != nil {
			return sync, fmt.Errorf("%w: %v", tnterr.ErrIO, err)
		}
	}
	return sync, nil
}

// Wait polls (every 5ms) until sync's response has arrived, ctx is
// done, or the background reader records a fatal error. Polling, not
// a condvar, is deliberate here: this is the fallback TLS path, not
// the hot path the epoll Connection is optimized for.
func (c *BlockingConnection) Wait(ctx context.Context, sync uint64) (iproto.Response, error) {
	for {
		c.mu.Lock()
		if p, ok := c.pending[sync]; ok && p.ready {
			delete(c.pending, sync)
			c.mu.Unlock()
			c.inFlight.Add(-1)
			return p.resp, nil
		}
		if c.readErr != nil {
			err := c.readErr
			c.mu.Unlock()
			return iproto.Response{}, err
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return iproto.Response{}, fmt.Errorf("%w: %v", tnterr.ErrTimeout, ctx.Err())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// HasError reports whether the background reader has recorded a fatal
// error.
func (c *BlockingConnection) HasError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr != nil
}

// TakeError returns and clears the recorded fatal error.
func (c *BlockingConnection) TakeError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.readErr
	c.readErr = nil
	return err
}

// Stats returns a snapshot of the connection's request counters, in
// the same shape as Connection.Stats so both connection kinds can feed
// one NewCollector.
func (c *BlockingConnection) Stats() Stats {
	return Stats{
		RequestsTotal: c.requestsTotal.Load(),
		InFlight:      c.inFlight.Load(),
		Errors:        c.errorsTotal.Load(),
	}
}

// Close closes the underlying stream; the background reader goroutine
// exits on its next failed Read.
func (c *BlockingConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.rw.Close()
}
