// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package conn implements a single Tarantool IPROTO connection: request
// encoding, response decoding, and the pending-response table that lets
// a caller fire many requests and collect their responses out of
// order, keyed by IPROTO's sync field (spec.md §4.8).
//
// A Connection is confined to one goroutine (spec.md §5): SendRequest,
// Wait/WaitAny/WaitAll, TakeResponse and the Attach callbacks must all
// be called from the same goroutine. Callers that want several
// connections serviced concurrently run one goroutine (and one
// reactor.Reactor) per group of connections rather than share a single
// Connection across goroutines.
package conn

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/iproto"
	"github.com/tarantool-go/tntgo/pool"
	"github.com/tarantool-go/tntgo/reactor"
	"github.com/tarantool-go/tntgo/tnterr"
	"github.com/tarantool-go/tntgo/tntlog"
)

// maxIOV caps how many extents a single Writev call is given; Linux's
// UIO_MAXIOV is 1024, and handing the kernel more than that fails the
// syscall outright rather than partially succeeding.
const maxIOV = 1024

type pending struct {
	resp  iproto.Response
	ready bool
	err   error
}

// Connection owns one IPROTO socket's input/output buffers and the
// map of in-flight requests. Construct one with New after completing
// Handshake on the same net.Conn.
type Connection struct {
	fd     int
	closer io.Closer

	in  *buffer.Buffer
	out *buffer.Buffer

	// decodedAt is the persistent boundary (spec.md §4.2's "endDecoded")
	// between bytes already handed to a pending response and raw bytes
	// still waiting for a complete frame. It lives for the whole
	// connection lifetime so decoding never restarts from the front.
	decodedAt *buffer.Cursor

	pending  map[uint64]*pending
	nextSync uint64

	refs atomic.Int32

	// Counters backing Stats/NewCollector. Kept as atomics rather than
	// read off len(pending) directly since Stats may be called from a
	// metrics-scrape goroutine other than the one confined to this
	// Connection (spec.md §5).
	requestsTotal atomic.Uint64
	inFlight      atomic.Int64
	errorsTotal   atomic.Uint64

	greeting iproto.Greeting
	closed   bool
	err      error

	log    tntlog.Logger
	rc     syscall.Conn
	handle *reactor.Handle

	wantWrite bool
}

// New wraps an already-handshaken connection (see Handshake) for
// steady-state, non-blocking request/response traffic. rc is typically
// the same *net.TCPConn or *net.UnixConn passed to Handshake; closer
// closes the underlying socket on Connection.Close. All actual reads
// and writes after this point go through raw unix.Read/unix.Writev
// syscalls on rc's fd rather than rc's own Read/Write methods, since
// those route through the Go runtime's netpoller and would fight a
// second, user-space epoll loop registered on the same fd (see
// reactor's package doc).
func New(rc syscall.Conn, closer io.Closer, p *pool.Pool, greeting iproto.Greeting, log tntlog.Logger) (*Connection, error) {
	fd, err := reactor.RawFD(rc)
	if err != nil {
		return nil, errors.Wrap(fmt.Errorf("%w: %v", tnterr.ErrIO, err), "obtaining raw fd")
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, errors.Wrap(fmt.Errorf("%w: %v", tnterr.ErrIO, err), "set nonblocking")
	}

	in := buffer.New(p)
	c := &Connection{
		fd:       fd,
		rc:       rc,
		closer:   closer,
		in:       in,
		out:      buffer.New(p),
		pending:  make(map[uint64]*pending),
		greeting: greeting,
		log:      log,
	}
	c.decodedAt = in.Begin()
	c.refs.Store(1)
	return c, nil
}

// Ref increments the connection's reference count. Mirrors
// original_source's ConnectionImpl::ref/unref: several lightweight
// handles may point at the same Connection (e.g. a client.Connector
// keeping its own slice alongside a caller's copy); the underlying
// socket and buffers are only released once every reference has called
// Close.
func (c *Connection) Ref() { c.refs.Add(1) }

// Attach registers the connection's fd with r so that r.Wait drives
// this connection's reads and writes. A Connection may be attached to
// at most one reactor at a time.
func (c *Connection) Attach(r *reactor.Reactor) error {
	h, err := r.Register(c.rc, reactor.Readable, c.onReady)
	if err != nil {
		return err
	}
	c.handle = h
	return nil
}

func (c *Connection) onReady(ev reactor.Events) {
	if ev.Error || ev.Hup {
		c.fail(fmt.Errorf("%w: peer hung up", tnterr.ErrIO))
		return
	}
	if ev.Readable {
		if err := c.pumpRead(); err != nil && !errors.Is(err, tnterr.ErrWouldBlock) {
			c.fail(err)
			return
		}
	}
	if ev.Writable {
		if err := c.pumpWrite(); err != nil && !errors.Is(err, tnterr.ErrWouldBlock) {
			c.fail(err)
			return
		}
	}
	c.syncWriteInterest()
}

func (c *Connection) syncWriteInterest() {
	if c.handle == nil {
		return
	}
	wantWrite := !c.out.IsEmpty()
	if wantWrite == c.wantWrite {
		return
	}
	c.wantWrite = wantWrite
	interest := reactor.Readable
	if wantWrite {
		interest |= reactor.Writable
	}
	_ = c.handle.Modify(interest)
}

// pumpRead drains everything currently available on the socket into
// in, then decodes as many complete frames as have arrived.
func (c *Connection) pumpRead() error {
	var scratch [32 * 1024]byte
	for {
		n, err := unix.Read(c.fd, scratch[:])
		if n > 0 {
			c.in.AppendBytes(scratch[:n])
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return fmt.Errorf("%w: read: %v", tnterr.ErrIO, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: peer closed connection", tnterr.ErrIO)
		}
	}
	if err := c.decodeReady(); err != nil {
		return err
	}
	return c.gcInput()
}

// gcInput releases already-decoded bytes from the front of in.
// decodedAt is the only cursor ever held on in, so it is always safe
// to drop everything strictly before it (original_source's
// inputBufGC/GC_STEP_CNT housekeeping, done here on every read instead
// of every GC_STEP_CNT requests since a Go slab block reclaims
// trivially instead of needing batching).
func (c *Connection) gcInput() error {
	front := c.in.Begin()
	n := int(c.decodedAt.Sub(front))
	front.Close()
	if n <= 0 {
		return nil
	}
	return c.in.DropFront(n)
}

func (c *Connection) decodeReady() error {
	for {
		resp, err := iproto.DecodeResponse(c.decodedAt)
		if err != nil {
			if errors.Is(err, tnterr.ErrNeedMore) {
				return nil
			}
			return err
		}
		p, ok := c.pending[resp.Header.Sync]
		if !ok {
			// Response for a sync nobody is waiting on (ForgetSync, or a
			// server-initiated push outside spec's scope): drop it.
			continue
		}
		p.resp = resp
		p.ready = true
	}
}

// pumpWrite flushes as much of out as the socket accepts right now.
func (c *Connection) pumpWrite() error {
	for !c.out.IsEmpty() {
		start := c.out.Begin()
		startPos := start.Pos()
		start.Close()
		end := c.out.End()
		endPos := end.Pos()
		end.Close()

		iov := c.out.GetIOV(startPos, endPos, maxIOV)
		n, err := unix.Writev(c.fd, iov)
		if n > 0 {
			if dropErr := c.out.DropFront(n); dropErr != nil {
				return fmt.Errorf("%w: %v", tnterr.ErrIO, dropErr)
			}
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return tnterr.ErrWouldBlock
			}
			return fmt.Errorf("%w: writev: %v", tnterr.ErrIO, err)
		}
		if n == 0 {
			return tnterr.ErrWouldBlock
		}
	}
	return nil
}

func (c *Connection) fail(err error) {
	c.errorsTotal.Add(1)
	if c.err == nil {
		c.err = errors.WithStack(err)
	}
	for _, p := range c.pending {
		if !p.ready && p.err == nil {
			p.err = c.err
		}
	}
}

// SendRequest frames code/body as an IPROTO request and enqueues it on
// the output buffer, returning the sync id to pass to Wait/TakeResponse.
func (c *Connection) SendRequest(code uint64, body any) (sync uint64, err error) {
	if c.closed {
		return 0, tnterr.ErrClosed
	}
	if c.err != nil {
		return 0, c.err
	}
	sync = c.nextSync
	c.nextSync++
	if err := iproto.EncodeRequest(c.out, code, sync, body); err != nil {
		return 0, err
	}
	c.pending[sync] = &pending{}
	c.requestsTotal.Add(1)
	c.inFlight.Add(1)
	c.syncWriteInterest()
	// Opportunistically try to write immediately so a caller driving
	// the connection without a reactor (e.g. tests, or the blocking
	// handshake path) still makes progress without waiting for an
	// external readiness notification.
	if err := c.pumpWrite(); err != nil && !errors.Is(err, tnterr.ErrWouldBlock) {
		return sync, err
	}
	return sync, nil
}

// IsResponseReady reports whether sync's response has fully arrived.
func (c *Connection) IsResponseReady(sync uint64) bool {
	p, ok := c.pending[sync]
	return ok && p.ready
}

// TakeResponse removes and returns sync's response. It is an error to
// call this before IsResponseReady(sync) is true.
func (c *Connection) TakeResponse(sync uint64) (iproto.Response, error) {
	p, ok := c.pending[sync]
	if !ok {
		return iproto.Response{}, tnterr.ErrNoSuchSync
	}
	if p.err != nil {
		delete(c.pending, sync)
		c.inFlight.Add(-1)
		return iproto.Response{}, p.err
	}
	if !p.ready {
		return iproto.Response{}, fmt.Errorf("%w: sync %d not ready", tnterr.ErrTimeout, sync)
	}
	delete(c.pending, sync)
	c.inFlight.Add(-1)
	return p.resp, nil
}

// ForgetSync discards a pending request's slot without requiring its
// response, the "forget late response" escape hatch for a caller that
// gave up waiting (design note open question, SPEC_FULL.md §9).
func (c *Connection) ForgetSync(sync uint64) error {
	if _, ok := c.pending[sync]; !ok {
		return tnterr.ErrNoSuchSync
	}
	delete(c.pending, sync)
	c.inFlight.Add(-1)
	return nil
}

// Stats is a point-in-time snapshot of a Connection's request counters,
// suitable for logging or for adapting into a prometheus.Collector (see
// NewCollector). It supplements, and does not replace, the spec's
// request/response accounting and is never load-bearing for correctness.
type Stats struct {
	RequestsTotal uint64
	InFlight      int64
	Errors        uint64
}

// Stats returns a snapshot of the connection's counters. Safe to call
// from any goroutine, unlike the rest of Connection's API.
func (c *Connection) Stats() Stats {
	return Stats{
		RequestsTotal: c.requestsTotal.Load(),
		InFlight:      c.inFlight.Load(),
		Errors:        c.errorsTotal.Load(),
	}
}

// Wait blocks (by repeatedly driving the connection's own fd directly,
// without a reactor) until sync's response arrives, ctx is done, or the
// connection fails. Use this for a connection not attached to a
// reactor; attached connections should rely on Reactor.Wait plus
// IsResponseReady/TakeResponse instead.
func (c *Connection) Wait(ctx context.Context, sync uint64) (iproto.Response, error) {
	for {
		if c.IsResponseReady(sync) {
			return c.TakeResponse(sync)
		}
		if c.err != nil {
			return iproto.Response{}, c.err
		}
		select {
		case <-ctx.Done():
			return iproto.Response{}, fmt.Errorf("%w: %v", tnterr.ErrTimeout, ctx.Err())
		default:
		}
		if err := c.pumpWrite(); err != nil && !errors.Is(err, tnterr.ErrWouldBlock) {
			return iproto.Response{}, err
		}
		if err := c.waitReadable(ctx); err != nil {
			return iproto.Response{}, err
		}
		if err := c.pumpRead(); err != nil && !errors.Is(err, tnterr.ErrWouldBlock) {
			return iproto.Response{}, err
		}
	}
}

func (c *Connection) waitReadable(ctx context.Context) error {
	deadline := 50 * time.Millisecond
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < deadline {
			deadline = d
		}
	}
	pfd := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	ms := int(deadline / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	_, err := unix.Poll(pfd, ms)
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("%w: poll: %v", tnterr.ErrIO, err)
	}
	return nil
}

// WaitAny blocks until any connection in conns has a ready response
// for one of the syncs it is tracking, or ctx is done. It returns the
// index into conns and the sync id that became ready.
func WaitAny(ctx context.Context, conns []*Connection) (int, uint64, error) {
	for {
		for i, c := range conns {
			for sync, p := range c.pending {
				if p.ready || p.err != nil {
					return i, sync, nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return -1, 0, fmt.Errorf("%w: %v", tnterr.ErrTimeout, ctx.Err())
		default:
		}
		for _, c := range conns {
			if err := c.pumpWrite(); err != nil && !errors.Is(err, tnterr.ErrWouldBlock) {
				return -1, 0, err
			}
			if err := c.waitReadable(ctx); err != nil {
				return -1, 0, err
			}
			if err := c.pumpRead(); err != nil && !errors.Is(err, tnterr.ErrWouldBlock) {
				return -1, 0, err
			}
		}
	}
}

// WaitAll blocks until every sync in syncs (keyed per-connection by
// index into conns) has a response, or ctx is done.
func WaitAll(ctx context.Context, conns []*Connection, syncs []uint64) error {
	for i, c := range conns {
		if _, err := c.Wait(ctx, syncs[i]); err != nil {
			return err
		}
	}
	return nil
}

// HasError reports whether the connection has recorded a fatal I/O or
// protocol error.
func (c *Connection) HasError() bool { return c.err != nil }

// TakeError returns and clears the connection's recorded error. A
// fresh Connection must be built after a fatal error; Reset only
// clears per-request state, not the underlying socket.
func (c *Connection) TakeError() error {
	err := c.err
	c.err = nil
	return err
}

// Reset discards all pending requests/responses and resets the sync
// counter, without touching the socket or the decode boundary cursor.
func (c *Connection) Reset() {
	c.pending = make(map[uint64]*pending)
	c.nextSync = 0
	c.inFlight.Store(0)
}

// Close releases the connection's reference. The underlying socket is
// only closed once the reference count drops to zero.
func (c *Connection) Close() error {
	if c.refs.Add(-1) > 0 {
		return nil
	}
	if c.closed {
		return nil
	}
	c.closed = true
	if c.handle != nil {
		_ = c.handle.Deregister()
	}
	c.decodedAt.Close()
	return c.closer.Close()
}
