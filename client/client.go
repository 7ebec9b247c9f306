// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package client is the user-facing IPROTO connector: it dials one or
// more Tarantool addresses, runs the handshake, and hands back a
// Connector exposing the request-family wrapper methods (Call, Eval,
// Ping, Select, ...). It is the thin framing-only layer spec.md §6
// describes; no query planning or retry policy lives here.
//
// Connector follows the teacher's functional-options pattern
// (framer.Option/framer.Options) for Dial configuration, and reuses
// netopts.go's single-source-of-truth transport dispatch idiom
// (address.go's parseAddress) to tell tcp:// from unix:// addresses.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tarantool-go/tntgo/conn"
	"github.com/tarantool-go/tntgo/iproto"
	"github.com/tarantool-go/tntgo/pool"
	"github.com/tarantool-go/tntgo/reactor"
	"github.com/tarantool-go/tntgo/tnterr"
	"github.com/tarantool-go/tntgo/tntlog"
)

// config holds Dial's assembled options, mirroring framer.Options'
// role as the plain struct every Option closes over.
type config struct {
	username    string
	password    string
	dialTimeout time.Duration
	tlsConfig   *tls.Config
	pool        *pool.Pool
	log         tntlog.Logger
}

// Option configures a Dial call, in the style of framer.Option.
type Option func(*config)

// WithAuth sets the credentials used for the IPROTO chap-sha1
// handshake on every dialed connection. Without it, connections are
// anonymous (guest-equivalent), matching Handshake's username=="" path.
func WithAuth(username, password string) Option {
	return func(c *config) { c.username, c.password = username, password }
}

// WithDialTimeout bounds both the TCP/Unix dial and the handshake that
// follows it. The default is 5 seconds.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}

// WithTLS wraps every dialed connection in tls.Client(cfg) before the
// IPROTO greeting is read, so the whole byte stream — greeting, auth,
// and all later requests — runs over TLS. Because crypto/tls owns the
// record layer and exposes no raw fd, connections built this way fall
// back to conn.BlockingConnection's dedicated-goroutine I/O instead of
// the epoll Reactor; see DESIGN.md for why the reactor path cannot
// serve them.
func WithTLS(cfg *tls.Config) Option {
	return func(c *config) { c.tlsConfig = cfg }
}

// WithPool supplies the buffer pool every connection's in/out buffers
// are allocated from. Without it, Dial allocates a fresh pool.Pool
// private to the Connector.
func WithPool(p *pool.Pool) Option {
	return func(c *config) { c.pool = p }
}

// WithLogger sets the logger passed to every conn.Connection.
func WithLogger(log tntlog.Logger) Option {
	return func(c *config) { c.log = log }
}

// connHandle is the common surface of conn.Connection and
// conn.BlockingConnection; Connector's request wrappers only need
// this much, which lets the two I/O strategies (epoll reactor vs.
// TLS's dedicated goroutine) sit behind one uniform type inside
// Connector.conns.
type connHandle interface {
	SendRequest(code uint64, body any) (uint64, error)
	Wait(ctx context.Context, sync uint64) (iproto.Response, error)
	Close() error
	HasError() bool
	TakeError() error
}

// Connector is a handle to one or more established Tarantool
// connections. Request-family methods (Call, Eval, Ping, ...) pick a
// connection round-robin and block until that request's response
// arrives or ctx is done.
type Connector struct {
	conns []connHandle
	r     *reactor.Reactor
	log   tntlog.Logger
	next  atomic.Uint64
	pool  *pool.Pool
}

// Dial connects to every address in addrs (each "tcp://host:port",
// "unix:///path", or a bare "host:port" defaulting to TCP), performs
// the IPROTO handshake on each, and returns a Connector fanning
// requests out round-robin across them. Plain TCP/Unix connections
// share one reactor.Reactor, registered but driven independently by
// each connection's own Wait; advanced callers that want to drive
// that reactor themselves (e.g. to integrate with their own event
// loop) can retrieve it via Connector.Reactor.
func Dial(addrs []string, opts ...Option) (*Connector, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("client: Dial requires at least one address")
	}

	cfg := config{
		dialTimeout: 5 * time.Second,
		log:         tntlog.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.pool == nil {
		cfg.pool = pool.New()
	}

	r, err := reactor.New()
	if err != nil {
		return nil, err
	}

	c := &Connector{r: r, log: cfg.log, pool: cfg.pool}
	for _, addr := range addrs {
		h, err := dialOne(addr, cfg, r)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("client: dialing %q: %w", addr, err)
		}
		c.conns = append(c.conns, h)
	}
	return c, nil
}

func dialOne(addr string, cfg config, r *reactor.Reactor) (connHandle, error) {
	ep, err := parseAddress(addr)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: cfg.dialTimeout}
	nc, err := dialer.Dial(ep.network, ep.address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tnterr.ErrIO, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.dialTimeout)
	defer cancel()

	if cfg.tlsConfig != nil {
		tc := tls.Client(nc, cfg.tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = nc.Close()
			return nil, fmt.Errorf("%w: TLS handshake: %v", tnterr.ErrIO, err)
		}
		greeting, err := conn.Handshake(ctx, tc, cfg.pool, cfg.username, cfg.password)
		if err != nil {
			_ = tc.Close()
			return nil, err
		}
		return conn.NewBlocking(tc, cfg.pool, greeting), nil
	}

	greeting, err := conn.Handshake(ctx, nc, cfg.pool, cfg.username, cfg.password)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}

	sc, ok := nc.(syscall.Conn)
	if !ok {
		_ = nc.Close()
		return nil, fmt.Errorf("client: %s connections do not expose a raw file descriptor", ep.network)
	}
	h, err := conn.New(sc, nc, cfg.pool, greeting, cfg.log)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	if err := h.Attach(r); err != nil {
		_ = h.Close()
		return nil, err
	}
	return h, nil
}

// statser matches both conn.Connection and conn.BlockingConnection's
// Stats method, letting Collectors adapt whichever kind a given
// address dialed into without the caller needing to know which.
type statser interface {
	Stats() conn.Stats
}

// Collectors returns prometheus collectors for this Connector's shared
// buffer pool and every dialed connection, for a caller that wants to
// expose them on its own metrics endpoint (see cmd/tntcli's
// --metrics-addr flag).
func (c *Connector) Collectors() []prometheus.Collector {
	cols := []prometheus.Collector{pool.NewCollector(c.pool)}
	for _, h := range c.conns {
		if s, ok := h.(statser); ok {
			cols = append(cols, conn.NewCollector(s))
		}
	}
	return cols
}

// Reactor exposes the shared epoll reactor driving every non-TLS
// connection's readiness, for callers that want to fold tntgo into
// their own event loop instead of relying on each Connection's own
// Wait.
func (c *Connector) Reactor() *reactor.Reactor { return c.r }

// Close closes every connection and the shared reactor, collecting
// every failure rather than stopping at the first (a caller tearing
// down a pool of connections wants to know about all of them, not
// just whichever happened to be first in the slice).
func (c *Connector) Close() error {
	var merr *multierror.Error
	for _, h := range c.conns {
		if err := h.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := c.r.Close(); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

// pick returns the next connection in round-robin order.
func (c *Connector) pick() connHandle {
	n := c.next.Add(1) - 1
	return c.conns[n%uint64(len(c.conns))]
}

// roundTrip sends body under code on the next connection and blocks
// for its response.
func (c *Connector) roundTrip(ctx context.Context, code uint64, body any) (iproto.Response, error) {
	h := c.pick()
	sync, err := h.SendRequest(code, body)
	if err != nil {
		return iproto.Response{}, err
	}
	return h.Wait(ctx, sync)
}
