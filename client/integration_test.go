// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/client"
	"github.com/tarantool-go/tntgo/iproto"
	"github.com/tarantool-go/tntgo/msgpack"
	"github.com/tarantool-go/tntgo/pool"
)

// spaceServer is a fake Tarantool instance that tracks tuples in
// memory, keyed by primary key (a tuple's first field), so a test can
// assert on exact round-tripped data instead of an always-empty stub
// response. It understands just enough of the wire protocol to answer
// the request families spec §8's concrete scenarios exercise: PING,
// REPLACE, and SELECT by primary-key equality.
type spaceServer struct {
	ln net.Listener

	mu     sync.Mutex
	spaces map[uint64]map[uint64][]any
}

func newSpaceServer(t *testing.T) *spaceServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	s := &spaceServer{ln: ln, spaces: map[uint64]map[uint64][]any{}}
	go s.acceptLoop()
	return s
}

func (s *spaceServer) addr() string { return s.ln.Addr().String() }

func (s *spaceServer) acceptLoop() {
	for {
		sc, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(sc)
	}
}

func (s *spaceServer) serve(sc net.Conn) {
	defer sc.Close()

	var greeting [iproto.GreetingSize]byte
	copy(greeting[:], "Tarantool 2.11.0 (Binary) test-uuid")
	for i := 36; i < 64; i++ {
		greeting[i] = ' '
	}
	encoded := base64.StdEncoding.EncodeToString(make([]byte, 20))
	copy(greeting[64:], encoded)
	for i := 64 + len(encoded); i < 128; i++ {
		greeting[i] = ' '
	}
	if _, err := sc.Write(greeting[:]); err != nil {
		return
	}

	p := pool.New()
	in := buffer.New(p)
	cur := in.Begin()
	defer cur.Close()
	var scratch [4096]byte
	for {
		req, err := iproto.DecodeResponse(cur)
		if err == nil {
			out := buffer.New(p)
			code, body := s.handle(req)
			if err := iproto.EncodeRequest(out, code, req.Header.Sync, body); err != nil {
				return
			}
			if err := flush(sc, out); err != nil {
				return
			}
			continue
		}
		n, rerr := sc.Read(scratch[:])
		if n > 0 {
			in.AppendBytes(scratch[:n])
		}
		if rerr != nil {
			return
		}
	}
}

// handle decodes one request's body and returns the status code and
// reply body to send back, per spec §6's body key table. Requests
// this fake server doesn't model return a nonzero code rather than
// panicking, so an unexpected call fails the test loudly instead of
// hanging it.
func (s *spaceServer) handle(req iproto.Response) (uint64, map[uint64]any) {
	var body map[uint64]any
	if len(req.Body) > 0 {
		if err := decodeBody(req.Body, &body); err != nil {
			return 1, map[uint64]any{iproto.KeyError: err.Error()}
		}
	}

	switch req.Header.Code {
	case iproto.OpPing:
		return 0, map[uint64]any{}
	case iproto.OpReplace:
		spaceID, _ := body[iproto.KeySpaceID].(uint64)
		tuple, _ := body[iproto.KeyTuple].([]any)
		if len(tuple) == 0 {
			return 1, map[uint64]any{iproto.KeyError: "replace: empty tuple"}
		}
		key, ok := tuple[0].(uint64)
		if !ok {
			return 1, map[uint64]any{iproto.KeyError: "replace: non-integer primary key"}
		}
		s.mu.Lock()
		sp, ok := s.spaces[spaceID]
		if !ok {
			sp = map[uint64][]any{}
			s.spaces[spaceID] = sp
		}
		sp[key] = tuple
		s.mu.Unlock()
		return 0, map[uint64]any{iproto.KeyData: []any{tuple}}
	case iproto.OpSelect:
		spaceID, _ := body[iproto.KeySpaceID].(uint64)
		key, _ := body[iproto.KeyKey].([]any)
		data := []any{}
		if len(key) > 0 {
			if k, ok := key[0].(uint64); ok {
				s.mu.Lock()
				if tuple, ok := s.spaces[spaceID][k]; ok {
					data = []any{tuple}
				}
				s.mu.Unlock()
			}
		}
		return 0, map[uint64]any{iproto.KeyData: data}
	default:
		return 1, map[uint64]any{iproto.KeyError: fmt.Sprintf("spaceServer: unsupported op %#x", req.Header.Code)}
	}
}

// TestScenarioPing is spec §8 scenario 1: ping a freshly connected
// connection and expect a zero-code, empty-body response within 1s.
func TestScenarioPing(t *testing.T) {
	s := newSpaceServer(t)
	c, err := client.Dial([]string{"tcp://" + s.addr()})
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	resp, err := c.Ping(ctx)
	require.NoError(t, err)
	require.False(t, resp.IsError())
}

// TestScenarioReplaceThenSelect is spec §8 scenario 2: replace tuple
// (666, "111", 1.01) into space 512, select it back by primary key,
// and require the returned tuple equals exactly what was sent.
func TestScenarioReplaceThenSelect(t *testing.T) {
	s := newSpaceServer(t)
	c, err := client.Dial([]string{"tcp://" + s.addr()})
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const spaceID = 512
	tuple := []any{uint64(666), "111", 1.01}

	repl, err := c.Replace(ctx, spaceID, tuple)
	require.NoError(t, err)
	require.False(t, repl.IsError())

	sel, err := c.Select(ctx, spaceID, 0, 0, 0, 1, []any{uint64(666)})
	require.NoError(t, err)
	require.False(t, sel.IsError())

	var decoded map[uint64]any
	require.NoError(t, decodeBody(sel.Body, &decoded))
	rows, ok := decoded[iproto.KeyData].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	require.Equal(t, tuple, rows[0])
}

// decodeBody wraps raw response-body bytes in a scratch buffer just
// long enough to decode them with the ordinary msgpack.Decode entry
// point, then releases the cursor.
func decodeBody(body []byte, dst any) error {
	b := buffer.New(pool.New())
	b.AppendBytes(body)
	c := b.Begin()
	defer c.Close()
	lc := c.Light()
	return msgpack.Decode(&lc, dst)
}

// TestScenarioConcurrentFanOut is spec §8 scenario 6: 24 connections
// sharing one reactor, each carrying 1000 replaces with distinct
// primary keys. Connections are confined to one goroutine, so the
// replaces are issued from the test goroutine and fanned out
// round-robin across the connections; every response must succeed and
// every returned tuple must equal the one sent.
func TestScenarioConcurrentFanOut(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrent fan-out scenario in -short mode")
	}

	s := newSpaceServer(t)

	const (
		nConns           = 24
		nReplacesPerConn = 1000
		spaceID          = 512
	)

	addrs := make([]string, nConns)
	for i := range addrs {
		addrs[i] = "tcp://" + s.addr()
	}
	c, err := client.Dial(addrs)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	errs := make(chan error, nConns)
	for g := 0; g < nConns; g++ {
		func(g int) {
			for i := 0; i < nReplacesPerConn; i++ {
				key := uint64(g*nReplacesPerConn + i)
				tuple := []any{key, fmt.Sprintf("payload-%d-%d", g, i)}
				resp, err := c.Replace(ctx, spaceID, tuple)
				if err != nil {
					errs <- fmt.Errorf("conn %d replace %d: %w", g, i, err)
					return
				}
				if resp.IsError() {
					errs <- fmt.Errorf("conn %d replace %d: error response code=%d", g, i, resp.Header.Code)
					return
				}
				var decoded map[uint64]any
				if err := decodeBody(resp.Body, &decoded); err != nil {
					errs <- fmt.Errorf("conn %d replace %d: decode: %w", g, i, err)
					return
				}
				rows, _ := decoded[iproto.KeyData].([]any)
				if len(rows) != 1 {
					errs <- fmt.Errorf("conn %d replace %d: expected 1 row, got %d", g, i, len(rows))
					return
				}
				got, ok := rows[0].([]any)
				if !ok || len(got) != 2 || got[0] != key || got[1] != tuple[1] {
					errs <- fmt.Errorf("conn %d replace %d: got %#v, want %#v", g, i, rows[0], tuple)
					return
				}
			}
		}(g)
	}
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
