// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package conn

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/iproto"
	"github.com/tarantool-go/tntgo/pool"
	"github.com/tarantool-go/tntgo/tnterr"
)

// Handshake performs the blocking startup sequence on a freshly dialed
// nc: reads the 128-byte greeting and, if username is non-empty,
// exchanges an IPROTO_AUTH request/response using chap-sha1 (see
// scramble). It honors ctx's deadline and cancellation for the whole
// exchange. On success nc is left ready to be handed to New for
// steady-state, non-blocking operation; nc's read/write deadlines are
// cleared before returning.
//
// This mirrors original_source's ConnectionImpl greeting/auth dance
// (Connection::prepare_auth/commit_auth, decodeGreeting), done here
// with ordinary blocking I/O since a handshake happens once per
// connection and need not share the reactor's non-blocking machinery.
func Handshake(ctx context.Context, nc net.Conn, p *pool.Pool, username, password string) (iproto.Greeting, error) {
	defer nc.SetDeadline(time.Time{})

	if ctx.Done() != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				_ = nc.SetDeadline(time.Now())
			case <-stop:
			}
		}()
	}
	if dl, ok := ctx.Deadline(); ok {
		if err := nc.SetDeadline(dl); err != nil {
			return iproto.Greeting{}, fmt.Errorf("%w: %v", tnterr.ErrIO, err)
		}
	}

	var raw [iproto.GreetingSize]byte
	if _, err := io.ReadFull(nc, raw[:]); err != nil {
		return iproto.Greeting{}, fmt.Errorf("%w: reading greeting: %v", tnterr.ErrGreeting, err)
	}
	greeting, err := iproto.ParseGreeting(raw)
	if err != nil {
		return iproto.Greeting{}, err
	}
	if username == "" {
		return greeting, nil
	}

	out := buffer.New(p)
	body := map[uint64]any{
		iproto.KeyUsername: username,
		iproto.KeyTuple:     []any{"chap-sha1", scramble(password, greeting.Salt)},
	}
	if err := iproto.EncodeRequest(out, iproto.OpAuth, 0, body); err != nil {
		return iproto.Greeting{}, err
	}
	if err := writeAll(nc, out); err != nil {
		return iproto.Greeting{}, err
	}

	resp, err := readOneResponse(nc, p)
	if err != nil {
		return iproto.Greeting{}, err
	}
	if resp.IsError() {
		return iproto.Greeting{}, fmt.Errorf("%w: server rejected credentials (code %d)", tnterr.ErrAuth, resp.Header.Code)
	}
	return greeting, nil
}

// writeAll blocking-writes every byte currently in buf to nc.
func writeAll(nc net.Conn, buf *buffer.Buffer) error {
	for !buf.IsEmpty() {
		start := buf.Begin()
		startPos := start.Pos()
		start.Close()
		end := buf.End()
		endPos := end.Pos()
		end.Close()

		iov := buf.GetIOV(startPos, endPos, maxIOV)
		written := 0
		for _, chunk := range iov {
			n, err := nc.Write(chunk)
			written += n
			if err != nil {
				_ = buf.DropFront(written)
				return errors.Wrap(fmt.Errorf("%w: %v", tnterr.ErrIO, err), "handshake write")
			}
		}
		if err := buf.DropFront(written); err != nil {
			return fmt.Errorf("%w: %v", tnterr.ErrIO, err)
		}
	}
	return nil
}

// readOneResponse blocking-reads from nc, growing in until a complete
// IPROTO frame decodes.
func readOneResponse(nc net.Conn, p *pool.Pool) (iproto.Response, error) {
	in := buffer.New(p)
	cur := in.Begin()
	defer cur.Close()

	var scratch [4096]byte
	for {
		resp, err := iproto.DecodeResponse(cur)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, tnterr.ErrNeedMore) {
			return iproto.Response{}, err
		}
		n, rerr := nc.Read(scratch[:])
		if n > 0 {
			in.AppendBytes(scratch[:n])
		}
		if rerr != nil {
			return iproto.Response{}, fmt.Errorf("%w: reading auth response: %v", tnterr.ErrIO, rerr)
		}
	}
}
