// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package conn_test

import (
	"context"
	"encoding/base64"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/conn"
	"github.com/tarantool-go/tntgo/iproto"
	"github.com/tarantool-go/tntgo/pool"
	"github.com/tarantool-go/tntgo/tntlog"
)

func fakeGreeting(t *testing.T, salt []byte) [iproto.GreetingSize]byte {
	t.Helper()
	var raw [iproto.GreetingSize]byte
	copy(raw[:], "Tarantool 2.11.0 (Binary) test-uuid")
	for i := 36; i < 64; i++ {
		raw[i] = ' '
	}
	encoded := base64.StdEncoding.EncodeToString(salt)
	copy(raw[64:], encoded)
	for i := 64 + len(encoded); i < 128; i++ {
		raw[i] = ' '
	}
	return raw
}

func listenLoopback(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func TestHandshakeAnonymous(t *testing.T) {
	ln := listenLoopback(t)
	defer ln.Close()

	go func() {
		sc, err := ln.Accept()
		if err != nil {
			return
		}
		defer sc.Close()
		greeting := fakeGreeting(t, nil)
		_, _ = sc.Write(greeting[:])
	}()

	cc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cc.Close()

	p := pool.New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	greeting, err := conn.Handshake(ctx, cc, p, "", "")
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if !strings.HasPrefix(greeting.Version, "Tarantool") {
		t.Fatalf("unexpected version: %q", greeting.Version)
	}
}

func TestHandshakeWithAuth(t *testing.T) {
	ln := listenLoopback(t)
	defer ln.Close()

	salt := bytes20()
	serverDone := make(chan error, 1)
	go func() {
		sc, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		defer sc.Close()
		greeting := fakeGreeting(t, salt)
		if _, err := sc.Write(greeting[:]); err != nil {
			serverDone <- err
			return
		}

		p := pool.New()
		in := buffer.New(p)
		cur := in.Begin()
		defer cur.Close()
		var scratch [4096]byte
		for {
			resp, err := iproto.DecodeResponse(cur)
			if err == nil {
				out := buffer.New(p)
				if err := iproto.EncodeRequest(out, 0, resp.Header.Sync, map[uint64]any{}); err != nil {
					serverDone <- err
					return
				}
				if err := drainWrite(sc, out); err != nil {
					serverDone <- err
					return
				}
				serverDone <- nil
				return
			}
			n, rerr := sc.Read(scratch[:])
			if n > 0 {
				in.AppendBytes(scratch[:n])
			}
			if rerr != nil {
				serverDone <- rerr
				return
			}
		}
	}()

	cc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cc.Close()

	p := pool.New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := conn.Handshake(ctx, cc, p, "guest", "secret"); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestSendRequestAndWaitRoundTrip(t *testing.T) {
	ln := listenLoopback(t)
	defer ln.Close()

	go func() {
		sc, err := ln.Accept()
		if err != nil {
			return
		}
		defer sc.Close()
		greeting := fakeGreeting(t, nil)
		if _, err := sc.Write(greeting[:]); err != nil {
			return
		}

		p := pool.New()
		in := buffer.New(p)
		cur := in.Begin()
		defer cur.Close()
		var scratch [4096]byte
		for {
			resp, err := iproto.DecodeResponse(cur)
			if err == nil {
				out := buffer.New(p)
				body := map[uint64]any{iproto.KeyData: []any{}}
				if err := iproto.EncodeRequest(out, 0, resp.Header.Sync, body); err != nil {
					return
				}
				if err := drainWrite(sc, out); err != nil {
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
	}()

	cc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cc.Close()
	tcpConn := cc.(*net.TCPConn)

	p := pool.New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	greeting, err := conn.Handshake(ctx, tcpConn, p, "", "")
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	c, err := conn.New(tcpConn, tcpConn, p, greeting, tntlog.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	sync, err := c.SendRequest(iproto.OpPing, map[uint64]any{})
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	resp, err := c.Wait(ctx, sync)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if resp.IsError() {
		t.Fatalf("expected success response")
	}
}

func bytes20() []byte {
	b := make([]byte, 20)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func drainWrite(c net.Conn, buf *buffer.Buffer) error {
	for !buf.IsEmpty() {
		start := buf.Begin()
		startPos := start.Pos()
		start.Close()
		end := buf.End()
		endPos := end.Pos()
		end.Close()
		iov := buf.GetIOV(startPos, endPos, 0)
		written := 0
		for _, chunk := range iov {
			n, err := c.Write(chunk)
			written += n
			if err != nil {
				_ = buf.DropFront(written)
				return err
			}
		}
		if err := buf.DropFront(written); err != nil {
			return err
		}
	}
	return nil
}
