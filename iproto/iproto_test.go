// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iproto_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/iproto"
	"github.com/tarantool-go/tntgo/pool"
	"github.com/tarantool-go/tntgo/tnterr"
)

func newBuf() *buffer.Buffer { return buffer.New(pool.New()) }

func TestParseGreetingTrimsWhitespace(t *testing.T) {
	var raw [iproto.GreetingSize]byte
	copy(raw[:], "Tarantool 2.11.0 (Binary) abcdef-uuid                          \n")
	salt := bytes.Repeat([]byte{0x42}, 32)
	encoded := base64.StdEncoding.EncodeToString(salt)
	copy(raw[64:], encoded+"                    \n")

	g, err := iproto.ParseGreeting(raw)
	if err != nil {
		t.Fatalf("ParseGreeting: %v", err)
	}
	if g.Version == "" || g.Version[len(g.Version)-1] == '\n' {
		t.Fatalf("version line not trimmed: %q", g.Version)
	}
	if !bytes.Equal(g.Salt, salt) {
		t.Fatalf("salt mismatch: got %x, want %x", g.Salt, salt)
	}
}

func TestParseGreetingRejectsEmptyVersion(t *testing.T) {
	var raw [iproto.GreetingSize]byte
	if _, err := iproto.ParseGreeting(raw); !errors.Is(err, tnterr.ErrGreeting) {
		t.Fatalf("expected ErrGreeting, got %v", err)
	}
}

func TestEncodeDecodeRequestResponseRoundTrip(t *testing.T) {
	b := newBuf()
	body := map[uint64]any{iproto.KeySpaceID: uint64(512), iproto.KeyKey: []any{uint64(1)}}
	if err := iproto.EncodeRequest(b, iproto.OpSelect, 7, body); err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	// Simulate a response on the same wire shape: reuse EncodeRequest's
	// frame format (header+body) since response and request share it.
	b2 := newBuf()
	respHeader := map[uint64]any{iproto.KeyCode: uint64(0), iproto.KeySync: uint64(7)}
	respBody := map[uint64]any{iproto.KeyData: []any{[]any{uint64(1), "x"}}}
	if err := iproto.EncodeRequest(b2, 0, 7, respBody); err != nil {
		t.Fatalf("EncodeRequest (response shape): %v", err)
	}
	_ = respHeader

	cur := b2.Begin()
	defer cur.Close()
	resp, err := iproto.DecodeResponse(cur)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.Header.Sync != 7 {
		t.Fatalf("sync mismatch: got %d, want 7", resp.Header.Sync)
	}
	if resp.IsError() {
		t.Fatalf("expected success response")
	}
	if len(resp.Body) == 0 {
		t.Fatalf("expected non-empty raw body")
	}
}

func TestDecodeResponseNeedsMoreLeavesCursorInPlace(t *testing.T) {
	b := newBuf()
	body := map[uint64]any{iproto.KeyData: []any{uint64(1), uint64(2), uint64(3)}}
	if err := iproto.EncodeRequest(b, 0, 1, body); err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	full := b.Begin()
	defer full.Close()
	allLen := int(b.End().Sub(full))
	whole := make([]byte, allLen)
	if err := full.ReadBytes(whole); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}

	b2 := newBuf()
	b2.AppendBytes(whole[:allLen-2])
	cur := b2.Begin()
	defer cur.Close()
	start := cur.Clone()
	defer start.Close()

	if _, err := iproto.DecodeResponse(cur); !errors.Is(err, tnterr.ErrNeedMore) {
		t.Fatalf("expected ErrNeedMore on truncated frame, got %v", err)
	}
	if !cur.Equal(start) {
		t.Fatalf("cursor moved despite ErrNeedMore")
	}

	b2.AppendBytes(whole[allLen-2:]) // deliver exactly the bytes that were missing
	if _, err := iproto.DecodeResponse(cur); err != nil {
		t.Fatalf("DecodeResponse after rest of frame arrived: %v", err)
	}
}
