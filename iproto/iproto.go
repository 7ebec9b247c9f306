// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package iproto implements Tarantool's IPROTO wire format on top of
// package msgpack and package buffer: request framing, response framing,
// and the one-shot 128-byte greeting banner (spec §4.7, §6).
package iproto

// Header and body map keys. Only the subset spec §6 names is declared;
// Tarantool defines many more IPROTO_* keys but a client that only needs
// framing plus the request families in package client has no use for
// the rest.
const (
	KeyCode      = 0x00 // operation code / response status
	KeySync      = 0x01 // request/response correlation id
	KeySchemaID  = 0x05 // optional schema version
	KeySpaceID   = 0x10
	KeyIndexID   = 0x11
	KeyLimit     = 0x12
	KeyOffset    = 0x13
	KeyIterator  = 0x14
	KeyKey       = 0x20
	KeyTuple     = 0x21
	KeyFunction  = 0x22
	KeyUsername  = 0x23
	KeyExpr      = 0x27
	KeyOpsList   = 0x28
	KeySQLText   = 0x40
	KeySQLBind   = 0x41
	KeyStmtID    = 0x43
	KeyData      = 0x30
	KeyError     = 0x31 // legacy single-string error message
	KeyMetadata  = 0x32
	KeySQLInfo   = 0x42
	KeyErrorV2   = 0x52 // structured error_stack (MP_ERROR)
)

// Operation codes (spec §6's "recognised" set).
const (
	OpSelect  = 0x01
	OpInsert  = 0x02
	OpReplace = 0x03
	OpUpdate  = 0x04
	OpDelete  = 0x05
	OpAuth    = 0x07
	OpEval    = 0x08
	OpUpsert  = 0x09
	OpCall    = 0x0a
	// OpExecute serves both execute-sql-text and execute-sql-prepared
	// (spec §6): the body carries either KeySQLText or KeyStmtID and
	// the server dispatches on which key is present.
	OpExecute    = 0x0b
	OpPrepareSQL = 0x0d
	OpPing       = 0x40
)

// Header is the decoded form of an IPROTO frame's header map.
type Header struct {
	Code     uint64
	Sync     uint64
	SchemaID uint64
}

// Response is a fully-framed IPROTO reply: header plus the raw body
// bytes, left undecoded until the caller knows what shape to expect
// (a SELECT's data array decodes differently from a PREPARE's
// statement metadata).
type Response struct {
	Header Header
	Body   []byte // raw msgpack-encoded body map
}

// IsError reports whether the response carries a nonzero status code,
// per spec §6 ("the code field is zero on success, nonzero on error").
func (r Response) IsError() bool { return r.Header.Code != 0 }
