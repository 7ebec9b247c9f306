// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"context"

	"github.com/tarantool-go/tntgo/iproto"
)

// Ping sends an IPROTO_PING and waits for the reply.
func (c *Connector) Ping(ctx context.Context) (iproto.Response, error) {
	return c.roundTrip(ctx, iproto.OpPing, map[uint64]any{})
}

// Call invokes the stored Lua function fn with args (a slice of
// positional arguments), per IPROTO_CALL.
func (c *Connector) Call(ctx context.Context, fn string, args []any) (iproto.Response, error) {
	body := map[uint64]any{
		iproto.KeyFunction: fn,
		iproto.KeyTuple:    args,
	}
	return c.roundTrip(ctx, iproto.OpCall, body)
}

// Eval evaluates the Lua expression expr with args, per IPROTO_EVAL.
func (c *Connector) Eval(ctx context.Context, expr string, args []any) (iproto.Response, error) {
	body := map[uint64]any{
		iproto.KeyExpr:  expr,
		iproto.KeyTuple: args,
	}
	return c.roundTrip(ctx, iproto.OpEval, body)
}

// Select runs an index scan over spaceID/indexID, per IPROTO_SELECT.
// iterator is one of Tarantool's IPROTO iterator-type constants (0 =
// EQ and so on); key is the lookup key tuple.
func (c *Connector) Select(ctx context.Context, spaceID, indexID uint64, iterator uint64, offset, limit uint64, key []any) (iproto.Response, error) {
	body := map[uint64]any{
		iproto.KeySpaceID:  spaceID,
		iproto.KeyIndexID:  indexID,
		iproto.KeyIterator: iterator,
		iproto.KeyOffset:   offset,
		iproto.KeyLimit:    limit,
		iproto.KeyKey:      key,
	}
	return c.roundTrip(ctx, iproto.OpSelect, body)
}

// Insert inserts tuple into spaceID, per IPROTO_INSERT.
func (c *Connector) Insert(ctx context.Context, spaceID uint64, tuple []any) (iproto.Response, error) {
	body := map[uint64]any{
		iproto.KeySpaceID: spaceID,
		iproto.KeyTuple:   tuple,
	}
	return c.roundTrip(ctx, iproto.OpInsert, body)
}

// Replace inserts or overwrites tuple in spaceID, per IPROTO_REPLACE.
func (c *Connector) Replace(ctx context.Context, spaceID uint64, tuple []any) (iproto.Response, error) {
	body := map[uint64]any{
		iproto.KeySpaceID: spaceID,
		iproto.KeyTuple:   tuple,
	}
	return c.roundTrip(ctx, iproto.OpReplace, body)
}

// Update applies ops (Tarantool update operation tuples, e.g.
// {"=", fieldNo, value}) to the tuple matched by key in spaceID/
// indexID, per IPROTO_UPDATE.
func (c *Connector) Update(ctx context.Context, spaceID, indexID uint64, key, ops []any) (iproto.Response, error) {
	body := map[uint64]any{
		iproto.KeySpaceID: spaceID,
		iproto.KeyIndexID: indexID,
		iproto.KeyKey:     key,
		iproto.KeyOpsList: ops,
	}
	return c.roundTrip(ctx, iproto.OpUpdate, body)
}

// Upsert inserts tuple, or applies ops if a tuple with the same
// primary key already exists, per IPROTO_UPSERT.
func (c *Connector) Upsert(ctx context.Context, spaceID uint64, tuple, ops []any) (iproto.Response, error) {
	body := map[uint64]any{
		iproto.KeySpaceID: spaceID,
		iproto.KeyTuple:   tuple,
		iproto.KeyOpsList: ops,
	}
	return c.roundTrip(ctx, iproto.OpUpsert, body)
}

// Delete removes the tuple matched by key in spaceID/indexID, per
// IPROTO_DELETE.
func (c *Connector) Delete(ctx context.Context, spaceID, indexID uint64, key []any) (iproto.Response, error) {
	body := map[uint64]any{
		iproto.KeySpaceID: spaceID,
		iproto.KeyIndexID: indexID,
		iproto.KeyKey:     key,
	}
	return c.roundTrip(ctx, iproto.OpDelete, body)
}

// PrepareSQL prepares the SQL statement text for repeated execution,
// per IPROTO_PREPARE. The response carries the server-assigned
// statement id (KeyStmtID in its metadata) to pass to
// ExecutePrepared.
func (c *Connector) PrepareSQL(ctx context.Context, text string) (iproto.Response, error) {
	body := map[uint64]any{iproto.KeySQLText: text}
	return c.roundTrip(ctx, iproto.OpPrepareSQL, body)
}

// ExecutePrepared executes a statement previously returned by
// PrepareSQL, per IPROTO_EXECUTE.
func (c *Connector) ExecutePrepared(ctx context.Context, stmtID uint64, params []any) (iproto.Response, error) {
	body := map[uint64]any{
		iproto.KeyStmtID:  stmtID,
		iproto.KeySQLBind: params,
	}
	return c.roundTrip(ctx, iproto.OpExecute, body)
}

// ExecuteSQL executes the SQL statement text directly (without a
// prior PrepareSQL), per IPROTO_EXECUTE.
func (c *Connector) ExecuteSQL(ctx context.Context, text string, params []any) (iproto.Response, error) {
	body := map[uint64]any{
		iproto.KeySQLText: text,
		iproto.KeySQLBind: params,
	}
	return c.roundTrip(ctx, iproto.OpExecute, body)
}
