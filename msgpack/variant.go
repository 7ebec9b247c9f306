// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgpack

import (
	"fmt"

	"github.com/tarantool-go/tntgo/tnterr"
)

// Alt declares one alternative of a Variant's sum type: the wire
// families it claims, and a constructor returning a fresh pointer to
// decode into when an incoming object's family matches.
type Alt struct {
	Accept Family
	New    func() any
}

// Variant holds a value whose wire shape is not known until decode time
// (spec §4.6's "sum type over A | B | ..."). With Alts declared, decode
// walks them in order and commits to the first whose Accept family set
// contains the incoming wire family: it constructs a fresh instance via
// New and decodes the wire object into it. This is what lets two
// alternatives that share a wire family (e.g. two different map-shaped
// Rule types) be told apart by declaration order, rather than both
// collapsing into one generic map[string]any.
//
// With no Alts declared, Variant falls back to decoding into whichever
// of Go's natural representations matches the wire family (nil, bool,
// uint64, int64, float64, string, []byte, []any, map[string]any, or
// ExtValue), optionally restricted to a subset via Accept. Tarantool's
// IPROTO uses this shape for a handful of fields that changed type
// across protocol versions (e.g. an error response body that is either
// a plain string or a structured map, depending on IPROTO_FEATURE
// negotiation).
type Variant struct {
	Alts   []Alt
	Accept Family // used only when Alts is empty; FamilyNone means "accept anything"
	Value  any
}

type variantRule interface {
	encodeVariant(e *Encoder) error
}

type variantDecodeRule interface {
	decodeVariant(d *Decoder) error
}

func (v Variant) encodeVariant(e *Encoder) error {
	return Value(e, v.Value)
}

func (v *Variant) decodeVariant(d *Decoder) error {
	fam, err := d.PeekFamily()
	if err != nil {
		return err
	}
	if fam == FamilyNone {
		return tnterr.ErrBrokenMsgpack
	}

	if len(v.Alts) > 0 {
		for _, alt := range v.Alts {
			if !alt.Accept.Has(fam) {
				continue
			}
			dst := alt.New()
			if err := d.Decode(dst); err != nil {
				return err
			}
			v.Value = dst
			return nil
		}
		return fmt.Errorf("%w: variant saw family %s, no alternative accepts it", tnterr.ErrWrongType, fam)
	}

	if v.Accept != FamilyNone && !v.Accept.Has(fam) {
		return fmt.Errorf("%w: variant saw family %s, wants %s", tnterr.ErrWrongType, fam, v.Accept)
	}
	val, err := d.decodeAny()
	if err != nil {
		return err
	}
	v.Value = val
	return nil
}
