// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgpack

import (
	"fmt"
	"reflect"

	"github.com/tarantool-go/tntgo/buffer"
	"github.com/tarantool-go/tntgo/tnterr"
)

// Decoder is the read-side handle passed to DecodeRule.DecodeMsgpack. It
// wraps a buffer.LightCursor so a caller composing a bigger frame out of
// several Decode calls can keep advancing the same cursor; on a
// tnterr.ErrNeedMore from any call the cursor is left exactly where it
// was before that call (spec §4.4), so the same Decoder can simply be
// retried once more bytes have arrived on the wire.
type Decoder struct {
	lc    *buffer.LightCursor
	depth int
}

// NewDecoder returns a Decoder reading from lc.
func NewDecoder(lc *buffer.LightCursor) *Decoder {
	return &Decoder{lc: lc, depth: maxDepth}
}

// Cursor returns the underlying LightCursor, for callers stepping
// outside the msgpack wire format (e.g. reading a fixed-size IPROTO
// length prefix that precedes the msgpack-encoded body).
func (d *Decoder) Cursor() *buffer.LightCursor { return d.lc }

// PeekFamily reports the wire family of the next object without
// consuming it, or an error (typically tnterr.ErrNeedMore) if the tag
// byte itself has not arrived yet.
func (d *Decoder) PeekFamily() (Family, error) {
	tag, err := peekTag(d.lc)
	if err != nil {
		return FamilyNone, err
	}
	return familyOfTag(tag), nil
}

// PeekIsNil reports whether the next object is msgpack nil, treating a
// not-enough-bytes condition as "not nil" so callers fall through to
// their normal decode path and surface ErrNeedMore from there.
func (d *Decoder) PeekIsNil() bool {
	fam, err := d.PeekFamily()
	return err == nil && fam == FamilyNil
}

// Skip discards exactly one complete object, honoring the decoder's
// remaining depth budget.
func (d *Decoder) Skip() error { return skip(d.lc, d.depth) }

// Decode decodes the next object into dst, which must be a non-nil
// pointer, one of the family-wrapping pointer types in wrap.go, or a
// type implementing DecodeRule.
func (d *Decoder) Decode(dst any) error {
	if handled, err := decodeWrapped(d.lc, dst); handled {
		return err
	}
	if r, ok := dst.(DecodeRule); ok {
		return r.DecodeMsgpack(d)
	}
	if o, ok := dst.(optionalDecodeRule); ok {
		return o.decodeOptional(d)
	}
	if va, ok := dst.(variantDecodeRule); ok {
		return va.decodeVariant(d)
	}
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("msgpack: Decode destination must be a non-nil pointer, got %T", dst)
	}
	if d.depth <= 0 {
		return tnterr.ErrMaxDepth
	}
	return d.decodeInto(rv.Elem())
}

// Decode decodes the next object from lc into dst. It is the package's
// main entry point; NewDecoder is for callers that need to Decode more
// than once against the same cursor (e.g. an array of heterogeneous
// elements) or that implement DecodeRule themselves.
func Decode(lc *buffer.LightCursor, dst any) error {
	return NewDecoder(lc).Decode(dst)
}

func (d *Decoder) child() *Decoder { return &Decoder{lc: d.lc, depth: d.depth - 1} }

func (d *Decoder) decodeInto(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Interface:
		if rv.NumMethod() != 0 {
			return fmt.Errorf("msgpack: cannot decode into non-empty interface %s", rv.Type())
		}
		v, err := d.decodeAny()
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(v))
		return nil
	case reflect.Pointer:
		if d.PeekIsNil() {
			_ = decodeNil(d.lc)
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return d.decodeInto(rv.Elem())
	case reflect.Bool:
		v, err := decodeBool(d.lc)
		if err != nil {
			return err
		}
		rv.SetBool(v)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := decodeIntHeader(d.lc)
		if err != nil {
			return err
		}
		rv.SetInt(v)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		v, err := decodeUintHeader(d.lc)
		if err != nil {
			return err
		}
		rv.SetUint(v)
		return nil
	case reflect.Float32, reflect.Float64:
		v, err := decodeFloat64(d.lc)
		if err != nil {
			return err
		}
		rv.SetFloat(v)
		return nil
	case reflect.String:
		v, err := decodeStr(d.lc)
		if err != nil {
			return err
		}
		rv.SetString(v)
		return nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			v, err := decodeBin(d.lc)
			if err != nil {
				return err
			}
			rv.SetBytes(v)
			return nil
		}
		return d.decodeSliceInto(rv)
	case reflect.Array:
		return d.decodeArrayInto(rv)
	case reflect.Map:
		return d.decodeMapInto(rv)
	case reflect.Struct:
		return d.decodeStructInto(rv)
	default:
		return fmt.Errorf("msgpack: cannot decode into kind %s", rv.Kind())
	}
}

func (d *Decoder) decodeSliceInto(rv reflect.Value) error {
	save := *d.lc
	n, _, err := decodeLenHeader(d.lc, FamilyArr)
	if err != nil {
		return err
	}
	out := reflect.MakeSlice(rv.Type(), n, n)
	sub := d.child()
	for i := 0; i < n; i++ {
		if err := sub.decodeInto(out.Index(i)); err != nil {
			*d.lc = save
			return err
		}
	}
	rv.Set(out)
	return nil
}

func (d *Decoder) decodeArrayInto(rv reflect.Value) error {
	save := *d.lc
	n, _, err := decodeLenHeader(d.lc, FamilyArr)
	if err != nil {
		return err
	}
	if n != rv.Len() {
		*d.lc = save
		return fmt.Errorf("%w: array length %d does not match destination [%d]%s", tnterr.ErrWrongType, n, rv.Len(), rv.Type().Elem())
	}
	sub := d.child()
	for i := 0; i < n; i++ {
		if err := sub.decodeInto(rv.Index(i)); err != nil {
			*d.lc = save
			return err
		}
	}
	return nil
}

func (d *Decoder) decodeMapInto(rv reflect.Value) error {
	save := *d.lc
	n, _, err := decodeLenHeader(d.lc, FamilyMap)
	if err != nil {
		return err
	}
	out := reflect.MakeMapWithSize(rv.Type(), n)
	keyType, valType := rv.Type().Key(), rv.Type().Elem()
	sub := d.child()
	for i := 0; i < n; i++ {
		k := reflect.New(keyType).Elem()
		if err := sub.decodeInto(k); err != nil {
			*d.lc = save
			return err
		}
		v := reflect.New(valType).Elem()
		if err := sub.decodeInto(v); err != nil {
			*d.lc = save
			return err
		}
		out.SetMapIndex(k, v)
	}
	rv.Set(out)
	return nil
}

// decodeStructInto decodes a struct either as a positional tuple (array
// on the wire) or, if the struct's compiled shape is map-keyed, via
// match-or-skip: every map entry on the wire is decoded into its
// matching field if the struct declares one, and discarded with Skip
// otherwise (spec §4.4's decode contract for user-declared map rules —
// unknown keys are not an error, letting a server add response fields
// without breaking older clients).
func (d *Decoder) decodeStructInto(rv reflect.Value) error {
	info := structInfoFor(rv.Type())
	save := *d.lc
	fam, err := d.PeekFamily()
	if err != nil {
		return err
	}
	sub := d.child()
	if info.asMap || fam == FamilyMap {
		n, _, err := decodeLenHeader(d.lc, FamilyMap)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			var key string
			if err := sub.decodeInto(reflect.ValueOf(&key).Elem()); err != nil {
				*d.lc = save
				return err
			}
			f, ok := info.fieldByName(key)
			if !ok {
				if err := sub.Skip(); err != nil {
					*d.lc = save
					return err
				}
				continue
			}
			if err := sub.decodeInto(rv.FieldByIndex(f.index)); err != nil {
				*d.lc = save
				return err
			}
		}
		return nil
	}
	fullN, _, err := decodeLenHeader(d.lc, FamilyArr)
	if err != nil {
		return err
	}
	n := fullN
	if n > len(info.fields) {
		n = len(info.fields) // tolerate a server sending trailing fields we don't know about
	}
	for i := 0; i < n; i++ {
		if err := sub.decodeInto(rv.FieldByIndex(info.fields[i].index)); err != nil {
			*d.lc = save
			return err
		}
	}
	for i := n; i < fullN; i++ {
		if err := sub.Skip(); err != nil {
			*d.lc = save
			return err
		}
	}
	return nil
}

// decodeAny decodes the next object into its natural Go representation
// when the destination carries no static type (an interface{}, a
// Variant alternative, or a map[...]any value): nil, bool, int64 for the
// int family, uint64 for the uint family, float64, string, []byte,
// []any, or map[string]any.
func (d *Decoder) decodeAny() (any, error) {
	fam, err := d.PeekFamily()
	if err != nil {
		return nil, err
	}
	switch fam {
	case FamilyNil:
		if err := decodeNil(d.lc); err != nil {
			return nil, err
		}
		return nil, nil
	case FamilyBool:
		return decodeBool(d.lc)
	case FamilyUint:
		return decodeUintHeader(d.lc)
	case FamilyInt:
		return decodeIntHeader(d.lc)
	case FamilyFloat32, FamilyFloat64:
		return decodeFloat64(d.lc)
	case FamilyStr:
		return decodeStr(d.lc)
	case FamilyBin:
		return decodeBin(d.lc)
	case FamilyArr:
		save := *d.lc
		n, _, err := decodeLenHeader(d.lc, FamilyArr)
		if err != nil {
			return nil, err
		}
		out := make([]any, n)
		sub := d.child()
		for i := 0; i < n; i++ {
			v, err := sub.decodeAny()
			if err != nil {
				*d.lc = save
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case FamilyMap:
		save := *d.lc
		n, _, err := decodeLenHeader(d.lc, FamilyMap)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, n)
		sub := d.child()
		for i := 0; i < n; i++ {
			k, err := sub.decodeAnyMapKey()
			if err != nil {
				*d.lc = save
				return nil, err
			}
			v, err := sub.decodeAny()
			if err != nil {
				*d.lc = save
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case FamilyExt:
		var x ExtValue
		if err := d.Decode(&x); err != nil {
			return nil, err
		}
		return x, nil
	default:
		return nil, tnterr.ErrBrokenMsgpack
	}
}

// decodeAnyMapKey decodes a map key into a string for map[string]any
// destinations, rendering a non-string key (Tarantool IPROTO headers use
// small integer keys) as its decimal form so every key is still
// representable and round-trippable through Variant/fmt.
func (d *Decoder) decodeAnyMapKey() (string, error) {
	fam, err := d.PeekFamily()
	if err != nil {
		return "", err
	}
	if fam == FamilyStr {
		return decodeStr(d.lc)
	}
	v, err := d.decodeAny()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", v), nil
}
