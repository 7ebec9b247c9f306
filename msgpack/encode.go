// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgpack

import (
	"fmt"
	"reflect"

	"github.com/tarantool-go/tntgo/buffer"
)

// Encoder is the write-side handle passed to Rule.EncodeMsgpack, and the
// thing container-shape inference recurses through for element and
// value encoding.
type Encoder struct {
	buf *buffer.Buffer
}

// Buffer returns the destination buffer, for Rule implementations that
// need to drop down to the low-level header/body calls directly (e.g.
// to reserve a length prefix and backfill it after writing a
// variable-length body; see buffer.Buffer.AdvanceBack).
func (e *Encoder) Buffer() *buffer.Buffer { return e.buf }

func (e *Encoder) EncodeNil()                 { encodeNil(e.buf) }
func (e *Encoder) EncodeBool(v bool)          { encodeBool(e.buf, v) }
func (e *Encoder) EncodeUint(v uint64)        { encodeUint(e.buf, v) }
func (e *Encoder) EncodeInt(v int64)          { encodeInt(e.buf, v) }
func (e *Encoder) EncodeFloat32(v float32)    { encodeFloat32(e.buf, v) }
func (e *Encoder) EncodeFloat64(v float64)    { encodeFloat64(e.buf, v) }
func (e *Encoder) EncodeStr(v string)         { encodeStr(e.buf, v) }
func (e *Encoder) EncodeBin(v []byte)         { encodeBin(e.buf, v) }
func (e *Encoder) EncodeArrayHeader(n int)    { encodeArrayHeader(e.buf, n) }
func (e *Encoder) EncodeMapHeader(n int)      { encodeMapHeader(e.buf, n) }
func (e *Encoder) EncodeExt(t int8, d []byte) { encodeExtHeader(e.buf, t, len(d)); e.buf.AppendBytes(d) }

// Encode recurses into v the same way the top-level Encode function
// does; Rule implementations call this for nested fields.
func (e *Encoder) Encode(v any) error { return Value(e, v) }

// Encode serializes v onto b. v may be one of the family-wrapping types
// in wrap.go, a Rule, an Optional[T], a Variant, or a Go-native value
// subject to container-shape inference (spec §4.5): bool, any numeric
// kind, string, []byte, slices/arrays, maps, and structs (positional by
// default, map-shaped when any field carries a "msgpack" tag).
func Encode(b *buffer.Buffer, v any) error {
	return Value(&Encoder{buf: b}, v)
}

// Value is the shared recursive encode step.
func Value(e *Encoder, v any) error {
	if v == nil {
		e.EncodeNil()
		return nil
	}
	if handled, err := encodeWrapped(e.buf, v); handled {
		return err
	}
	if r, ok := v.(Rule); ok {
		return r.EncodeMsgpack(e)
	}
	if o, ok := v.(optionalRule); ok {
		return o.encodeOptional(e)
	}
	if va, ok := v.(variantRule); ok {
		return va.encodeVariant(e)
	}
	return encodeReflect(e, reflect.ValueOf(v))
}

func encodeReflect(e *Encoder, rv reflect.Value) error {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			e.EncodeNil()
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Invalid:
		e.EncodeNil()
		return nil
	case reflect.Bool:
		e.EncodeBool(rv.Bool())
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.EncodeInt(rv.Int())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.EncodeUint(rv.Uint())
		return nil
	case reflect.Float32:
		e.EncodeFloat32(float32(rv.Float()))
		return nil
	case reflect.Float64:
		e.EncodeFloat64(rv.Float())
		return nil
	case reflect.String:
		e.EncodeStr(rv.String())
		return nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.IsNil() {
				e.EncodeNil()
				return nil
			}
			e.EncodeBin(rv.Bytes())
			return nil
		}
		return encodeSequence(e, rv)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(buf), rv)
			e.EncodeBin(buf)
			return nil
		}
		return encodeSequence(e, rv)
	case reflect.Map:
		return encodeMap(e, rv)
	case reflect.Struct:
		return encodeStruct(e, rv)
	case reflect.Interface:
		return Value(e, rv.Interface())
	default:
		return fmt.Errorf("msgpack: cannot encode kind %s", rv.Kind())
	}
}

func encodeSequence(e *Encoder, rv reflect.Value) error {
	n := rv.Len()
	e.EncodeArrayHeader(n)
	for i := 0; i < n; i++ {
		if err := Value(e, rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("msgpack: element %d: %w", i, err)
		}
	}
	return nil
}

func encodeMap(e *Encoder, rv reflect.Value) error {
	keys := rv.MapKeys()
	e.EncodeMapHeader(len(keys))
	for _, k := range keys {
		if err := Value(e, k.Interface()); err != nil {
			return fmt.Errorf("msgpack: map key: %w", err)
		}
		if err := Value(e, rv.MapIndex(k).Interface()); err != nil {
			return fmt.Errorf("msgpack: map value: %w", err)
		}
	}
	return nil
}

func encodeStruct(e *Encoder, rv reflect.Value) error {
	info := structInfoFor(rv.Type())
	if info.asMap {
		present := make([]structField, 0, len(info.fields))
		for _, f := range info.fields {
			fv := rv.FieldByIndex(f.index)
			if f.omitempty && fv.IsZero() {
				continue
			}
			present = append(present, f)
		}
		e.EncodeMapHeader(len(present))
		for _, f := range present {
			e.EncodeStr(f.name)
			if err := Value(e, rv.FieldByIndex(f.index).Interface()); err != nil {
				return fmt.Errorf("msgpack: field %q: %w", f.name, err)
			}
		}
		return nil
	}
	e.EncodeArrayHeader(len(info.fields))
	for _, f := range info.fields {
		if err := Value(e, rv.FieldByIndex(f.index).Interface()); err != nil {
			return fmt.Errorf("msgpack: field %q: %w", f.name, err)
		}
	}
	return nil
}
