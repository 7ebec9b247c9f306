// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgpack

// Optional represents a value that the wire may send as either nil or a
// T (spec §4.3). Used in place of a pointer field when T is already
// small and copyable, e.g. a response header's optional schema version.
type Optional[T any] struct {
	Value T
	Valid bool
}

// Some returns a valid Optional wrapping v.
func Some[T any](v T) Optional[T] { return Optional[T]{Value: v, Valid: true} }

// None returns an invalid (nil-on-the-wire) Optional.
func None[T any]() Optional[T] { return Optional[T]{} }

// Get returns v's value and whether it was present.
func (o Optional[T]) Get() (T, bool) { return o.Value, o.Valid }

type optionalRule interface {
	encodeOptional(e *Encoder) error
}

type optionalDecodeRule interface {
	decodeOptional(d *Decoder) error
}

func (o Optional[T]) encodeOptional(e *Encoder) error {
	if !o.Valid {
		e.EncodeNil()
		return nil
	}
	return Value(e, o.Value)
}

func (o *Optional[T]) decodeOptional(d *Decoder) error {
	if d.PeekIsNil() {
		if err := d.Decode(new(Nil)); err != nil {
			return err
		}
		var zero T
		o.Value, o.Valid = zero, false
		return nil
	}
	if err := d.Decode(&o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}
