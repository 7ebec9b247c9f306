// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgpack

import (
	"reflect"
	"strings"
	"sync"
)

// Rule lets an application type take full control of how it is
// serialized, bypassing container-shape inference entirely (spec §4.3
// "user-declared rules", grounded on the original's Rules.hpp
// declarative tuple/map descriptors, re-expressed here as an
// encoding/json-style Marshaler pair since that is the idiomatic Go
// equivalent the example pack's codecs use for custom types).
type Rule interface {
	EncodeMsgpack(enc *Encoder) error
}

// DecodeRule is the decode-side half of Rule.
type DecodeRule interface {
	DecodeMsgpack(dec *Decoder) error
}

// structField describes one struct field's wire representation, built
// once per type and cached in structCache.
type structField struct {
	index     []int
	name      string
	omitempty bool
}

// structInfo is the compiled shape of a struct type: either a
// positional tuple (the Tarantool-native shape for space tuples, the
// default when no field carries an explicit msgpack tag) or a
// string-keyed map (triggered by any field tag), matching spec §4.3's
// "positional or map, selected by declaration".
type structInfo struct {
	fields []structField
	asMap  bool
}

var structCache sync.Map // reflect.Type -> *structInfo

func structInfoFor(t reflect.Type) *structInfo {
	if v, ok := structCache.Load(t); ok {
		return v.(*structInfo)
	}
	info := buildStructInfo(t)
	actual, _ := structCache.LoadOrStore(t, info)
	return actual.(*structInfo)
}

func buildStructInfo(t reflect.Type) *structInfo {
	info := &structInfo{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue // unexported
		}
		tag, ok := f.Tag.Lookup("msgpack")
		if ok && tag == "-" {
			continue
		}
		name := f.Name
		omitempty := false
		if ok {
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				name = parts[0]
				info.asMap = true
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitempty = true
				}
			}
		}
		info.fields = append(info.fields, structField{index: f.Index, name: name, omitempty: omitempty})
	}
	return info
}

// fieldByName finds the compiled field descriptor with the given wire
// name, used by the decoder's match-or-skip struct-from-map path.
func (info *structInfo) fieldByName(name string) (structField, bool) {
	for _, f := range info.fields {
		if f.name == name {
			return f, true
		}
	}
	return structField{}, false
}
