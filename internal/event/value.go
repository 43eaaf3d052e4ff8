// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package event implements the pipeline's event record: a typed,
// copy-on-write, reference-counted bag of named values flowing between
// nodes.
package event

import (
	"fmt"
	"time"
)

// Kind tags the closed set of value types an event field may hold.
type Kind byte

const (
	KindNull Kind = iota
	KindString
	KindBytes
	KindBool
	KindInt64
	KindFloat64
	KindTime
	KindProto
	KindList
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindTime:
		return "time"
	case KindProto:
		return "proto"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a single typed field value. The zero Value is KindNull.
type Value struct {
	kind    Kind
	str     string
	bytes   []byte
	boolean bool
	i64     int64
	f64     float64
	t       time.Time
	proto   any
	list    *List
	mapping *Mapping
}

func Null() Value                 { return Value{kind: KindNull} }
func String(s string) Value       { return Value{kind: KindString, str: s} }
func Bytes(b []byte) Value        { return Value{kind: KindBytes, bytes: b} }
func Bool(b bool) Value           { return Value{kind: KindBool, boolean: b} }
func Int64(i int64) Value         { return Value{kind: KindInt64, i64: i} }
func Float64(f float64) Value     { return Value{kind: KindFloat64, f64: f} }
func Time(t time.Time) Value      { return Value{kind: KindTime, t: t} }
func Proto(m any) Value           { return Value{kind: KindProto, proto: m} }
func FromList(l *List) Value      { return Value{kind: KindList, list: l} }
func FromMapping(m *Mapping) Value { return Value{kind: KindMapping, mapping: m} }

func (v Value) Kind() Kind { return v.kind }

// String-ish accessors return (value, ok), with ok false on a kind
// mismatch; none of the accessors panic.

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolean, true
}

func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindInt64 {
		return 0, false
	}
	return v.i64, true
}

func (v Value) AsFloat64() (float64, bool) {
	if v.kind != KindFloat64 {
		return 0, false
	}
	return v.f64, true
}

func (v Value) AsTime() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

func (v Value) AsProto() (any, bool) {
	if v.kind != KindProto {
		return nil, false
	}
	return v.proto, true
}

func (v Value) AsList() (*List, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) AsMapping() (*Mapping, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	return v.mapping, true
}

// ToString renders any value as a display string, used by the
// fallback-to-string on-error policy.
func (v Value) ToString() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindBytes:
		return string(v.bytes)
	case KindBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindInt64:
		return fmt.Sprintf("%d", v.i64)
	case KindFloat64:
		return fmt.Sprintf("%g", v.f64)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindProto:
		return fmt.Sprintf("%v", v.proto)
	case KindList:
		return "[list]"
	case KindMapping:
		return "{mapping}"
	default:
		return ""
	}
}

// Clone returns a value safe to store in another event. Scalars are
// copied by value; containers are reference-shared and marked
// copy-on-write so mutation through either handle forks storage lazily.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		return FromList(v.list.share())
	case KindMapping:
		return FromMapping(v.mapping.share())
	default:
		return v
	}
}
