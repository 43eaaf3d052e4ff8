// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package event

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON renders an event's fields as a flat JSON object, used by
// JSON-formatted destinations.
// Scalars map directly; list/mapping containers recurse.
func MarshalJSON(e *Event) ([]byte, error) {
	m := make(map[string]any, e.Len())
	for _, name := range e.Names() {
		v, _ := e.Get(name)
		jv, err := valueToJSON(v)
		if err != nil {
			return nil, fmt.Errorf("event: field %q: %w", name, err)
		}
		m[name] = jv
	}
	return json.Marshal(m)
}

func valueToJSON(v Value) (any, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindString:
		s, _ := v.AsString()
		return s, nil
	case KindBytes:
		b, _ := v.AsBytes()
		return string(b), nil
	case KindBool:
		b, _ := v.AsBool()
		return b, nil
	case KindInt64:
		i, _ := v.AsInt64()
		return i, nil
	case KindFloat64:
		f, _ := v.AsFloat64()
		return f, nil
	case KindTime:
		t, _ := v.AsTime()
		return t, nil
	case KindList:
		l, _ := v.AsList()
		out := make([]any, l.Len())
		for i := 0; i < l.Len(); i++ {
			jv, err := valueToJSON(l.At(i))
			if err != nil {
				return nil, err
			}
			out[i] = jv
		}
		return out, nil
	case KindMapping:
		mp, _ := v.AsMapping()
		out := make(map[string]any, mp.Len())
		for _, k := range mp.Keys() {
			val, _ := mp.Get(k)
			jv, err := valueToJSON(val)
			if err != nil {
				return nil, err
			}
			out[k] = jv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", v.Kind())
	}
}

// UnmarshalJSON parses a flat JSON object into a new event with the given
// sequence number. JSON numbers decode as float64 unless they are
// whole-valued and fit in int64, matching the typical "numbers from the
// wire are mostly integers" expectation of log pipelines.
func UnmarshalJSON(seq uint64, data []byte) (*Event, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	ev := New(seq)
	for k, raw := range m {
		v, err := jsonToValue(raw)
		if err != nil {
			return nil, fmt.Errorf("event: field %q: %w", k, err)
		}
		_ = ev.Set(k, v)
	}
	return ev, nil
}

func jsonToValue(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		if t == float64(int64(t)) {
			return Int64(int64(t)), nil
		}
		return Float64(t), nil
	case []any:
		l := NewList()
		for _, item := range t {
			v, err := jsonToValue(item)
			if err != nil {
				return Value{}, err
			}
			_ = l.Append(v)
		}
		return FromList(l), nil
	case map[string]any:
		mp := NewMapping()
		for k, item := range t {
			v, err := jsonToValue(item)
			if err != nil {
				return Value{}, err
			}
			_ = mp.Set(k, v)
		}
		return FromMapping(mp), nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON type %T", raw)
	}
}
