// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package event

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

func bitsFromFloat(f float64) uint64 { return math.Float64bits(f) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }

// WireVersion identifies the on-disk/on-wire event encoding, mirroring
// the protocol package's single version-byte convention.
const WireVersion byte = 0x01

var (
	ErrTruncated     = errors.New("event: truncated record")
	ErrUnsupportedVersion = errors.New("event: unsupported wire version")
)

// Marshal encodes an event into the queue/transport wire format:
//
//	[Version 1B] [Seq uint64 8B] [FieldCount uint32 4B] field...
//
// each field is:
//
//	[NameLen uint16 2B] [Name] [Kind 1B] [ValueLen uint32 4B] [Value bytes]
//
// Container kinds (list/mapping) are rejected for now — queue persistence
// operates on flattened scalar events; a node that needs to persist a
// container field must flatten it upstream of the queue.
func Marshal(e *Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(WireVersion)
	if err := binary.Write(&buf, binary.BigEndian, e.Seq); err != nil {
		return nil, err
	}
	names := e.Names()
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(names))); err != nil {
		return nil, err
	}
	for _, name := range names {
		v, _ := e.Get(name)
		raw, kind, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("event: encoding field %q: %w", name, err)
		}
		if len(name) > 0xFFFF {
			return nil, fmt.Errorf("event: field name %q too long", name)
		}
		binary.Write(&buf, binary.BigEndian, uint16(len(name)))
		buf.WriteString(name)
		buf.WriteByte(byte(kind))
		binary.Write(&buf, binary.BigEndian, uint32(len(raw)))
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a buffer produced by Marshal into a fresh Event.
func Unmarshal(data []byte) (*Event, error) {
	r := bytes.NewReader(data)
	var version byte
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, ErrTruncated
	}
	if version != WireVersion {
		return nil, ErrUnsupportedVersion
	}
	var seq uint64
	if err := binary.Read(r, binary.BigEndian, &seq); err != nil {
		return nil, ErrTruncated
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, ErrTruncated
	}

	ev := New(seq)
	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
			return nil, ErrTruncated
		}
		nameBuf := make([]byte, nameLen)
		if _, err := r.Read(nameBuf); err != nil {
			return nil, ErrTruncated
		}
		var kindByte byte
		if err := binary.Read(r, binary.BigEndian, &kindByte); err != nil {
			return nil, ErrTruncated
		}
		var valLen uint32
		if err := binary.Read(r, binary.BigEndian, &valLen); err != nil {
			return nil, ErrTruncated
		}
		valBuf := make([]byte, valLen)
		if _, err := r.Read(valBuf); err != nil {
			return nil, ErrTruncated
		}
		v, err := decodeValue(Kind(kindByte), valBuf)
		if err != nil {
			return nil, fmt.Errorf("event: decoding field %q: %w", string(nameBuf), err)
		}
		_ = ev.Set(string(nameBuf), v)
	}
	return ev, nil
}

func encodeValue(v Value) ([]byte, Kind, error) {
	switch v.Kind() {
	case KindNull:
		return nil, KindNull, nil
	case KindString:
		s, _ := v.AsString()
		return []byte(s), KindString, nil
	case KindBytes:
		b, _ := v.AsBytes()
		return b, KindBytes, nil
	case KindBool:
		b, _ := v.AsBool()
		if b {
			return []byte{1}, KindBool, nil
		}
		return []byte{0}, KindBool, nil
	case KindInt64:
		i, _ := v.AsInt64()
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(i))
		return buf, KindInt64, nil
	case KindFloat64:
		f, _ := v.AsFloat64()
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(bitsFromFloat(f)))
		return buf, KindFloat64, nil
	case KindTime:
		t, _ := v.AsTime()
		b, err := t.MarshalBinary()
		return b, KindTime, err
	default:
		return nil, 0, fmt.Errorf("event: kind %s not wire-encodable", v.Kind())
	}
}

func decodeValue(k Kind, raw []byte) (Value, error) {
	switch k {
	case KindNull:
		return Null(), nil
	case KindString:
		return String(string(raw)), nil
	case KindBytes:
		return Bytes(raw), nil
	case KindBool:
		return Bool(len(raw) > 0 && raw[0] != 0), nil
	case KindInt64:
		if len(raw) != 8 {
			return Value{}, ErrTruncated
		}
		return Int64(int64(binary.BigEndian.Uint64(raw))), nil
	case KindFloat64:
		if len(raw) != 8 {
			return Value{}, ErrTruncated
		}
		return Float64(floatFromBits(binary.BigEndian.Uint64(raw))), nil
	case KindTime:
		var t time.Time
		if err := t.UnmarshalBinary(raw); err != nil {
			return Value{}, err
		}
		return Time(t), nil
	default:
		return Value{}, fmt.Errorf("event: kind %d not wire-decodable", k)
	}
}
