// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package internalsource

import (
	"encoding/binary"
	"errors"

	"github.com/nishisan-dev/logpipe/internal/errkind"
)

var errClosed = errors.New("internalsource: sink closed")

// encodeRecord/decodeRecord give Record a trivial self-contained wire
// form: [Kind 1B] [ComponentLen u16] [Component] [Message...]. It never
// leaves process memory, so there is no versioning concern here.
func encodeRecord(r Record) []byte {
	out := make([]byte, 0, 1+2+len(r.Component)+len(r.Message))
	out = append(out, byte(r.Kind))
	cl := make([]byte, 2)
	binary.BigEndian.PutUint16(cl, uint16(len(r.Component)))
	out = append(out, cl...)
	out = append(out, r.Component...)
	out = append(out, r.Message...)
	return out
}

func decodeRecord(frame []byte) Record {
	if len(frame) < 3 {
		return Record{Kind: errkind.KindUnknown, Message: string(frame)}
	}
	kind := errkind.Kind(frame[0])
	cl := binary.BigEndian.Uint16(frame[1:3])
	rest := frame[3:]
	if int(cl) > len(rest) {
		return Record{Kind: kind, Message: string(rest)}
	}
	component := string(rest[:cl])
	message := string(rest[cl:])
	return Record{Kind: kind, Component: component, Message: message}
}
