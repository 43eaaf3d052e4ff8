// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package parser

import "github.com/nishisan-dev/logpipe/internal/event"

// JSON parses one JSON object per frame into an event, delegating to
// event.UnmarshalJSON. A JSON frame is always complete as received since
// the transport is expected to already be frame-delimited (newline or
// length-prefixed); this parser never returns needMore=true.
type JSON struct{}

func (JSON) Parse(seq uint64, frame []byte) (*event.Event, bool, error) {
	ev, err := event.UnmarshalJSON(seq, frame)
	if err != nil {
		return nil, false, err
	}
	return ev, false, nil
}

// FormatJSON renders an event as a flat JSON object.
func FormatJSON(ev *event.Event) ([]byte, error) {
	return event.MarshalJSON(ev)
}
