// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package parser implements the wire-format parsers/formatters a source
// or destination negotiates: RFC3164 and RFC5424 syslog line formats and
// a flat JSON format, satisfying spec.md §6's
// parse(bytes, event) -> {ok, need-more, error} contract.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nishisan-dev/logpipe/internal/event"
)

// RFC3164 parses classic BSD syslog lines:
//
//	<PRI>Mmm dd hh:mm:ss HOSTNAME TAG: MSG
//
// An empty frame, or one whose PRI tag has no closing '>' yet, is
// treated as incomplete input (needMore=true) rather than a hard error,
// since a byte-oriented transport may have split a line mid-write. A
// frame that does not start with '<' is an error.
type RFC3164 struct{}

func (RFC3164) Parse(seq uint64, frame []byte) (*event.Event, bool, error) {
	line := string(frame)
	if line == "" {
		return nil, true, nil
	}
	if line[0] != '<' {
		return nil, false, fmt.Errorf("rfc3164: missing PRI tag")
	}
	end := strings.IndexByte(line, '>')
	if end < 0 {
		return nil, true, nil
	}
	pri, err := strconv.Atoi(line[1:end])
	if err != nil {
		return nil, false, fmt.Errorf("rfc3164: invalid PRI: %w", err)
	}
	rest := line[end+1:]

	ev := event.New(seq)
	_ = ev.Set("facility", event.Int64(int64(pri/8)))
	_ = ev.Set("severity", event.Int64(int64(pri%8)))

	// Timestamp is a fixed-width "Mmm dd hh:mm:ss" (15 bytes) when
	// present; tolerate its absence rather than failing the whole frame.
	if len(rest) >= 15 {
		if ts, err := time.Parse("Jan _2 15:04:05", rest[:15]); err == nil {
			now := time.Now()
			ts = time.Date(now.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, time.Local)
			_ = ev.Set("timestamp", event.Time(ts))
			rest = strings.TrimPrefix(rest[15:], " ")
		}
	}

	host, msg, ok := strings.Cut(rest, " ")
	if !ok {
		host, msg = "", rest
	}
	_ = ev.Set("host", event.String(host))
	_ = ev.Set("message", event.String(msg))
	return ev, false, nil
}

// Format3164 renders an event back into RFC3164 wire form, used by
// destinations that re-emit in the same dialect they received.
func Format3164(ev *event.Event) ([]byte, error) {
	facility, _ := getInt(ev, "facility")
	severity, _ := getInt(ev, "severity")
	pri := facility*8 + severity

	ts := time.Now()
	if v, ok := ev.Get("timestamp"); ok {
		if t, ok := v.AsTime(); ok {
			ts = t
		}
	}
	host, _ := getString(ev, "host")
	msg, _ := getString(ev, "message")

	return []byte(fmt.Sprintf("<%d>%s %s %s", pri, ts.Format("Jan _2 15:04:05"), host, msg)), nil
}

func getInt(ev *event.Event, name string) (int64, bool) {
	v, ok := ev.Get(name)
	if !ok {
		return 0, false
	}
	return v.AsInt64()
}

func getString(ev *event.Event, name string) (string, bool) {
	v, ok := ev.Get(name)
	if !ok {
		return "", false
	}
	return v.AsString()
}
