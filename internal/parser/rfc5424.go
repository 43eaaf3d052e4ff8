// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nishisan-dev/logpipe/internal/event"
)

// RFC5424 parses structured syslog lines:
//
//	<PRI>VERSION TIMESTAMP HOSTNAME APP-NAME PROCID MSGID STRUCTURED-DATA MSG
//
// STRUCTURED-DATA ("-" or "[...]" elements) is carried through verbatim
// as a string field rather than fully decomposed into SD-ID/param pairs;
// a later enrichment node can parse it further if a component needs to.
type RFC5424 struct{}

func (RFC5424) Parse(seq uint64, frame []byte) (*event.Event, bool, error) {
	line := string(frame)
	if line == "" {
		return nil, true, nil
	}
	if line[0] != '<' {
		return nil, false, fmt.Errorf("rfc5424: missing PRI tag")
	}
	end := strings.IndexByte(line, '>')
	if end < 0 {
		return nil, true, nil
	}
	pri, err := strconv.Atoi(line[1:end])
	if err != nil {
		return nil, false, fmt.Errorf("rfc5424: invalid PRI: %w", err)
	}
	rest := line[end+1:]

	fields := strings.SplitN(rest, " ", 7)
	if len(fields) < 7 {
		return nil, true, nil
	}

	ev := event.New(seq)
	_ = ev.Set("facility", event.Int64(int64(pri/8)))
	_ = ev.Set("severity", event.Int64(int64(pri%8)))
	_ = ev.Set("version", event.String(fields[0]))
	if ts, err := time.Parse(time.RFC3339Nano, fields[1]); err == nil {
		_ = ev.Set("timestamp", event.Time(ts))
	}
	_ = ev.Set("host", nonNil(fields[2]))
	_ = ev.Set("app", nonNil(fields[3]))
	_ = ev.Set("procid", nonNil(fields[4]))
	_ = ev.Set("msgid", nonNil(fields[5]))

	// fields[6] is "STRUCTURED-DATA MSG" run together by the SplitN cap;
	// split it ourselves since SD may be "-" (no data) or one or more
	// "[...]" elements, each ending at its first ']'.
	sd, msg := splitStructuredData(fields[6])
	_ = ev.Set("structured_data", event.String(sd))
	_ = ev.Set("message", event.String(msg))

	return ev, false, nil
}

// splitStructuredData separates the STRUCTURED-DATA portion from the
// free-form MSG that follows it. Each bracket-delimited element ends at
// its first ']', so spaces inside an element are fine, but an escaped
// "\]" inside a quoted parameter value ends the element early.
func splitStructuredData(rest string) (sd, msg string) {
	if rest == "" {
		return "-", ""
	}
	if rest[0] == '-' {
		if len(rest) > 1 && rest[1] == ' ' {
			return "-", rest[2:]
		}
		return "-", ""
	}
	if rest[0] != '[' {
		return "-", rest
	}
	i := 0
	for i < len(rest) && rest[i] == '[' {
		close := strings.IndexByte(rest[i:], ']')
		if close < 0 {
			return rest, ""
		}
		i += close + 1
	}
	sd = rest[:i]
	if i < len(rest) && rest[i] == ' ' {
		msg = rest[i+1:]
	}
	return sd, msg
}

func nonNil(s string) event.Value {
	if s == "-" {
		return event.Null()
	}
	return event.String(s)
}
