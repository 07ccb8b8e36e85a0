// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"io"
	"strings"
)

// defaultSSEEventName is the event name used when a frame carries no
// "event:" field. The SSE specification calls this the default event
// type, "message".
const defaultSSEEventName = "message"

// SSEFrame is one (event, data) unit reconstructed from the
// Server-Sent-Events line protocol.
type SSEFrame struct {
	// Event is the frame's event name from the "event:" field, or
	// "message" when the frame had none.
	Event string

	// Data is the payload, assembled from one or more "data:" lines.
	// Multiple data lines are joined with "\n".
	Data string
}

// SSEScanner reconstructs SSE frames from a byte stream. The input
// may be fragmented at arbitrary chunk boundaries — mid-line,
// mid-field, or mid-rune — and the scanner buffers partial lines
// across reads, so the frame sequence is identical however the bytes
// were split.
//
// Line handling: lines starting with ":" are comments and ignored;
// "event:" sets the pending event name; "data:" appends to the
// pending payload (one leading space after the colon is stripped); an
// empty line flushes the pending frame, but only if at least one data
// line was accumulated. A frame still pending when the stream closes
// is emitted rather than dropped.
//
// Usage:
//
//	scanner := NewSSEScanner(reader)
//	for scanner.Next() {
//	    frame := scanner.Frame()
//	    // process frame.Event and frame.Data
//	}
//	if err := scanner.Err(); err != nil {
//	    // handle error
//	}
type SSEScanner struct {
	reader  *bufio.Reader
	current SSEFrame
	err     error
}

// NewSSEScanner creates a scanner reading from reader. The reader's
// chunking is irrelevant; frames are delimited only by the line
// protocol.
func NewSSEScanner(reader io.Reader) *SSEScanner {
	return &SSEScanner{
		reader: bufio.NewReaderSize(reader, 64*1024),
	}
}

// Next advances to the next frame. Returns false when the stream ends
// or a read error occurs; call [Err] afterward to distinguish the two.
func (scanner *SSEScanner) Next() bool {
	scanner.current = SSEFrame{}

	var dataLines []string
	eventName := ""
	hasData := false

	flush := func() SSEFrame {
		name := eventName
		if name == "" {
			name = defaultSSEEventName
		}
		return SSEFrame{Event: name, Data: strings.Join(dataLines, "\n")}
	}

	for {
		line, err := scanner.reader.ReadString('\n')

		// A read error with nothing buffered terminates the scan. On
		// clean EOF, a frame that was accumulated but never flushed
		// by a trailing blank line is emitted — the stream closing is
		// not a reason to drop it.
		if err != nil && line == "" {
			if err == io.EOF {
				if hasData {
					scanner.current = flush()
					scanner.err = io.EOF
					return true
				}
				return false
			}
			scanner.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		// Blank line: frame boundary. Flushes only if data was
		// accumulated; a boundary with no pending data resets the
		// event name and is otherwise inert.
		if line == "" {
			if hasData {
				scanner.current = flush()
				return true
			}
			eventName = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			// Comment line.
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon {
			field = line
			value = ""
		} else {
			// A single leading space after the colon is not part of
			// the value.
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventName = value
		default:
			// "id", "retry", and unknown fields are ignored.
		}
	}
}

// Frame returns the most recently parsed frame. Only valid after
// [Next] returned true.
func (scanner *SSEScanner) Frame() SSEFrame {
	return scanner.current
}

// Err returns the first read error encountered, or nil if scanning
// ended on a clean EOF.
func (scanner *SSEScanner) Err() error {
	if scanner.err == io.EOF {
		return nil
	}
	return scanner.err
}
