// Package stream reads batches of ER7 messages from a reader and processes
// them one at a time or in parallel.
package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// MaxSegmentSize is the longest segment line a Scanner accepts.
const MaxSegmentSize = 16 * 1024 * 1024

// Message is one message cut out of a batch.
type Message struct {
	// Index is the position of the message in the input, starting at 0.
	Index int

	// Line is the input line holding the message's MSH segment.
	Line int

	// Text is the message with segments joined by carriage returns.
	Text string
}

// Scanner splits a stream of ER7 text into messages. A message starts at
// each MSH segment. Batch and file envelope segments (FHS, BHS, BTS, FTS),
// MLLP framing bytes and blank lines are dropped.
type Scanner struct {
	sc   *bufio.Scanner
	line int

	buf       strings.Builder
	startLine int
	index     int

	msg Message
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxSegmentSize)
	sc.Split(splitSegments)
	return &Scanner{sc: sc}
}

// Scan advances to the next message. It returns false at the end of the
// input or on a read error.
func (s *Scanner) Scan() bool {
	for s.sc.Scan() {
		s.line++
		line := strings.TrimRight(strings.TrimLeft(s.sc.Text(), " \t\ufeff\x0b"), "\x1c")
		if line == "" || isEnvelope(line) {
			continue
		}

		if strings.HasPrefix(line, "MSH") && s.buf.Len() > 0 {
			s.emit()
			s.begin(line)
			return true
		}
		if s.buf.Len() == 0 {
			s.begin(line)
			continue
		}
		s.buf.WriteString(line)
		s.buf.WriteByte('\r')
	}

	if s.buf.Len() > 0 {
		s.emit()
		return true
	}
	return false
}

// Message returns the message read by the last call to Scan.
func (s *Scanner) Message() Message {
	return s.msg
}

// Err returns the first read error, if any.
func (s *Scanner) Err() error {
	return s.sc.Err()
}

func (s *Scanner) begin(line string) {
	s.startLine = s.line
	s.buf.WriteString(line)
	s.buf.WriteByte('\r')
}

func (s *Scanner) emit() {
	s.msg = Message{Index: s.index, Line: s.startLine, Text: s.buf.String()}
	s.index++
	s.buf.Reset()
}

func isEnvelope(line string) bool {
	if len(line) < 3 {
		return false
	}
	switch line[:3] {
	case "FHS", "BHS", "BTS", "FTS":
		return len(line) == 3 || !isAlnum(line[3])
	}
	return false
}

func isAlnum(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// splitSegments is a bufio.SplitFunc ending lines at CR, LF or CRLF.
func splitSegments(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			switch {
			case i+1 < len(data) && data[i+1] == '\n':
				return i + 2, data[:i], nil
			case i+1 == len(data) && !atEOF:
				// a LF may follow in the next read
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
