package control

import (
	"bytes"
	"errors"
)

// DefaultMaxLineBytes bounds a single request line, newline excluded.
const DefaultMaxLineBytes = 4096

// ErrLineTooLong is a transport violation: the peer sent more than the
// configured maximum without a newline. The connection must be dropped.
var ErrLineTooLong = errors.New("control: line exceeds maximum length")

// Session frames the byte stream of one control connection into lines.
// Bytes after the last newline are held until the rest of the line arrives.
type Session struct {
	ID      string
	maxLine int
	buf     []byte
}

// NewSession creates a framing buffer. maxLine <= 0 uses DefaultMaxLineBytes.
func NewSession(id string, maxLine int) *Session {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	return &Session{ID: id, maxLine: maxLine}
}

// Feed appends data and returns every complete line, in order, without the
// trailing newline. A trailing '\r' is stripped.
func (s *Session) Feed(data []byte) ([]string, error) {
	s.buf = append(s.buf, data...)

	var lines []string
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := s.buf[:i]
		if len(line) > s.maxLine {
			return lines, ErrLineTooLong
		}
		lines = append(lines, string(bytes.TrimSuffix(line, []byte{'\r'})))
		s.buf = s.buf[i+1:]
	}

	if len(s.buf) > s.maxLine {
		return lines, ErrLineTooLong
	}
	// Compact so a long-lived session doesn't pin consumed bytes.
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return lines, nil
}

// Pending returns the number of buffered bytes awaiting a newline.
func (s *Session) Pending() int { return len(s.buf) }
