// Package audit writes and verifies the agent's hash-chained audit log.
//
// Each line is "ts|op|detail|hash" where
//
//	hash = hex(SHA-256(prevHash + "|" + ts + "|" + op + "|" + detail))
//
// and prevHash is the empty string for the first line. Editing, inserting
// or deleting any line breaks every hash after it.
package audit

import (
	"fmt"
	"strings"
	"time"

	"clipguard/internal/digest"
)

// TimeFormat is the timestamp layout written to the ts field.
const TimeFormat = time.RFC3339

// Operations written by the agent.
const (
	OpStartup  = "startup"
	OpShutdown = "shutdown"
	OpBind     = "bind"
	OpUnbind   = "unbind"
	OpAllow    = "allow"
	OpBlock    = "block"
	OpReload   = "reload"
)

// Record is one audit line.
type Record struct {
	Timestamp string
	Op        string
	Detail    string
	Hash      string
}

// ChainHash computes a record's hash from its predecessor's.
func ChainHash(prev, ts, op, detail string) string {
	return digest.JoinHex("|", prev, ts, op, detail)
}

// String renders the record as a log line without the newline.
func (r Record) String() string {
	return r.Timestamp + "|" + r.Op + "|" + r.Detail + "|" + r.Hash
}

// ParseLine splits a log line. ts and op end at the first two separators
// and the hash follows the last one, so detail may itself contain '|'.
func ParseLine(line string) (Record, error) {
	ts, rest, ok := strings.Cut(line, "|")
	if !ok {
		return Record{}, fmt.Errorf("audit: missing op field")
	}
	op, rest, ok := strings.Cut(rest, "|")
	if !ok {
		return Record{}, fmt.Errorf("audit: missing detail field")
	}
	i := strings.LastIndexByte(rest, '|')
	if i < 0 {
		return Record{}, fmt.Errorf("audit: missing hash field")
	}
	return Record{Timestamp: ts, Op: op, Detail: rest[:i], Hash: rest[i+1:]}, nil
}

// sanitizeDetail keeps a detail on one line and free of separators so the
// file stays readable by verifiers that split every field from the left.
func sanitizeDetail(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r':
			return ' '
		case '|':
			return '/'
		}
		return r
	}, s)
}

func validOp(op string) bool {
	return op != "" && !strings.ContainsAny(op, "|\r\n")
}
