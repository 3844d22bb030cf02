// Package control implements the agent's line-oriented local control
// protocol: command parsing, response encoding, per-connection line
// framing, the unix socket listener and a client for the CLI.
//
// Wire format: newline-terminated ASCII lines. Every request produces
// exactly one response, which is a single line except for LIST.
//
//	BIND <fp>            -> OK | ERR full | ERR invalid-fp
//	UNBIND <fp>          -> OK | ERR notfound
//	BINDADDR <address>   -> OK | ERR full | ERR invalid-addr
//	UNBINDADDR <address> -> OK | ERR notfound | ERR invalid-addr
//	LIST                 -> FP <fp> <ts> ... END
//	PING                 -> PONG
//	anything else        -> ERR unknown
package control

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Op identifies a control command.
type Op int

const (
	OpUnknown Op = iota
	OpBind
	OpUnbind
	OpBindAddr
	OpUnbindAddr
	OpList
	OpPing
)

var opNames = map[Op]string{
	OpUnknown:    "UNKNOWN",
	OpBind:       "BIND",
	OpUnbind:     "UNBIND",
	OpBindAddr:   "BINDADDR",
	OpUnbindAddr: "UNBINDADDR",
	OpList:       "LIST",
	OpPing:       "PING",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Error reasons carried in ERR responses.
const (
	ReasonFull        = "full"
	ReasonInvalidFP   = "invalid-fp"
	ReasonNotFound    = "notfound"
	ReasonInvalidAddr = "invalid-addr"
	ReasonUnknown     = "unknown"
	ReasonInternal    = "internal"
)

// Response terminators.
const (
	LineOK   = "OK"
	LineEnd  = "END"
	LinePong = "PONG"
)

// Command is one parsed request line.
type Command struct {
	Op  Op
	Arg string
}

// Parse decodes a request line. The line must not include its newline.
// Command words are case-sensitive. Parse never fails; unrecognized input
// yields OpUnknown.
func Parse(line string) Command {
	line = strings.TrimRight(line, "\r")
	word, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch word {
	case "BIND":
		return Command{Op: OpBind, Arg: arg}
	case "UNBIND":
		return Command{Op: OpUnbind, Arg: arg}
	case "BINDADDR":
		return Command{Op: OpBindAddr, Arg: arg}
	case "UNBINDADDR":
		return Command{Op: OpUnbindAddr, Arg: arg}
	case "LIST":
		if arg == "" {
			return Command{Op: OpList}
		}
	case "PING":
		if arg == "" {
			return Command{Op: OpPing}
		}
	}
	return Command{Op: OpUnknown}
}

// String renders the command as a request line without the newline.
func (c Command) String() string {
	if c.Arg == "" {
		return c.Op.String()
	}
	return c.Op.String() + " " + c.Arg
}

// Response is the ordered set of lines answering one command.
type Response struct {
	Lines []string
}

// OK is the success response.
func OK() Response { return Response{Lines: []string{LineOK}} }

// Pong answers PING.
func Pong() Response { return Response{Lines: []string{LinePong}} }

// Err is a failure response with a short reason.
func Err(reason string) Response { return Response{Lines: []string{"ERR " + reason}} }

// ListEntry is one bound fingerprint as reported by LIST.
type ListEntry struct {
	Fingerprint string
	CreatedAt   time.Time
}

// List builds the LIST response. Timestamps are unix seconds.
func List(entries []ListEntry) Response {
	lines := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("FP %s %d", e.Fingerprint, e.CreatedAt.Unix()))
	}
	return Response{Lines: append(lines, LineEnd)}
}

// Encode renders the response for the wire.
func (r Response) Encode() []byte {
	var b strings.Builder
	for _, l := range r.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// ParseListLine decodes one "FP <fp> <ts>" line.
func ParseListLine(line string) (ListEntry, error) {
	f := strings.Fields(line)
	if len(f) != 3 || f[0] != "FP" {
		return ListEntry{}, fmt.Errorf("control: malformed list line %q", line)
	}
	ts, err := strconv.ParseInt(f[2], 10, 64)
	if err != nil {
		return ListEntry{}, fmt.Errorf("control: malformed list timestamp %q: %w", f[2], err)
	}
	return ListEntry{Fingerprint: f[1], CreatedAt: time.Unix(ts, 0)}, nil
}

// ResponseError is returned by the client when the agent answers ERR.
type ResponseError struct {
	Reason string
}

func (e *ResponseError) Error() string {
	return "control: agent replied ERR " + e.Reason
}
