package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineBytes = 1 << 20

// ErrMissing means the log file does not exist.
var ErrMissing = errors.New("audit: log file not found")

// FailureKind classifies a verification failure.
type FailureKind int

const (
	KindMalformed FailureKind = iota + 1
	KindMismatch
)

// VerifyError reports the first bad line (1-based).
type VerifyError struct {
	Line     int
	Kind     FailureKind
	Expected string
	Got      string
	Err      error
}

func (e *VerifyError) Error() string {
	if e.Kind == KindMismatch {
		return fmt.Sprintf("audit verification FAILED at line %d: expected %s got %s", e.Line, e.Expected, e.Got)
	}
	return fmt.Sprintf("invalid format line %d", e.Line)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Result summarizes a successful verification.
type Result struct {
	Records int
	Head    string
}

// VerifyFile verifies the chain stored at path.
func VerifyFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return Result{}, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	return Verify(f)
}

// Verify recomputes the chain from r and stops at the first failure. An
// empty input verifies.
func Verify(r io.Reader) (Result, error) {
	var res Result
	prev := ""
	lineno := 0

	sc := newScanner(r)
	for sc.Scan() {
		lineno++
		line := strings.TrimRight(sc.Text(), "\r")

		rec, err := ParseLine(line)
		if err != nil {
			return res, &VerifyError{Line: lineno, Kind: KindMalformed, Err: err}
		}
		want := ChainHash(prev, rec.Timestamp, rec.Op, rec.Detail)
		if want != rec.Hash {
			return res, &VerifyError{Line: lineno, Kind: KindMismatch, Expected: want, Got: rec.Hash}
		}
		prev = rec.Hash
		res.Records++
		res.Head = prev
	}
	if err := sc.Err(); err != nil {
		return res, &VerifyError{Line: lineno + 1, Kind: KindMalformed, Err: err}
	}
	return res, nil
}

// Exit codes shared by the verifier commands.
const (
	ExitOK        = 0
	ExitIOError   = 1
	ExitMissing   = 2
	ExitMalformed = 3
	ExitMismatch  = 4
)

// ExitCode maps a VerifyFile error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, ErrMissing) {
		return ExitMissing
	}
	var verr *VerifyError
	if errors.As(err, &verr) {
		if verr.Kind == KindMismatch {
			return ExitMismatch
		}
		return ExitMalformed
	}
	return ExitIOError
}
