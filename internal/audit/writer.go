package audit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	ErrInvalidOp = errors.New("audit: op must be non-empty and contain no separators")
	ErrClosed    = errors.New("audit: writer closed")
)

// Writer appends chained records to a log file.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
	prev string
	now  func() time.Time
}

// Open opens path for appending and resumes the chain from its last line.
// A last line that cannot be parsed is an error: appending to it would
// produce a chain no verifier accepts.
func Open(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	prev, err := lastHash(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Writer{f: f, path: path, prev: prev, now: time.Now}, nil
}

func lastHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read audit log: %w", err)
	}
	defer f.Close()

	var last string
	sc := newScanner(f)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read audit log: %w", err)
	}
	if last == "" {
		return "", nil
	}

	rec, err := ParseLine(last)
	if err != nil {
		return "", fmt.Errorf("resume audit chain: %w", err)
	}
	return rec.Hash, nil
}

// Append writes one record and returns it.
func (w *Writer) Append(op, detail string) (Record, error) {
	if !validOp(op) {
		return Record{}, ErrInvalidOp
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return Record{}, ErrClosed
	}

	rec := Record{
		Timestamp: w.now().UTC().Format(TimeFormat),
		Op:        op,
		Detail:    sanitizeDetail(detail),
	}
	rec.Hash = ChainHash(w.prev, rec.Timestamp, rec.Op, rec.Detail)

	if _, err := io.WriteString(w.f, rec.String()+"\n"); err != nil {
		return Record{}, fmt.Errorf("write audit record: %w", err)
	}
	w.prev = rec.Hash
	return rec, nil
}

// Head returns the hash of the most recent record.
func (w *Writer) Head() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prev
}

// Path returns the log file path.
func (w *Writer) Path() string { return w.path }

// Close syncs and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	serr := w.f.Sync()
	cerr := w.f.Close()
	w.f = nil
	return errors.Join(serr, cerr)
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return sc
}
