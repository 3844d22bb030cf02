// Package bindtable stores the fingerprints the user has explicitly
// authorized for the current agent session.
//
// A Table is not safe for concurrent use. The agent touches it only from its
// reactor goroutine.
package bindtable

import (
	"errors"
	"time"

	"clipguard/internal/digest"
)

// DefaultCapacity is the number of binds a table holds unless configured.
const DefaultCapacity = 256

var (
	ErrFull               = errors.New("bindtable: table full")
	ErrNotFound           = errors.New("bindtable: fingerprint not bound")
	ErrInvalidFingerprint = errors.New("bindtable: fingerprint must be 64 hex characters")
)

// Entry is one authorized fingerprint.
type Entry struct {
	Fingerprint string
	CreatedAt   time.Time
}

// Options configures a Table.
type Options struct {
	// Capacity is the maximum number of stored entries. Zero means
	// DefaultCapacity.
	Capacity int

	// AllowDuplicates makes a repeated Bind of the same fingerprint consume
	// another slot instead of refreshing the existing entry.
	AllowDuplicates bool

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Table is a capacity-checked set of bound fingerprints. Entries keep their
// insertion order for List.
type Table struct {
	capacity   int
	duplicates bool
	now        func() time.Time

	entries []Entry
	counts  map[string]int
}

// New creates an empty table.
func New(opts Options) *Table {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Table{
		capacity:   opts.Capacity,
		duplicates: opts.AllowDuplicates,
		now:        opts.Now,
		counts:     make(map[string]int),
	}
}

// Bind authorizes fp. Fingerprints are compared case-insensitively and
// stored lowercase.
func (t *Table) Bind(fp string) error {
	if !digest.IsHex(fp) {
		return ErrInvalidFingerprint
	}
	fp = digest.Normalize(fp)

	if !t.duplicates && t.counts[fp] > 0 {
		for i := range t.entries {
			if t.entries[i].Fingerprint == fp {
				t.entries[i].CreatedAt = t.now()
			}
		}
		return nil
	}

	if len(t.entries) >= t.capacity {
		return ErrFull
	}
	t.entries = append(t.entries, Entry{Fingerprint: fp, CreatedAt: t.now()})
	t.counts[fp]++
	return nil
}

// Unbind removes one entry for fp.
func (t *Table) Unbind(fp string) error {
	fp = digest.Normalize(fp)
	if t.counts[fp] == 0 {
		return ErrNotFound
	}
	for i := range t.entries {
		if t.entries[i].Fingerprint == fp {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	if t.counts[fp]--; t.counts[fp] == 0 {
		delete(t.counts, fp)
	}
	return nil
}

// Contains reports whether fp is bound.
func (t *Table) Contains(fp string) bool {
	return t.counts[digest.Normalize(fp)] > 0
}

// List returns a snapshot of all entries in insertion order.
func (t *Table) List() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of occupied slots.
func (t *Table) Len() int { return len(t.entries) }

// Capacity returns the slot limit.
func (t *Table) Capacity() int { return t.capacity }
