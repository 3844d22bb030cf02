package clipboard

import (
	"errors"
	"sync"
)

// MemoryHost is an in-process clipboard. It backs the "memory" backend and
// lets tests play the part of other applications.
type MemoryHost struct {
	mu      sync.Mutex
	text    string
	owned   bool
	served  []string
	events  chan Event
	closed  bool
	failOwn error
}

// NewMemoryHost creates an empty clipboard.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{events: make(chan Event, 64)}
}

// ErrHostClosed is returned after Close.
var ErrHostClosed = errors.New("clipboard: host closed")

func (h *MemoryHost) RequestConversion() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHostClosed
	}
	return h.emit(Event{Kind: EventConversion, Text: h.text})
}

func (h *MemoryHost) ClaimOwnership(content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHostClosed
	}
	if h.failOwn != nil {
		return h.failOwn
	}
	h.text = content
	h.owned = true
	return nil
}

func (h *MemoryHost) ServeOnRequest(req *SelectionRequest, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.served = append(h.served, content)
	return nil
}

func (h *MemoryHost) Events() <-chan Event { return h.events }

func (h *MemoryHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// emit must be called with mu held. Events are dropped when nobody reads,
// the way a real service forgets unanswered notifications.
func (h *MemoryHost) emit(ev Event) error {
	select {
	case h.events <- ev:
		return nil
	default:
		return errors.New("clipboard: event queue full")
	}
}

// Copy simulates another application writing text. If we owned the
// selection we lose it.
func (h *MemoryHost) Copy(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.text = text
	if h.owned {
		h.owned = false
		h.emit(Event{Kind: EventOwnershipLost})
	}
}

// Paste simulates another application requesting the selection. When we own
// it the request is routed to the monitor; otherwise the current text is
// returned directly.
func (h *MemoryHost) Paste() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owned {
		h.emit(Event{Kind: EventSelectionRequest, Request: &SelectionRequest{Target: "UTF8_STRING"}})
		return "", false
	}
	return h.text, true
}

// Text returns the current clipboard content.
func (h *MemoryHost) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.text
}

// Owned reports whether the monitor owns the clipboard.
func (h *MemoryHost) Owned() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owned
}

// Served returns every content string handed to ServeOnRequest.
func (h *MemoryHost) Served() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.served...)
}

// FailOwnership makes ClaimOwnership return err until called with nil.
func (h *MemoryHost) FailOwnership(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failOwn = err
}

// Fail injects a service error event.
func (h *MemoryHost) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emit(Event{Kind: EventError, Err: err})
}
