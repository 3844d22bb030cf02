package clipboard

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/atotto/clipboard"
)

// ErrUnsupported means no clipboard tool (xclip, xsel, wl-copy, ...) was found.
var ErrUnsupported = errors.New("clipboard: no clipboard utility available")

// CommandHost drives the clipboard through the platform's command-line
// tools. The tool that stores the text also answers paste requests, so
// ServeOnRequest has nothing to do.
type CommandHost struct {
	events   chan Event
	inflight atomic.Bool
	closed   atomic.Bool

	// read and write are swapped in tests.
	read  func() (string, error)
	write func(string) error
}

// NewCommandHost fails when no clipboard tool is installed.
func NewCommandHost() (*CommandHost, error) {
	if clipboard.Unsupported {
		return nil, ErrUnsupported
	}
	return newCommandHost(clipboard.ReadAll, clipboard.WriteAll), nil
}

func newCommandHost(read func() (string, error), write func(string) error) *CommandHost {
	return &CommandHost{
		events: make(chan Event, 4),
		read:   read,
		write:  write,
	}
}

// RequestConversion reads the clipboard in the background. A request made
// while the previous read is still running is dropped.
func (h *CommandHost) RequestConversion() error {
	if h.closed.Load() {
		return ErrHostClosed
	}
	if !h.inflight.CompareAndSwap(false, true) {
		return nil
	}
	go func() {
		defer h.inflight.Store(false)
		text, err := h.read()
		if h.closed.Load() {
			return
		}
		if err != nil {
			h.events <- Event{Kind: EventError, Err: fmt.Errorf("read clipboard: %w", err)}
			return
		}
		h.events <- Event{Kind: EventConversion, Text: text}
	}()
	return nil
}

func (h *CommandHost) ClaimOwnership(content string) error {
	if h.closed.Load() {
		return ErrHostClosed
	}
	if err := h.write(content); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

func (h *CommandHost) ServeOnRequest(*SelectionRequest, string) error { return nil }

func (h *CommandHost) Events() <-chan Event { return h.events }

func (h *CommandHost) Close() error {
	h.closed.Store(true)
	return nil
}
