package clipboard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"clipguard/internal/logging"
)

// maxPropertyWords caps a single GetProperty read (4-byte units). Clipboard
// text beyond this is truncated, which is fine for canonicalization.
const maxPropertyWords = 64 * 1024

// ErrIncrTransfer means the owner offered an incremental transfer, which is
// only used for content far larger than any address.
var ErrIncrTransfer = errors.New("clipboard: incremental selection transfer not supported")

type x11Atoms struct {
	selection xproto.Atom
	property  xproto.Atom
	targets   xproto.Atom
	utf8      xproto.Atom
	text      xproto.Atom
	incr      xproto.Atom
}

// X11Host speaks the X11 selection protocol directly. A hidden window owns
// the selection while an alert is published and receives conversion results.
type X11Host struct {
	conn   *xgb.Conn
	win    xproto.Window
	atoms  x11Atoms
	events chan Event
	log    *logging.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewX11Host connects to display (empty means $DISPLAY) and watches the
// named selection, normally "CLIPBOARD".
func NewX11Host(display, selection string, log *logging.Logger) (*X11Host, error) {
	if selection == "" {
		selection = "CLIPBOARD"
	}
	if log == nil {
		log = logging.Default()
	}

	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("connect to X display: %w", err)
	}

	h := &X11Host{
		conn:   conn,
		events: make(chan Event, 16),
		log:    log.WithComponent("x11"),
		done:   make(chan struct{}),
	}
	if err := h.setup(selection); err != nil {
		conn.Close()
		return nil, err
	}

	go h.pump()
	return h, nil
}

func (h *X11Host) setup(selection string) error {
	screen := xproto.Setup(h.conn).DefaultScreen(h.conn)

	win, err := xproto.NewWindowId(h.conn)
	if err != nil {
		return fmt.Errorf("allocate window id: %w", err)
	}
	err = xproto.CreateWindowChecked(h.conn, screen.RootDepth, win, screen.Root,
		0, 0, 1, 1, 0, xproto.WindowClassInputOutput, screen.RootVisual, 0, nil).Check()
	if err != nil {
		return fmt.Errorf("create selection window: %w", err)
	}
	h.win = win

	names := []struct {
		dst  *xproto.Atom
		name string
	}{
		{&h.atoms.selection, selection},
		{&h.atoms.property, "CLIPGUARD_SELECTION"},
		{&h.atoms.targets, "TARGETS"},
		{&h.atoms.utf8, "UTF8_STRING"},
		{&h.atoms.text, "TEXT"},
		{&h.atoms.incr, "INCR"},
	}
	for _, n := range names {
		reply, err := xproto.InternAtom(h.conn, false, uint16(len(n.name)), n.name).Reply()
		if err != nil {
			return fmt.Errorf("intern atom %s: %w", n.name, err)
		}
		*n.dst = reply.Atom
	}
	return nil
}

// pump forwards X events until the connection closes.
func (h *X11Host) pump() {
	for {
		ev, xerr := h.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			h.send(Event{Kind: EventError, Err: fmt.Errorf("x11: %s", xerr.Error())})
			continue
		}

		switch e := ev.(type) {
		case xproto.SelectionNotifyEvent:
			h.send(h.readConversion(e))
		case xproto.SelectionRequestEvent:
			h.send(Event{
				Kind:    EventSelectionRequest,
				Request: &SelectionRequest{Target: h.atomName(e.Target), Native: e},
			})
		case xproto.SelectionClearEvent:
			h.send(Event{Kind: EventOwnershipLost})
		}
	}
}

func (h *X11Host) send(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *X11Host) readConversion(e xproto.SelectionNotifyEvent) Event {
	// No owner, or the owner could not convert to UTF8_STRING.
	if e.Property == xproto.AtomNone {
		return Event{Kind: EventConversion}
	}

	reply, err := xproto.GetProperty(h.conn, true, h.win, e.Property,
		xproto.GetPropertyTypeAny, 0, maxPropertyWords).Reply()
	if err != nil {
		return Event{Kind: EventError, Err: fmt.Errorf("read selection property: %w", err)}
	}
	if reply.Type == h.atoms.incr {
		return Event{Kind: EventError, Err: ErrIncrTransfer}
	}
	return Event{Kind: EventConversion, Text: string(reply.Value)}
}

func (h *X11Host) atomName(a xproto.Atom) string {
	reply, err := xproto.GetAtomName(h.conn, a).Reply()
	if err != nil {
		return fmt.Sprintf("atom(%d)", a)
	}
	return reply.Name
}

func (h *X11Host) RequestConversion() error {
	return xproto.ConvertSelectionChecked(h.conn, h.win, h.atoms.selection,
		h.atoms.utf8, h.atoms.property, xproto.TimeCurrentTime).Check()
}

func (h *X11Host) ClaimOwnership(content string) error {
	err := xproto.SetSelectionOwnerChecked(h.conn, h.win, h.atoms.selection, xproto.TimeCurrentTime).Check()
	if err != nil {
		return fmt.Errorf("set selection owner: %w", err)
	}
	reply, err := xproto.GetSelectionOwner(h.conn, h.atoms.selection).Reply()
	if err != nil {
		return fmt.Errorf("get selection owner: %w", err)
	}
	if reply.Owner != h.win {
		return errors.New("clipboard: selection ownership was not granted")
	}
	return nil
}

// ServeOnRequest writes content (or our target list) to the requestor's
// property and notifies it. Unsupported targets are refused with a None
// property, as the ICCCM requires.
func (h *X11Host) ServeOnRequest(req *SelectionRequest, content string) error {
	e, ok := req.Native.(xproto.SelectionRequestEvent)
	if !ok {
		return fmt.Errorf("clipboard: foreign selection request %T", req.Native)
	}

	prop := e.Property
	if prop == xproto.AtomNone {
		prop = e.Target
	}

	var err error
	switch e.Target {
	case h.atoms.targets:
		supported := []xproto.Atom{h.atoms.targets, h.atoms.utf8, xproto.AtomString, h.atoms.text}
		buf := make([]byte, 4*len(supported))
		for i, a := range supported {
			xgb.Put32(buf[4*i:], uint32(a))
		}
		err = xproto.ChangePropertyChecked(h.conn, xproto.PropModeReplace, e.Requestor, prop,
			xproto.AtomAtom, 32, uint32(len(supported)), buf).Check()
	case h.atoms.utf8, h.atoms.text, xproto.AtomString:
		typ := h.atoms.utf8
		if e.Target == xproto.AtomString {
			typ = xproto.AtomString
		}
		err = xproto.ChangePropertyChecked(h.conn, xproto.PropModeReplace, e.Requestor, prop,
			typ, 8, uint32(len(content)), []byte(content)).Check()
	default:
		prop = xproto.AtomNone
	}
	if err != nil {
		prop = xproto.AtomNone
	}

	notify := xproto.SelectionNotifyEvent{
		Time:      e.Time,
		Requestor: e.Requestor,
		Selection: e.Selection,
		Target:    e.Target,
		Property:  prop,
	}
	serr := xproto.SendEventChecked(h.conn, false, e.Requestor, xproto.EventMaskNoEvent, string(notify.Bytes())).Check()
	return errors.Join(err, serr)
}

func (h *X11Host) Events() <-chan Event { return h.events }

func (h *X11Host) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		xproto.DestroyWindow(h.conn, h.win)
		h.conn.Close()
	})
	return nil
}
