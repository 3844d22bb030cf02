// Package notify tells the desktop user that a paste was blocked. Delivery
// is best effort: a notifier never delays or alters a clipboard decision.
package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"clipguard/internal/security"
)

const (
	busName     = "org.freedesktop.Notifications"
	objectPath  = "/org/freedesktop/Notifications"
	notifyCall  = busName + ".Notify"
	defaultName = "clipguard"
)

// ErrRateLimited means the notification was dropped to avoid flooding.
var ErrRateLimited = errors.New("notify: rate limited")

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(summary, body string) error
	Close() error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }
func (Nop) Close() error                { return nil }

// caller is the part of dbus.BusObject the notifier uses.
type caller interface {
	Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call
}

// Config configures a Desktop notifier.
type Config struct {
	AppName string
	Timeout time.Duration

	// Rate and Burst bound notifications per second.
	Rate  float64
	Burst int
}

// Desktop sends org.freedesktop.Notifications messages on the session bus.
type Desktop struct {
	conn    *dbus.Conn
	obj     caller
	appName string
	timeout int32
	limiter *security.RateLimiter
}

// NewDesktop connects to the session bus.
func NewDesktop(cfg Config) (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	d := newDesktop(conn.Object(busName, objectPath), cfg)
	d.conn = conn
	return d, nil
}

func newDesktop(obj caller, cfg Config) *Desktop {
	if cfg.AppName == "" {
		cfg.AppName = defaultName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 0.2
	}
	return &Desktop{
		obj:     obj,
		appName: cfg.AppName,
		timeout: int32(cfg.Timeout / time.Millisecond),
		limiter: security.NewRateLimiter(cfg.Rate, cfg.Burst),
	}
}

// Notify posts a notification without waiting for the server's reply.
func (d *Desktop) Notify(summary, body string) error {
	if !d.limiter.Allow() {
		return ErrRateLimited
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(2)),
	}
	call := d.obj.Go(notifyCall, dbus.FlagNoReplyExpected, nil,
		d.appName, uint32(0), "dialog-warning", summary, body, []string{}, hints, d.timeout)
	if call != nil && call.Err != nil {
		return fmt.Errorf("send notification: %w", call.Err)
	}
	return nil
}

// Close closes the bus connection.
func (d *Desktop) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
