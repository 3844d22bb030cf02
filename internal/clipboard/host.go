// Package clipboard watches the system clipboard and replaces unbound
// sensitive text with an alert.
//
// A Host is the capability surface of one clipboard service. The Monitor
// drives a Host from the agent's reactor goroutine; hosts deliver their
// asynchronous results on Events.
package clipboard

import "fmt"

// EventKind identifies a host event.
type EventKind int

const (
	// EventConversion carries the result of RequestConversion.
	EventConversion EventKind = iota + 1
	// EventSelectionRequest asks the current owner for content.
	EventSelectionRequest
	// EventOwnershipLost means another client took the selection.
	EventOwnershipLost
	// EventError reports a service failure. The next tick retries.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConversion:
		return "conversion"
	case EventSelectionRequest:
		return "selection-request"
	case EventOwnershipLost:
		return "ownership-lost"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// SelectionRequest is a request from another client for the content of a
// selection we own. Native holds the backend's own request data.
type SelectionRequest struct {
	Target string
	Native any
}

// Event is delivered by a Host.
type Event struct {
	Kind    EventKind
	Text    string
	Request *SelectionRequest
	Err     error
}

// Host is a clipboard service. Methods are called only from the reactor
// goroutine and must not block on the service's reply.
type Host interface {
	// RequestConversion asks for the current clipboard text. The result
	// arrives later as an EventConversion.
	RequestConversion() error

	// ClaimOwnership makes this process the clipboard owner with content.
	ClaimOwnership(content string) error

	// ServeOnRequest answers a SelectionRequest with content.
	ServeOnRequest(req *SelectionRequest, content string) error

	// Events delivers asynchronous results.
	Events() <-chan Event

	Close() error
}
