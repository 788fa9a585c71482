package chat

import "veilchat/internal/domain"

// EventKind discriminates what the controller is telling the presentation
// layer.
type EventKind int

const (
	// EventMessage carries a newly received, decrypted message.
	EventMessage EventKind = iota
	// EventUndecryptable marks an inbound message that failed
	// authentication; its envelope is retained in history without plaintext.
	EventUndecryptable
	// EventStateChange reports a transport connection-state transition.
	EventStateChange
)

// Event is pushed to the presentation layer instead of invoking callbacks
// into it, keeping transport internals decoupled from rendering.
type Event struct {
	Kind    EventKind
	Message domain.Message
	State   domain.ConnectionState
}
