package ports

import "context"

// DeliveryReceipt is the transport's acknowledgement of an accepted message.
type DeliveryReceipt struct {
	MessageID string // transport-assigned id, when available
	Timestamp int64
}

// ConnectionHandler is invoked when a transport session changes state.
type ConnectionHandler func(sessionName string, connected bool)

// SendCapability abstracts the WhatsApp transport. The campaign engine never
// talks to the wire itself; it only needs "send text to recipient" and
// "tell me when a session (re)connects".
type SendCapability interface {
	// SendText delivers one message to a canonical phone number. The adapter
	// derives its own address form (e.g. JID) from the number.
	SendText(ctx context.Context, recipient, message string) (DeliveryReceipt, error)

	// SessionName identifies the transport session behind this capability.
	// Sends within one session must stay serialized.
	SessionName() string

	// Connected reports whether the session is currently usable.
	Connected() bool

	// OnConnectionStateChange registers a handler for connect/disconnect
	// events. Used by the recovery coordinator to re-attempt interrupted
	// campaigns when a session comes back.
	OnConnectionStateChange(handler ConnectionHandler)
}
