package matching

import "errors"

var (
	// ErrUnknownClient means the operation referenced a client that is not
	// registered. Callers treat it as a no-op.
	ErrUnknownClient = errors.New("unknown client")

	// ErrInvalidRoute means a relay target is not the sender's current partner.
	ErrInvalidRoute = errors.New("invalid route")

	// ErrPartnerGone means the relay target disconnected or stopped accepting
	// messages. Callers treat it like a partner-lost event.
	ErrPartnerGone = errors.New("partner gone")
)
