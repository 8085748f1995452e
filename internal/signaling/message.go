package signaling

import "github.com/BioHazard786/Rendezvous/internal/protocol"

// Inbound is a frame read from a client, tagged with its sender.
type Inbound struct {
	protocol.Message

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client
}
