package notify

import (
	"context"

	"github.com/goliatone/go-magiclink/pkg/types"
)

// Message is a rendered notification ready for a transport.
type Message struct {
	Channel types.Channel `json:"channel"`
	To      string        `json:"to"`
	Subject string        `json:"subject,omitempty"`
	Body    string        `json:"body"`
	Guard   string        `json:"guard,omitempty"`
}

// Transport delivers rendered messages for one or more channels.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg Message) error

// Send implements Transport.
func (fn TransportFunc) Send(ctx context.Context, msg Message) error {
	return fn(ctx, msg)
}
