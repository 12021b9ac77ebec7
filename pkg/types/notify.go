package types

import (
	"context"
	"time"
)

// Channel names a delivery transport.
type Channel string

const (
	ChannelMail     Channel = "mail"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// AllChannels lists every channel the dispatcher understands.
func AllChannels() []Channel {
	return []Channel{ChannelMail, ChannelWhatsApp, ChannelSMS}
}

// LinkNotification carries what a channel needs to deliver a magic link.
type LinkNotification struct {
	Identifier Identifier
	Guard      string
	URL        string
	ExpiresAt  time.Time
	// Channels overrides channel resolution when non-empty.
	Channels []Channel
}

// NotificationDispatcher delivers a link through the resolved channel set and
// reports which channels received it.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, msg LinkNotification) ([]Channel, error)
}
