package notify

import (
	"context"
	"math"
	"strings"

	"github.com/goliatone/go-magiclink/pkg/types"
)

// Config wires a Dispatcher.
type Config struct {
	// Transports maps each channel to the transport delivering it.
	Transports map[types.Channel]Transport
	// Defaults is the fallback channel list when neither an override nor the
	// identifier kind yields a channel.
	Defaults []types.Channel
	// Available restricts which channels may be used at all.
	Available []types.Channel
	Templates Templates
	Clock     types.Clock
	Logger    types.Logger
}

// Dispatcher implements types.NotificationDispatcher.
type Dispatcher struct {
	transports map[types.Channel]Transport
	defaults   []types.Channel
	available  map[types.Channel]bool
	templates  Templates
	clock      types.Clock
	logger     types.Logger
}

// NewDispatcher constructs a dispatcher. Defaults fall back to [mail] and
// Available to every known channel.
func NewDispatcher(cfg Config) *Dispatcher {
	defaults := cfg.Defaults
	if len(defaults) == 0 {
		defaults = []types.Channel{types.ChannelMail}
	}
	availableList := cfg.Available
	if len(availableList) == 0 {
		availableList = types.AllChannels()
	}
	available := make(map[types.Channel]bool, len(availableList))
	for _, c := range availableList {
		available[normalizeChannel(c)] = true
	}
	transports := make(map[types.Channel]Transport, len(cfg.Transports))
	for c, t := range cfg.Transports {
		if t != nil {
			transports[normalizeChannel(c)] = t
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Dispatcher{
		transports: transports,
		defaults:   defaults,
		available:  available,
		templates:  cfg.Templates.withDefaults(),
		clock:      clock,
		logger:     logger,
	}
}

var _ types.NotificationDispatcher = (*Dispatcher)(nil)

// Dispatch renders and sends msg on every resolved channel. Channels are
// attempted in order and the first failure aborts delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, msg types.LinkNotification) ([]types.Channel, error) {
	channels := d.Resolve(msg.Identifier, msg.Channels)
	if len(channels) == 0 {
		return nil, &types.DeliveryError{Err: types.ErrNoDeliveryChannel}
	}
	minutes := d.minutesUntil(msg)
	delivered := make([]types.Channel, 0, len(channels))
	for _, channel := range channels {
		out := Message{
			Channel: channel,
			To:      recipient(msg.Identifier, channel),
			Body:    d.templates.Body(channel, msg.URL, minutes),
			Guard:   msg.Guard,
		}
		if channel == types.ChannelMail {
			out.Subject = d.templates.MailSubject
		}
		if err := d.transports[channel].Send(ctx, out); err != nil {
			d.logger.Error("magiclink: notification channel failed", err, "channel", string(channel), "guard", msg.Guard)
			return delivered, &types.DeliveryError{Channel: channel, Err: err}
		}
		d.logger.Debug("magiclink: notification delivered", "channel", string(channel), "guard", msg.Guard)
		delivered = append(delivered, channel)
	}
	return delivered, nil
}

// Resolve picks the channel set: the override when given, else the identifier
// kind default, else the configured defaults. Channels that are unavailable,
// unreachable for the identifier, or lack a transport are dropped.
func (d *Dispatcher) Resolve(identifier types.Identifier, override []types.Channel) []types.Channel {
	candidates := override
	if len(candidates) == 0 {
		candidates = identifier.Capabilities()
	}
	if len(candidates) == 0 {
		candidates = d.defaults
	}
	seen := make(map[types.Channel]bool, len(candidates))
	out := make([]types.Channel, 0, len(candidates))
	for _, c := range candidates {
		c = normalizeChannel(c)
		if seen[c] || !d.available[c] || !identifier.Supports(c) {
			continue
		}
		if _, ok := d.transports[c]; !ok {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (d *Dispatcher) minutesUntil(msg types.LinkNotification) int {
	if msg.ExpiresAt.IsZero() {
		return 0
	}
	remaining := msg.ExpiresAt.Sub(d.clock.Now())
	if remaining <= 0 {
		return 0
	}
	return int(math.Round(remaining.Minutes()))
}

func recipient(identifier types.Identifier, channel types.Channel) string {
	if channel == types.ChannelMail {
		return identifier.Email()
	}
	return identifier.Phone()
}

func normalizeChannel(c types.Channel) types.Channel {
	return types.Channel(strings.ToLower(strings.TrimSpace(string(c))))
}
