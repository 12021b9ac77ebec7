package events

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/goliatone/go-masker"
	"github.com/google/uuid"
)

var defaultMaskerOnce sync.Once

// DefaultMasker returns the shared masker with identifier and link fields
// registered.
func DefaultMasker() *masker.Masker {
	defaultMaskerOnce.Do(func() {
		if masker.Default == nil {
			return
		}
		registerDefaultMaskFields(masker.Default)
	})
	return masker.Default
}

func registerDefaultMaskFields(mask *masker.Masker) {
	mask.RegisterMaskField("identifier", "filled4")
	mask.RegisterMaskField("secret", "filled4")
	mask.RegisterMaskField("token", "filled4")
	mask.RegisterMaskField("url", "filled4")
}

// LoggingObserver writes every event to logger with contact details masked.
// Error events are logged at error level.
func LoggingObserver(logger types.Logger, mask *masker.Masker) Observer {
	if logger == nil {
		logger = types.NopLogger{}
	}
	if mask == nil {
		mask = DefaultMasker()
	}
	return func(_ context.Context, event types.Event) {
		fields := flatten(sanitize(mask, eventFields(event)))
		switch event.Type {
		case types.EventFailed, types.EventVerificationError:
			logger.Error(string(event.Type), event.Err, fields...)
		default:
			logger.Info(string(event.Type), fields...)
		}
	}
}

func eventFields(event types.Event) map[string]any {
	fields := map[string]any{
		"guard":      event.Guard,
		"identifier": event.Identifier.Value,
		"kind":       string(event.Identifier.Kind),
	}
	if !event.OccurredAt.IsZero() {
		fields["occurred_at"] = event.OccurredAt.Format(time.RFC3339)
	}
	if event.LinkID != uuid.Nil {
		fields["link_id"] = event.LinkID.String()
	}
	if event.UserID != uuid.Nil {
		fields["user_id"] = event.UserID.String()
	}
	if len(event.Channels) > 0 {
		channels := make([]string, 0, len(event.Channels))
		for _, c := range event.Channels {
			channels = append(channels, string(c))
		}
		fields["channels"] = channels
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}
	for k, v := range event.Metadata {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}
	return fields
}

func sanitize(mask *masker.Masker, fields map[string]any) map[string]any {
	if mask == nil {
		return fields
	}
	masked, err := mask.Mask(fields)
	if err != nil {
		return map[string]any{"guard": fields["guard"]}
	}
	if out, ok := masked.(map[string]any); ok {
		return out
	}
	return map[string]any{"guard": fields["guard"]}
}

func flatten(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
