package command

import (
	"context"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
)

func safeClock(clock types.Clock) types.Clock {
	if clock != nil {
		return clock
	}
	return types.SystemClock{}
}

func safeLogger(logger types.Logger) types.Logger {
	if logger != nil {
		return logger
	}
	return types.NopLogger{}
}

func safePublisher(events types.EventPublisher) types.EventPublisher {
	if events != nil {
		return events
	}
	return types.NopPublisher{}
}

func safeSecrets(secrets types.SecretGenerator) types.SecretGenerator {
	if secrets != nil {
		return secrets
	}
	return types.RandomSecretGenerator{}
}

func now(clock types.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now()
}

func emit(ctx context.Context, events types.EventPublisher, event types.Event) {
	if events == nil {
		return
	}
	events.Publish(ctx, event)
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
