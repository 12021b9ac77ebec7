package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport writes messages to a zap logger instead of delivering them.
// Development only: the body carries a live login link.
type LogTransport struct {
	log *zap.Logger
}

// NewLogTransport constructs the log transport.
func NewLogTransport(log *zap.Logger) *LogTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogTransport{log: log}
}

// Send implements Transport.
func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.log.Info("notify: magic link",
		zap.String("channel", string(msg.Channel)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
