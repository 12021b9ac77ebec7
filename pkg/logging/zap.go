// Package logging adapts go.uber.org/zap to types.Logger.
package logging

import (
	"strings"

	"github.com/goliatone/go-magiclink/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the zap level and output mode.
type Options struct {
	Level string
	// Development switches to console friendly output on stdout.
	Development bool
	OutputPaths []string
}

// NewZapLogger builds a JSON zap logger.
func NewZapLogger(opts Options) (*zap.Logger, error) {
	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(opts.Level)),
		Development:      opts.Development,
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Adapter implements types.Logger on a zap logger. Fields are key/value
// pairs as accepted by zap's sugared logger.
type Adapter struct {
	sugar *zap.SugaredLogger
}

// NewAdapter wraps logger. A nil logger yields a no-op adapter.
func NewAdapter(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{sugar: logger.Sugar()}
}

var _ types.Logger = (*Adapter)(nil)

// Debug implements types.Logger.
func (a *Adapter) Debug(msg string, fields ...any) {
	a.sugar.Debugw(msg, fields...)
}

// Info implements types.Logger.
func (a *Adapter) Info(msg string, fields ...any) {
	a.sugar.Infow(msg, fields...)
}

// Error implements types.Logger.
func (a *Adapter) Error(msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	a.sugar.Errorw(msg, fields...)
}
