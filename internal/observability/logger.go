package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type sweepIDKey struct{}

func NewLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return parsed, nil
}

// WithSweepID tags the context with the id of the current sweep cycle so that
// every attempt execution, reminder, and published notice triggered by that
// cycle can be traced back to it.
func WithSweepID(ctx context.Context, sweepID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, sweepIDKey{}, sweepID)
}

func SweepIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	sweepID, ok := ctx.Value(sweepIDKey{}).(string)
	if !ok || sweepID == "" {
		return "", false
	}

	return sweepID, true
}

// SweepLogger returns the logger annotated with the context's sweep id, or
// the logger unchanged when the work was not started by a sweep.
func SweepLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	sweepID, ok := SweepIDFromContext(ctx)
	if !ok {
		return logger
	}

	return logger.With(zap.String("sweepId", sweepID))
}
