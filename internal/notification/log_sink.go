package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogSink records events through the structured logger. It is the default
// sink for local and self-hosted deployments where no delivery transport is
// configured.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("notification.sink")}
}

func (s *LogSink) Notify(ctx context.Context, userID string, eventKey string, data map[string]any) error {
	_ = ctx
	s.log.Info("notification emitted",
		zap.String("user_id", userID),
		zap.String("event", eventKey),
		zap.Any("data", data),
	)
	return nil
}
