package notification

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewSink),
)

func NewSink(log *zap.Logger) Sink {
	return NewLogSink(log)
}
