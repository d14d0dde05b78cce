package alert

import (
	"context"

	"whale_watcher/internal/core"
)

// LogSink writes alert text to the logger. It stands in for a real
// delivery channel when telegram is disabled, so the pipeline keeps
// running end to end in development.
type LogSink struct {
	logger core.ILogger
}

func NewLogSink(logger core.ILogger) *LogSink {
	return &LogSink{logger: logger.WithField("component", "log_sink")}
}

func (l *LogSink) Name() string {
	return "log"
}

func (l *LogSink) Send(_ context.Context, recipient, text string) error {
	l.logger.Info("ALERT", "recipient", recipient, "text", text)
	return nil
}
