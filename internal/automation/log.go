package automation

import (
	"context"
	"fmt"

	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

// LogSink is used when no automation backend is configured; it only records
// what would have been sent.
type LogSink struct {
	logger *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logger: logg}
}

func (s *LogSink) Publish(ctx context.Context, route string, _ any) error {
	r, err := validRoute(route)
	if err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Debug(s.logger.WithField(ctx, "route", r), fmt.Sprintf("automation sink disabled, dropping %s event", r))
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
