package store

import (
	"context"

	"github.com/serroba/tierlink/internal/analytics"
	"go.uber.org/zap"
)

// Log is an analytics.Store that only logs events.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a logging analytics store.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) SaveLinkCreated(_ context.Context, event *analytics.LinkCreatedEvent) error {
	l.logger.Info("link created",
		zap.String("short", event.Short),
		zap.String("long", event.Long),
		zap.Time("createdAt", event.CreatedAt),
	)

	return nil
}

func (l *Log) SaveLinkVisited(_ context.Context, event *analytics.LinkVisitedEvent) error {
	l.logger.Info("link visited",
		zap.String("short", event.Short),
		zap.Uint64("visits", event.Visits),
		zap.Time("visitedAt", event.VisitedAt),
		zap.String("referrer", event.Referrer),
	)

	return nil
}

var _ analytics.Store = (*Log)(nil)
