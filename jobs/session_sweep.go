package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/crewdesk/crewdesk/internal/jobs"
)

// SessionSweeper deletes expired session rows.
type SessionSweeper interface {
	SweepExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionSweep handles TaskTypeSessionSweep tasks.
type SessionSweep struct {
	Sessions SessionSweeper
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle removes sessions whose expiry has passed.
func (s *SessionSweep) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := s.Metrics.Track(TaskTypeSessionSweep)
	return tracker.End(s.sweep(ctx))
}

func (s *SessionSweep) sweep(ctx context.Context) error {
	removed, err := s.Sessions.SweepExpiredSessions(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("session sweep: %w", err)
	}
	if s.Logger != nil && removed > 0 {
		s.Logger.Info("swept expired sessions", slog.Int64("removed", removed))
	}
	return nil
}
