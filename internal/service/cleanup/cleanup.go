// internal/service/cleanup/cleanup.go
package cleanup

import (
	"context"
	"time"

	"tokenguard-service/internal/service/revocation"
	sessionsvc "tokenguard-service/internal/service/session"

	"go.uber.org/zap"
)

// Janitor periodically deletes expired session rows and revocation entries.
// Skipping a run has no correctness impact: stale rows are inert, every
// check filters by expiry.
type Janitor struct {
	sessions    *sessionsvc.Manager
	revocations *revocation.List
	interval    time.Duration
	logger      *zap.Logger
}

func NewJanitor(sessions *sessionsvc.Manager, revocations *revocation.List, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		sessions:    sessions,
		revocations: revocations,
		interval:    interval,
		logger:      logger,
	}
}

// Run blocks until the context is cancelled, sweeping both stores on each
// tick.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Janitor) runOnce(ctx context.Context) {
	sessionCount, err := j.sessions.CleanupExpired(ctx)
	if err != nil {
		j.logger.Error("session cleanup failed", zap.Error(err))
	}

	revocationCount, err := j.revocations.Cleanup(ctx, time.Now())
	if err != nil {
		j.logger.Error("revocation cleanup failed", zap.Error(err))
	}

	j.logger.Info("cleanup sweep finished",
		zap.Int64("expired_sessions", sessionCount),
		zap.Int64("expired_revocations", revocationCount),
	)
}
