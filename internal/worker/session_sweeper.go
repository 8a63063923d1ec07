package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper is implemented by service.SessionRegistry.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// SessionSweeper periodically deletes expired sessions. Liveness is checked
// at read time, so a missed or late sweep only costs storage.
type SessionSweeper struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewSessionSweeper builds a sweeper. A non-positive interval disables it.
func NewSessionSweeper(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *SessionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionSweeper{sweeper: sweeper, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (s *SessionSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("session sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *SessionSweeper) sweepOnce(ctx context.Context) {
	n, err := s.sweeper.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("session sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions swept", zap.Int64("count", n))
	}
}

// StartSessionSweeper runs s in a goroutine. The returned channel is closed
// once the sweeper has stopped.
func StartSessionSweeper(ctx context.Context, s *SessionSweeper) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return done
}
