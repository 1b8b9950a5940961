package session

import (
	"context"
	"log/slog"
	"time"

	"warelay/internal/observability"
)

// RunSweeper calls CleanupExpired every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session sweep panic", "panic", r)
		}
	}()
	n := s.CleanupExpired()
	live := s.Len()
	observability.SessionsExpired.Add(float64(n))
	observability.SessionsLive.Set(float64(live))
	if n > 0 {
		slog.Debug("session sweep", "expired", n, "live", live)
	}
}
