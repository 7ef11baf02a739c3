package jobs

import (
	"context"
	"log"
	"time"

	"studenttracker/internal/config"
	"studenttracker/internal/metrics"
)

// SweepStore is the persistence slice the sweep needs.
type SweepStore interface {
	CloseIdleSessions(ctx context.Context, cutoff, endedAt time.Time) (int64, error)
}

// StartSessionSweepJob periodically closes open tracking sessions that have
// gone silent. Phones die and apps get killed without a stop frame; the
// sweep keeps those sessions from staying open forever.
func StartSessionSweepJob(ctx context.Context, cfg config.Config, store SweepStore) {
	if !cfg.SessionSweepEnabled {
		return
	}
	if store == nil {
		log.Printf("session sweep disabled: store not configured")
		return
	}
	interval := cfg.SessionSweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	cutoff := cfg.SessionIdleCutoff
	if cutoff <= 0 {
		cutoff = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				closed, err := store.CloseIdleSessions(tickCtx, now.Add(-cutoff), now)
				cancel()
				if err != nil {
					log.Printf("session sweep error: %v", err)
					continue
				}
				if closed > 0 {
					metrics.SessionsClosed.Add(float64(closed))
					log.Printf("session sweep closed %d idle sessions", closed)
				}
			}
		}
	}()
}
