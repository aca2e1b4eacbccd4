package scheduler

import (
	"context"
	"log/slog"
	"time"

	"nlcal/src-server/utils"
)

const pruneTimeout = time.Minute

// PruneHistory deletes stored calendars older than the configured retention,
// once at start and then every interval, until graceful shutdown.
func PruneHistory(as *utils.AppState, interval time.Duration) {
	gracefulShutdownCh := as.CreateGracefulShutdownChan()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pruneOnce(as)
		select {
		case <-*gracefulShutdownCh:
			return
		case <-ticker.C:
		}
	}
}

func pruneOnce(as *utils.AppState) {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	startTimer := time.Now()
	deleted, err := as.History.Prune(ctx, as.Config.GetHistoryRetention())
	if err != nil {
		slog.Error("PruneHistory: can't prune history", "error", err)
		return
	}
	as.MetricChans.ObserveDatabaseWrite(time.Since(startTimer))
	if deleted > 0 {
		slog.Info("PruneHistory: pruned old calendars", "count", deleted)
	}
}
