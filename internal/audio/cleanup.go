package audio

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/callscope/callscope/internal/database"
)

// StartCleanupTicker runs a background goroutine that periodically clears
// recording references older than maxDays from the CDR source and removes
// the audio files from disk. A maxDays of 0 disables the sweep. The
// goroutine stops when the provided context is cancelled.
func StartCleanupTicker(ctx context.Context, legs database.LegSource, store *Store, maxDays int, interval time.Duration) {
	if maxDays <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := legs.DeleteExpiredRecordings(ctx, maxDays)
				if err != nil {
					slog.Error("recording retention cleanup failed", "error", err)
					continue
				}
				if len(expired) == 0 {
					continue
				}

				slog.Info("recording retention cleanup", "cleared", len(expired), "max_days", maxDays)

				for _, e := range expired {
					ref := Ref{Filename: e.Filename, CallDate: e.CallTime.Format("2006-01-02")}
					path, err := store.Resolve(ref)
					if err != nil {
						// Already gone from disk; the reference is cleared either way.
						continue
					}
					if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
						slog.Warn("failed to remove recording file", "path", path, "error", err)
					}
				}
			}
		}
	}()
}
