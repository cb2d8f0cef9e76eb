package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ExpirePending flips every pending record past its TTL to expired. It is
// a batch sweep, safe to re-run: already-expired records are untouched.
// Expiry has no side effects on the learning stores.
func (e *Engine) ExpirePending(ctx context.Context) (int64, error) {
	count, err := e.storage.ExpirePendingBefore(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("expiry sweep failed: %w", err)
	}
	if count > 0 {
		slog.Info("expired pending transactions", "count", count)
	}
	return count, nil
}
