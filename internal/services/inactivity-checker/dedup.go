package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Deduplicator struct {
	Log    LogReader
	Window time.Duration
}

// Suppressed reports whether any notification for the user was logged within the window,
// whatever contact it targeted.
func (d *Deduplicator) Suppressed(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	entries, err := d.Log.ListSince(ctx, userID, now.Add(-d.Window))
	if err != nil {
		return false, fmt.Errorf("list notification log: %w", err)
	}
	return len(entries) > 0, nil
}
