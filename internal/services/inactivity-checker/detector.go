package checker

import (
	"bytes"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Deadswitch/internal/domain/checkin"
)

// Candidate is a user past the inactivity threshold, before the roster lookup.
type Candidate struct {
	UserID      uuid.UUID
	LastCheckIn time.Time
	Elapsed     time.Duration
	Hours       int
}

// InactiveUser is a Candidate whose email is known.
type InactiveUser struct {
	UserID      uuid.UUID
	Email       string
	LastCheckIn time.Time
	Hours       int
}

// LatestByUser folds check-in rows into the newest timestamp per user.
// The result does not depend on row order.
func LatestByUser(rows []checkin.CheckIn) map[uuid.UUID]time.Time {
	latest := make(map[uuid.UUID]time.Time, len(rows))
	for _, r := range rows {
		if cur, ok := latest[r.UserID]; !ok || r.CheckedAt.After(cur) {
			latest[r.UserID] = r.CheckedAt
		}
	}
	return latest
}

// Detect returns users whose last check-in is at least threshold before now, sorted by user id.
// The comparison uses the exact duration; only the reported Hours are rounded.
func Detect(latest map[uuid.UUID]time.Time, now time.Time, threshold time.Duration) []Candidate {
	out := make([]Candidate, 0)
	for id, last := range latest {
		elapsed := now.Sub(last)
		if elapsed < threshold {
			continue
		}
		out = append(out, Candidate{
			UserID:      id,
			LastCheckIn: last,
			Elapsed:     elapsed,
			Hours:       int(math.Round(elapsed.Hours())),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].UserID[:], out[j].UserID[:]) < 0
	})
	return out
}
