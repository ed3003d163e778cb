package checker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Deadswitch/internal/domain/checkin"
	"github.com/NordCoder/Deadswitch/internal/domain/notification"
)

type Status struct {
	LastCheckIn    *time.Time `json:"lastCheckIn"`
	HoursRemaining int        `json:"hoursRemaining"`
	StreakDays     int        `json:"streakDays"`
	CheckedInToday bool       `json:"checkedInToday"`
}

// ComputeStatus derives a user's switch status from their check-in times.
// Days are calendar days in loc.
func ComputeStatus(times []time.Time, now time.Time, threshold time.Duration, loc *time.Location) Status {
	if loc == nil {
		loc = time.UTC
	}
	st := Status{HoursRemaining: int(math.Ceil(threshold.Hours()))}
	if len(times) == 0 {
		return st
	}

	last := times[0]
	days := make(map[string]struct{}, len(times))
	for _, t := range times {
		if t.After(last) {
			last = t
		}
		days[dayKey(dayOf(t, loc))] = struct{}{}
	}
	lastUTC := last.UTC()
	st.LastCheckIn = &lastUTC

	remaining := math.Ceil(threshold.Hours() - now.Sub(last).Hours())
	st.HoursRemaining = int(math.Max(0, remaining))

	today := dayOf(now, loc)
	_, st.CheckedInToday = days[dayKey(today)]

	day := today
	if !st.CheckedInToday {
		day = today.AddDate(0, 0, -1)
	}
	for {
		if _, ok := days[dayKey(day)]; !ok {
			break
		}
		st.StreakDays++
		day = day.AddDate(0, 0, -1)
	}
	return st
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

// CheckIns records check-ins and reports per-user status.
type CheckIns struct {
	Repo      CheckInHistory
	Clock     notification.Clock
	Threshold time.Duration
	Location  *time.Location
	// History bounds how many recent check-ins feed the status.
	History int
}

func (s *CheckIns) clock() notification.Clock {
	if s.Clock == nil {
		return SystemClock
	}
	return s.Clock
}

func (s *CheckIns) Record(ctx context.Context, userID uuid.UUID) (*checkin.CheckIn, error) {
	c := &checkin.CheckIn{UserID: userID, CheckedAt: s.clock().Now()}
	if err := s.Repo.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("insert check-in: %w", err)
	}
	return c, nil
}

func (s *CheckIns) Status(ctx context.Context, userID uuid.UUID) (Status, error) {
	list, err := s.Repo.ListByUser(ctx, userID, s.History)
	if err != nil {
		return Status{}, fmt.Errorf("list check-ins: %w", err)
	}
	times := make([]time.Time, len(list))
	for i, c := range list {
		times[i] = c.CheckedAt
	}
	return ComputeStatus(times, s.clock().Now(), s.Threshold, s.Location), nil
}
