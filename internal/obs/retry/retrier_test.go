package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	}, Policy{Name: "test_ok", Attempts: 5, Backoff: ExpoJitter{Base: time.Millisecond}})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	pol := OutboxPolicy(nil)
	pol.Name = "test_permanent"
	pol.Backoff = ExpoJitter{Base: time.Millisecond}

	err := Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("decode: %w", ErrPermanent)
	}, pol)

	require.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var exhausted error
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return errors.New("still down")
	}, Policy{
		Name:      "test_exhaust",
		Attempts:  3,
		Backoff:   ExpoJitter{Base: time.Millisecond},
		OnExhaust: func(err error) { exhausted = err },
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, err, exhausted)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("fail")
	}, Policy{Name: "test_cancel", Attempts: 5, Backoff: ExpoJitter{Base: time.Hour}})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentBeatsRetryablePolicy(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return Permanent(errors.New("bad payload"))
	}, Policy{Name: "test_permanent_override", Attempts: 4, Retryable: func(error) bool { return true }})

	require.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, calls)
}

func TestDo_SkipsCallOnDeadContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, func() error { calls++; return nil }, Policy{Name: "test_dead_ctx", Attempts: 3})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestPermanent_NilStaysNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestExpoJitter_CapsAtMax(t *testing.T) {
	b := ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 400*time.Millisecond, b.Next(2))
	assert.Equal(t, time.Second, b.Next(10))
}
