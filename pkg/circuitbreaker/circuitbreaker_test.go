package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func ok(context.Context) error      { return nil }

func newTestBreaker(clock *time.Time, changes *[]State) *CircuitBreaker {
	cb := NewCircuitBreaker(Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
		OnStateChange: func(_, to State) {
			if changes != nil {
				*changes = append(*changes, to)
			}
		},
	})
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestCircuitBreaker(t *testing.T) {
	ctx := context.Background()

	t.Run("Should open after consecutive failures", func(t *testing.T) {
		clock := time.Now()
		cb := newTestBreaker(&clock, nil)

		assert.ErrorIs(t, cb.Execute(ctx, failing), errBoom)
		assert.Equal(t, StateClosed, cb.GetState())
		assert.ErrorIs(t, cb.Execute(ctx, failing), errBoom)
		assert.Equal(t, StateOpen, cb.GetState())

		called := false
		err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
		assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
		assert.False(t, called)
	})

	t.Run("Should reset the failure streak on success", func(t *testing.T) {
		clock := time.Now()
		cb := newTestBreaker(&clock, nil)

		_ = cb.Execute(ctx, failing)
		_ = cb.Execute(ctx, ok)
		_ = cb.Execute(ctx, failing)
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("Should close again after a successful probe", func(t *testing.T) {
		clock := time.Now()
		var changes []State
		cb := newTestBreaker(&clock, &changes)

		_ = cb.Execute(ctx, failing)
		_ = cb.Execute(ctx, failing)
		clock = clock.Add(2 * time.Minute)

		assert.NoError(t, cb.Execute(ctx, ok))
		assert.Equal(t, StateClosed, cb.GetState())
		assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, changes)
	})

	t.Run("Should reopen when the probe fails", func(t *testing.T) {
		clock := time.Now()
		cb := newTestBreaker(&clock, nil)

		_ = cb.Execute(ctx, failing)
		_ = cb.Execute(ctx, failing)
		clock = clock.Add(2 * time.Minute)

		assert.ErrorIs(t, cb.Execute(ctx, failing), errBoom)
		assert.Equal(t, StateOpen, cb.GetState())
	})

	t.Run("Should ignore context cancellation", func(t *testing.T) {
		clock := time.Now()
		cb := newTestBreaker(&clock, nil)
		cancelled := func(context.Context) error { return context.Canceled }

		for i := 0; i < 5; i++ {
			_ = cb.Execute(ctx, cancelled)
		}
		assert.Equal(t, StateClosed, cb.GetState())
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
