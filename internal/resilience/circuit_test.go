package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingCall(context.Context) error { return eris.New("provider down") }
func okCall(context.Context) error      { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for range 3 {
		_ = b.Execute(context.Background(), failingCall)
	}
	assert.Equal(t, CircuitOpen, b.State())

	err := b.Execute(context.Background(), okCall)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	_ = b.Execute(context.Background(), failingCall)
	_ = b.Execute(context.Background(), failingCall)
	require.NoError(t, b.Execute(context.Background(), okCall))
	_ = b.Execute(context.Background(), failingCall)
	_ = b.Execute(context.Background(), failingCall)

	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})

	now := time.Now()
	b.nowFunc = func() time.Time { return now }

	_ = b.Execute(context.Background(), failingCall)
	assert.Equal(t, CircuitOpen, b.State())

	// Advance past the reset timeout; a probe is allowed.
	now = now.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, b.State())

	require.NoError(t, b.Execute(context.Background(), okCall))
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})

	now := time.Now()
	b.nowFunc = func() time.Time { return now }

	_ = b.Execute(context.Background(), failingCall)
	now = now.Add(11 * time.Second)

	_ = b.Execute(context.Background(), failingCall)
	assert.Equal(t, CircuitOpen, b.State())
}

func TestBreakerShouldTripFilter(t *testing.T) {
	t.Parallel()

	tripErr := eris.New("counts")
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		ShouldTrip:       func(err error) bool { return eris.Is(err, tripErr) },
	})

	// Non-tripping errors never open the circuit.
	for range 5 {
		_ = b.Execute(context.Background(), func(context.Context) error {
			return eris.New("does not count")
		})
	}
	assert.Equal(t, CircuitClosed, b.State())

	_ = b.Execute(context.Background(), func(context.Context) error { return tripErr })
	assert.Equal(t, CircuitOpen, b.State())
}

func TestExecuteValPassesValue(t *testing.T) {
	t.Parallel()

	b := NewBreaker(DefaultBreakerConfig())
	val, err := ExecuteVal(context.Background(), b, func(context.Context) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_ = b.Execute(context.Background(), failingCall)
	assert.Equal(t, CircuitOpen, b.State())

	b.Reset()
	assert.Equal(t, CircuitClosed, b.State())
	require.NoError(t, b.Execute(context.Background(), okCall))
}
