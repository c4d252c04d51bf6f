package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadenrich-cli/internal/cost"
	"github.com/sells-group/leadenrich-cli/internal/resilience"
	"github.com/sells-group/leadenrich-cli/pkg/apify"
	"github.com/sells-group/leadenrich-cli/pkg/rapidgoogle"
)

// fastRetry keeps retry backoff negligible in tests.
var fastRetry = resilience.Policy{
	MaxAttempts: 3,
	BaseDelay:   time.Millisecond,
	MaxDelay:    2 * time.Millisecond,
	Multiplier:  1.0,
	Jitter:      0,
}

type stubSearch struct {
	calls int
	fn    func(query string, limit int) ([]rapidgoogle.Result, error)
}

func (s *stubSearch) Search(_ context.Context, query string, limit int) ([]rapidgoogle.Result, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(query, limit)
	}
	return []rapidgoogle.Result{{URL: "https://www.instagram.com/acmeco"}}, nil
}

type stubScrape struct {
	calls int
	fn    func(profileURL string) (*apify.ProfileItem, error)
}

func (s *stubScrape) ScrapeProfile(_ context.Context, profileURL string) (*apify.ProfileItem, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(profileURL)
	}
	return &apify.ProfileItem{Username: "acmeco"}, nil
}

func newTestGovernor(ceiling float64, rates cost.Rates) *Governor {
	return New(Config{
		CostCeiling: ceiling,
		Retry:       fastRetry,
	}, cost.NewCalculator(rates))
}

func TestGovernorBudgetHaltsBeforeCall(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(2.5, cost.Rates{SearchPerQuery: 1, ScrapePerProfile: 1, ScrapePerFailedRun: 1})
	inner := &stubSearch{}
	client := g.WrapSearch(inner)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.Search(ctx, "\"Jane Doe\" instagram", 10)
		require.NoError(t, err)
	}
	assert.InDelta(t, 2.0, g.Spent(), 1e-9)
	assert.False(t, g.BudgetExceeded())

	// The third call would push spend to 3.0, past the 2.5 ceiling. It
	// must be refused without reaching the provider.
	_, err := client.Search(ctx, "\"Jane Doe\" instagram", 10)
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Equal(t, 2, inner.calls)
	assert.InDelta(t, 2.0, g.Spent(), 1e-9)
	assert.True(t, g.BudgetExceeded())
}

func TestGovernorZeroCeilingIsUnbounded(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(0, cost.DefaultRates())
	client := g.WrapSearch(&stubSearch{})

	for i := 0; i < 5; i++ {
		_, err := client.Search(context.Background(), "q", 10)
		require.NoError(t, err)
	}
	assert.False(t, g.BudgetExceeded())
	assert.Greater(t, g.Spent(), 0.0)
}

func TestGovernorChargesFailedScrapeAtRunRate(t *testing.T) {
	t.Parallel()

	rates := cost.Rates{SearchPerQuery: 0.005, ScrapePerProfile: 0.01, ScrapePerFailedRun: 0.002}
	g := newTestGovernor(0, rates)
	inner := &stubScrape{fn: func(string) (*apify.ProfileItem, error) {
		return nil, apify.ErrNoItems
	}}
	client := g.WrapScrape(inner)

	_, err := client.ScrapeProfile(context.Background(), "https://www.instagram.com/ghost")
	require.ErrorIs(t, err, apify.ErrNoItems)
	assert.Equal(t, 1, inner.calls)
	assert.InDelta(t, 0.002, g.Spent(), 1e-9)
}

func TestGovernorChargesSuccessfulScrapeAtProfileRate(t *testing.T) {
	t.Parallel()

	rates := cost.Rates{SearchPerQuery: 0.005, ScrapePerProfile: 0.01, ScrapePerFailedRun: 0.002}
	g := newTestGovernor(0, rates)
	client := g.WrapScrape(&stubScrape{})

	item, err := client.ScrapeProfile(context.Background(), "https://www.instagram.com/acmeco")
	require.NoError(t, err)
	assert.Equal(t, "acmeco", item.Username)
	assert.InDelta(t, 0.01, g.Spent(), 1e-9)
}

func TestGovernorRetriesRateLimitAndChargesEachAttempt(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(0, cost.Rates{SearchPerQuery: 1, ScrapePerProfile: 1, ScrapePerFailedRun: 1})
	attempts := 0
	inner := &stubSearch{fn: func(string, int) ([]rapidgoogle.Result, error) {
		attempts++
		if attempts < 3 {
			return nil, &rapidgoogle.RateLimitError{}
		}
		return []rapidgoogle.Result{{URL: "https://www.instagram.com/acmeco"}}, nil
	}}

	results, err := g.WrapSearch(inner).Search(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 3, inner.calls)
	assert.InDelta(t, 3.0, g.Spent(), 1e-9)

	searches, scrapes := g.Calls()
	assert.Equal(t, 3, searches)
	assert.Zero(t, scrapes)
}

func TestGovernorDoesNotRetryAuthFailure(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(0, cost.DefaultRates())
	inner := &stubSearch{fn: func(string, int) ([]rapidgoogle.Result, error) {
		return nil, &rapidgoogle.APIError{StatusCode: 403, Body: "forbidden"}
	}}

	_, err := g.WrapSearch(inner).Search(context.Background(), "q", 10)
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestGovernorRetriesTransientServerError(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(0, cost.DefaultRates())
	inner := &stubScrape{fn: func(string) (*apify.ProfileItem, error) {
		return nil, &apify.APIError{StatusCode: 502, Body: "bad gateway"}
	}}

	_, err := g.WrapScrape(inner).ScrapeProfile(context.Background(), "https://www.instagram.com/x")
	require.Error(t, err)
	assert.Equal(t, fastRetry.MaxAttempts, inner.calls)
}

func TestGovernorCircuitOpenSkipsCallAndCost(t *testing.T) {
	t.Parallel()

	g := New(Config{
		Retry: resilience.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: 1,
			ResetTimeout:     time.Hour,
		},
	}, cost.NewCalculator(cost.Rates{SearchPerQuery: 1, ScrapePerProfile: 1, ScrapePerFailedRun: 1}))

	inner := &stubSearch{fn: func(string, int) ([]rapidgoogle.Result, error) {
		return nil, &rapidgoogle.APIError{StatusCode: 400, Body: "bad request"}
	}}
	client := g.WrapSearch(inner)

	_, err := client.Search(context.Background(), "q", 10)
	require.Error(t, err)
	assert.InDelta(t, 1.0, g.Spent(), 1e-9)

	// The breaker is now open: the call is rejected locally and nothing
	// is charged.
	_, err = client.Search(context.Background(), "q", 10)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 1, inner.calls)
	assert.InDelta(t, 1.0, g.Spent(), 1e-9)
}

func TestGovernorEnforcesPerCallDelay(t *testing.T) {
	t.Parallel()

	g := New(Config{
		PerCallDelay: 30 * time.Millisecond,
		Retry:        fastRetry,
	}, cost.NewCalculator(cost.DefaultRates()))
	client := g.WrapSearch(&stubSearch{})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Search(context.Background(), "q", 10)
		require.NoError(t, err)
	}
	// First call passes immediately, the next two wait for the limiter.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestGovernorSpentIsMonotonic(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(0, cost.DefaultRates())
	search := g.WrapSearch(&stubSearch{})
	scrape := g.WrapScrape(&stubScrape{fn: func(string) (*apify.ProfileItem, error) {
		return nil, apify.ErrNoItems
	}})

	prev := g.Spent()
	for i := 0; i < 4; i++ {
		_, _ = search.Search(context.Background(), "q", 10)
		_, _ = scrape.ScrapeProfile(context.Background(), "https://www.instagram.com/x")
		cur := g.Spent()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestGovernorMeterAttributesSpendPerCaller(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(0, cost.Rates{SearchPerQuery: 1, ScrapePerProfile: 2, ScrapePerFailedRun: 1})

	var wg sync.WaitGroup
	meters := make([]*Meter, 4)
	for i := range meters {
		meters[i] = &Meter{}
		wg.Add(1)
		go func(m *Meter) {
			defer wg.Done()
			search := g.WrapSearch(&stubSearch{})
			scrape := g.WrapScrape(&stubScrape{})
			ctx := WithMeter(context.Background(), m)
			_, _ = search.Search(ctx, "q", 10)
			_, _ = scrape.ScrapeProfile(ctx, "https://www.instagram.com/x")
		}(meters[i])
	}
	wg.Wait()

	// Concurrent callers share the ledger but never each other's meter.
	for _, m := range meters {
		assert.InDelta(t, 3.0, m.Total(), 1e-9)
	}
	assert.InDelta(t, 12.0, g.Spent(), 1e-9)
}

func TestGovernorUnmeteredContextChargesLedgerOnly(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(0, cost.Rates{SearchPerQuery: 1, ScrapePerProfile: 1, ScrapePerFailedRun: 1})
	search := g.WrapSearch(&stubSearch{})

	_, err := search.Search(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, g.Spent(), 1e-9)
}
