// Package governor enforces inter-call delay, the per-batch cost ceiling,
// and retry/backoff for every paid provider call.
package governor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadenrich-cli/internal/cost"
	"github.com/sells-group/leadenrich-cli/internal/resilience"
	"github.com/sells-group/leadenrich-cli/pkg/apify"
	"github.com/sells-group/leadenrich-cli/pkg/rapidgoogle"
)

// ErrBudgetExceeded is returned instead of issuing a call once the next
// call's estimated cost would push cumulative spend past the ceiling.
var ErrBudgetExceeded = eris.New("governor: cost ceiling exceeded")

// Config controls the governor.
type Config struct {
	// PerCallDelay is the minimum delay between provider calls.
	PerCallDelay time.Duration
	// CostCeiling is the per-batch spend limit in USD. 0 means unbounded.
	CostCeiling float64
	// Retry is the policy applied uniformly to search and scrape calls.
	Retry resilience.Policy
	// Breaker configures the per-provider circuit breakers.
	Breaker resilience.BreakerConfig
}

// Governor gates all external calls. The running cost counter is the only
// state shared across leads; it is monotonically non-decreasing and read
// before every call to enforce the ceiling.
type Governor struct {
	limiter *rate.Limiter
	calc    *cost.Calculator
	retry   resilience.Policy

	searchBreaker *resilience.Breaker
	scrapeBreaker *resilience.Breaker

	ceiling float64

	mu          sync.Mutex
	spent       float64
	searchCalls int
	scrapeCalls int
}

// New creates a Governor.
func New(cfg Config, calc *cost.Calculator) *Governor {
	limit := rate.Inf
	if cfg.PerCallDelay > 0 {
		limit = rate.Every(cfg.PerCallDelay)
	}

	retry := cfg.Retry
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = shouldRetry
	}

	return &Governor{
		limiter:       rate.NewLimiter(limit, 1),
		calc:          calc,
		retry:         retry,
		searchBreaker: resilience.NewBreaker(cfg.Breaker),
		scrapeBreaker: resilience.NewBreaker(cfg.Breaker),
		ceiling:       cfg.CostCeiling,
	}
}

// shouldRetry classifies provider errors: rate limits and transient HTTP
// statuses retry; budget stops, open circuits, and auth failures do not.
func shouldRetry(err error) bool {
	if errors.Is(err, ErrBudgetExceeded) || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}

	var gErr *rapidgoogle.APIError
	if errors.As(err, &gErr) {
		return resilience.IsTransientHTTPStatus(gErr.StatusCode)
	}
	var aErr *apify.APIError
	if errors.As(err, &aErr) {
		return resilience.IsTransientHTTPStatus(aErr.StatusCode)
	}

	return resilience.IsTransient(err)
}

// Meter accumulates the spend attributed to one unit of work, typically a
// single lead. Calls issued with a context carrying the meter charge it in
// addition to the shared ledger, so per-row cost stays exact when leads run
// concurrently.
type Meter struct {
	mu    sync.Mutex
	total float64
}

// Total returns the metered spend.
func (m *Meter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *Meter) add(c float64) {
	m.mu.Lock()
	m.total += c
	m.mu.Unlock()
}

type meterKey struct{}

// WithMeter returns a context whose governed calls also charge m.
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

func meterFrom(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey{}).(*Meter)
	return m
}

// Spent returns the running cost counter.
func (g *Governor) Spent() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spent
}

// Calls returns the number of issued search and scrape calls.
func (g *Governor) Calls() (search, scrape int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.searchCalls, g.scrapeCalls
}

// BudgetExceeded reports whether the ceiling blocks any further call.
func (g *Governor) BudgetExceeded() bool {
	if g.ceiling <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spent+g.minNextCost() > g.ceiling
}

// minNextCost is the cheapest possible next call, used for the halt check.
// Callers hold g.mu.
func (g *Governor) minNextCost() float64 {
	s := g.calc.Search(1)
	if f := g.calc.Scrape(false); f < s {
		return f
	}
	return s
}

// allow reserves budget headroom for one call of estimated cost est.
func (g *Governor) allow(est float64) error {
	if g.ceiling <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.spent+est > g.ceiling {
		return ErrBudgetExceeded
	}
	return nil
}

// recordSearch adds the cost of one issued search call. The spend counter
// never decreases.
func (g *Governor) recordSearch(ctx context.Context, c float64) {
	g.mu.Lock()
	g.spent += c
	g.searchCalls++
	g.mu.Unlock()
	if m := meterFrom(ctx); m != nil {
		m.add(c)
	}
}

// recordScrape is recordSearch for the scrape provider.
func (g *Governor) recordScrape(ctx context.Context, c float64) {
	g.mu.Lock()
	g.spent += c
	g.scrapeCalls++
	g.mu.Unlock()
	if m := meterFrom(ctx); m != nil {
		m.add(c)
	}
}

// WrapSearch returns a search client whose calls pass through the governor:
// budget check, inter-call delay, circuit breaker, retry, cost recording.
func (g *Governor) WrapSearch(inner rapidgoogle.Client) rapidgoogle.Client {
	return &governedSearch{g: g, inner: inner}
}

// WrapScrape is WrapSearch for the scrape provider.
func (g *Governor) WrapScrape(inner apify.Client) apify.Client {
	return &governedScrape{g: g, inner: inner}
}

type governedSearch struct {
	g     *Governor
	inner rapidgoogle.Client
}

func (s *governedSearch) Search(ctx context.Context, query string, limit int) ([]rapidgoogle.Result, error) {
	g := s.g
	est := g.calc.Search(1)

	return resilience.DoVal(ctx, g.retry, func(ctx context.Context) ([]rapidgoogle.Result, error) {
		if err := g.allow(est); err != nil {
			return nil, err
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "governor: wait for rate limiter")
		}

		results, err := resilience.ExecuteVal(ctx, g.searchBreaker, func(ctx context.Context) ([]rapidgoogle.Result, error) {
			return s.inner.Search(ctx, query, limit)
		})
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			// The provider bills per issued request, success or not.
			g.recordSearch(ctx, est)
		}
		return results, err
	})
}

type governedScrape struct {
	g     *Governor
	inner apify.Client
}

func (s *governedScrape) ScrapeProfile(ctx context.Context, profileURL string) (*apify.ProfileItem, error) {
	g := s.g
	est := g.calc.Scrape(true)

	return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*apify.ProfileItem, error) {
		if err := g.allow(est); err != nil {
			return nil, err
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "governor: wait for rate limiter")
		}

		item, err := resilience.ExecuteVal(ctx, g.scrapeBreaker, func(ctx context.Context) (*apify.ProfileItem, error) {
			return s.inner.ScrapeProfile(ctx, profileURL)
		})
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			// Successful runs bill at the per-profile rate, failed runs at
			// the cheaper per-run rate.
			g.recordScrape(ctx, g.calc.Scrape(err == nil))
		}
		if err != nil && resilience.IsRateLimit(err) {
			zap.L().Warn("governor: scrape rate limited", zap.String("profile_url", profileURL))
		}
		return item, err
	})
}
