// Package cost computes estimated spend for paid provider calls.
package cost

// Rates holds per-provider pricing configuration, in USD.
type Rates struct {
	// SearchPerQuery is the flat cost of one search API request.
	SearchPerQuery float64 `yaml:"search_per_query" mapstructure:"search_per_query"`
	// ScrapePerProfile is the flat cost of one scraped profile result.
	ScrapePerProfile float64 `yaml:"scrape_per_profile" mapstructure:"scrape_per_profile"`
	// ScrapePerFailedRun is charged when an actor run completes but yields
	// no items (the provider still bills the run start).
	ScrapePerFailedRun float64 `yaml:"scrape_per_failed_run" mapstructure:"scrape_per_failed_run"`
}

// DefaultRates returns the default pricing rates, ballpark figures from the
// providers' public pricing pages.
func DefaultRates() Rates {
	return Rates{
		SearchPerQuery:     0.005,
		ScrapePerProfile:   0.0023,
		ScrapePerFailedRun: 0.001,
	}
}

// Calculator computes costs for provider usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Zero-valued rate
// fields fall back to the defaults.
func NewCalculator(rates Rates) *Calculator {
	def := DefaultRates()
	if rates.SearchPerQuery <= 0 {
		rates.SearchPerQuery = def.SearchPerQuery
	}
	if rates.ScrapePerProfile <= 0 {
		rates.ScrapePerProfile = def.ScrapePerProfile
	}
	if rates.ScrapePerFailedRun <= 0 {
		rates.ScrapePerFailedRun = def.ScrapePerFailedRun
	}
	return &Calculator{rates: rates}
}

// Search returns the cost of n search requests.
func (c *Calculator) Search(n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) * c.rates.SearchPerQuery
}

// Scrape returns the cost of one scrape call. Failed runs are billed at the
// lower per-run rate.
func (c *Calculator) Scrape(gotProfile bool) float64 {
	if gotProfile {
		return c.rates.ScrapePerProfile
	}
	return c.rates.ScrapePerFailedRun
}

// Rates returns the effective rates after defaulting.
func (c *Calculator) Rates() Rates {
	return c.rates
}
