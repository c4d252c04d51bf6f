package model

import "time"

// RowStatus is the terminal classification of one lead's processing.
type RowStatus string

const (
	// RowStatusPending marks a row not yet processed.
	RowStatusPending RowStatus = "pending"
	// RowStatusDone marks a row fully resolved and enriched.
	RowStatusDone RowStatus = "done"
	// RowStatusResolvedOnly marks a row with a found profile URL when
	// enrichment is disabled for the run.
	RowStatusResolvedOnly RowStatus = "resolved-only"
	// RowStatusEnrichFailed marks a row whose profile was found but whose
	// scrape failed; the resolved URL is kept.
	RowStatusEnrichFailed RowStatus = "enrich-failed"
	// RowStatusNotFound marks a row where no candidate cleared the
	// confidence threshold.
	RowStatusNotFound RowStatus = "not-found"
	// RowStatusNoQuery marks a row with neither name nor email.
	RowStatusNoQuery RowStatus = "no-query"
	// RowStatusErrored marks a row that exhausted its retry budget on a
	// provider failure.
	RowStatusErrored RowStatus = "errored"
	// RowStatusSkippedBudget marks rows left unprocessed after the cost
	// ceiling was reached.
	RowStatusSkippedBudget RowStatus = "skipped-budget"
)

// Terminal reports whether the status is a terminal state.
func (s RowStatus) Terminal() bool {
	switch s {
	case RowStatusDone, RowStatusResolvedOnly, RowStatusEnrichFailed,
		RowStatusNotFound, RowStatusNoQuery, RowStatusErrored, RowStatusSkippedBudget:
		return true
	}
	return false
}

// Found reports whether the row ended with a discovered profile URL.
func (s RowStatus) Found() bool {
	switch s {
	case RowStatusDone, RowStatusResolvedOnly, RowStatusEnrichFailed:
		return true
	}
	return false
}

// EnrichedLead is the output record for one input lead. Profile and
// Attributes are nil when the corresponding step did not succeed.
type EnrichedLead struct {
	Lead       Lead               `json:"lead"`
	Profile    *ResolvedProfile   `json:"profile,omitempty"`
	Attributes *ProfileAttributes `json:"attributes,omitempty"`
	Status     RowStatus          `json:"status"`
	// Cost is the estimated spend attributable to this row, in USD.
	Cost float64 `json:"cost"`
	// Error carries the terminal error message for errored rows.
	Error string `json:"error,omitempty"`
}

// BatchResult is the ordered outcome of a batch run. Rows[i] always
// corresponds to input row i.
type BatchResult struct {
	Rows     []EnrichedLead `json:"rows"`
	Counters Counters       `json:"counters"`
	Status   RunStatus      `json:"status"`
}

// Counters aggregates per-status totals and spend for a batch.
type Counters struct {
	Total         int     `json:"total"`
	Found         int     `json:"found"`
	NotFound      int     `json:"not_found"`
	NoQuery       int     `json:"no_query"`
	Errored       int     `json:"errored"`
	EnrichFailed  int     `json:"enrich_failed"`
	SkippedBudget int     `json:"skipped_budget"`
	Resumed       int     `json:"resumed"`
	SearchCalls   int     `json:"search_calls"`
	ScrapeCalls   int     `json:"scrape_calls"`
	TotalCost     float64 `json:"total_cost"`
}

// Observe folds one finished row into the counters.
func (c *Counters) Observe(row EnrichedLead) {
	c.Total++
	c.TotalCost += row.Cost
	if row.Status.Found() {
		c.Found++
	}
	switch row.Status {
	case RowStatusNotFound:
		c.NotFound++
	case RowStatusNoQuery:
		c.NoQuery++
	case RowStatusErrored:
		c.Errored++
	case RowStatusEnrichFailed:
		c.EnrichFailed++
	case RowStatusSkippedBudget:
		c.SkippedBudget++
	}
}

// RunStatus represents the state of a recorded batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusHalted   RunStatus = "halted" // cost ceiling or cancellation
	RunStatusFailed   RunStatus = "failed"
)

// Run is the persisted record of one batch invocation.
type Run struct {
	ID         string     `json:"id"`
	InputPath  string     `json:"input_path"`
	OutputPath string     `json:"output_path"`
	Status     RunStatus  `json:"status"`
	Result     *RunResult `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunResult holds the final counters of a recorded run.
type RunResult struct {
	Counters Counters `json:"counters"`
	Error    string   `json:"error,omitempty"`
}

// RowOutcome is the flattened per-row record persisted with a run, queryable
// without re-reading the output file.
type RowOutcome struct {
	RunID      string    `json:"run_id"`
	Row        int       `json:"row"`
	Status     RowStatus `json:"status"`
	ProfileURL string    `json:"profile_url,omitempty"`
	Username   string    `json:"username,omitempty"`
	Cost       float64   `json:"cost"`
	Error      string    `json:"error,omitempty"`
}

// Outcome flattens an enriched lead into its persisted row record.
func (e EnrichedLead) Outcome(runID string) RowOutcome {
	o := RowOutcome{
		RunID:  runID,
		Row:    e.Lead.Row,
		Status: e.Status,
		Cost:   e.Cost,
		Error:  e.Error,
	}
	if e.Profile != nil {
		o.ProfileURL = e.Profile.ProfileURL
		o.Username = e.Profile.Username
	}
	return o
}
