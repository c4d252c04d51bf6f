// Package pipeline orchestrates a batch run: queries, resolution, optional
// enrichment, checkpointing, and run bookkeeping.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadenrich-cli/internal/enricher"
	"github.com/sells-group/leadenrich-cli/internal/governor"
	"github.com/sells-group/leadenrich-cli/internal/model"
	"github.com/sells-group/leadenrich-cli/internal/query"
	"github.com/sells-group/leadenrich-cli/internal/resolver"
	"github.com/sells-group/leadenrich-cli/internal/store"
)

// Options controls batch behavior.
type Options struct {
	// EnrichEnabled runs the scrape step after resolution. When false, found
	// rows end as resolved-only.
	EnrichEnabled bool
	// MaxRows caps how many input rows are processed. 0 means all.
	MaxRows int
	// SaveEvery checkpoints the output after this many processed rows.
	// 0 disables intermediate saves.
	SaveEvery int
	// Concurrency bounds parallel lead processing. Values below 1 mean
	// sequential.
	Concurrency int
	// OutputPath is recorded with the run.
	OutputPath string
	// Save persists the current output rows. Called for checkpoints and for
	// the final write.
	Save func(rows []model.EnrichedLead) error
}

// Orchestrator runs leads through resolve and enrich with budget and order
// guarantees: Rows[i] of the result always corresponds to input row i, and
// no input row is lost.
type Orchestrator struct {
	builder  query.Builder
	resolver *resolver.Resolver
	enricher *enricher.Enricher
	gov      *governor.Governor
	store    store.Store
	opts     Options
}

// New creates an Orchestrator. st may be nil to skip run recording.
func New(builder query.Builder, rs *resolver.Resolver, en *enricher.Enricher, gov *governor.Governor, st store.Store, opts Options) *Orchestrator {
	return &Orchestrator{
		builder:  builder,
		resolver: rs,
		enricher: en,
		gov:      gov,
		store:    st,
		opts:     opts,
	}
}

// Run processes the batch. The returned BatchResult covers every input row
// even when the run halts early; unprocessed rows carry a non-empty status
// (skipped-budget or pending). The error is non-nil only for bookkeeping
// failures, never for individual lead failures.
func (o *Orchestrator) Run(ctx context.Context, table *store.LeadTable) (*model.BatchResult, error) {
	leads := table.Leads
	if o.opts.MaxRows > 0 && o.opts.MaxRows < len(leads) {
		leads = leads[:o.opts.MaxRows]
	}

	log := zap.L().With(zap.String("input", table.Path))
	log.Info("pipeline: starting batch", zap.Int("leads", len(leads)))

	var runID string
	if o.store != nil {
		run, err := o.store.CreateRun(ctx, table.Path, o.opts.OutputPath)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		runID = run.ID
	}

	rows := make([]model.EnrichedLead, len(leads))
	for i, lead := range leads {
		rows[i] = model.EnrichedLead{Lead: lead, Status: model.RowStatusPending}
	}

	var mu sync.Mutex
	processed := 0

	checkpoint := func() {
		if o.opts.Save == nil || o.opts.SaveEvery <= 0 {
			return
		}
		mu.Lock()
		snapshot := make([]model.EnrichedLead, len(rows))
		copy(snapshot, rows)
		mu.Unlock()
		if err := o.opts.Save(snapshot); err != nil {
			log.Warn("pipeline: checkpoint save failed", zap.Error(err))
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	limit := o.opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := range leads {
		g.Go(func() error {
			// Cancellation and budget are checked at the lead boundary; an
			// in-flight call finishes on its own terms.
			if gCtx.Err() != nil {
				return nil
			}
			// Resumed rows cost nothing, so the ceiling never skips them.
			if leads[i].ExistingURL == "" && o.gov.BudgetExceeded() {
				mu.Lock()
				rows[i].Status = model.RowStatusSkippedBudget
				mu.Unlock()
				return nil
			}

			row := o.processLead(gCtx, leads[i])

			mu.Lock()
			rows[i] = row
			processed++
			doSave := o.opts.SaveEvery > 0 && processed%o.opts.SaveEvery == 0
			mu.Unlock()

			if doSave {
				checkpoint()
				o.persistOutcomes(gCtx, runID, rows, &mu)
			}
			return nil
		})
	}
	_ = g.Wait()

	// Rows never reached because of the budget ceiling get their terminal
	// status here; rows skipped by cancellation stay pending so a resumed
	// run picks them up.
	budgetExceeded := o.gov.BudgetExceeded()
	for i := range rows {
		if rows[i].Status == model.RowStatusPending && budgetExceeded && ctx.Err() == nil {
			rows[i].Status = model.RowStatusSkippedBudget
		}
	}

	result := &model.BatchResult{Rows: rows}
	for _, row := range rows {
		result.Counters.Observe(row)
		if row.Lead.ExistingURL != "" && row.Status != model.RowStatusPending {
			result.Counters.Resumed++
		}
	}
	// The governor's ledger is authoritative for spend and call counts.
	result.Counters.TotalCost = o.gov.Spent()
	result.Counters.SearchCalls, result.Counters.ScrapeCalls = o.gov.Calls()

	// Bookkeeping still runs after a cancellation.
	bgCtx := context.WithoutCancel(ctx)

	if o.opts.Save != nil {
		if err := o.opts.Save(rows); err != nil {
			result.Status = model.RunStatusFailed
			o.finishRun(bgCtx, runID, model.RunStatusFailed, result, err)
			return result, eris.Wrap(err, "pipeline: write output")
		}
	}

	status := model.RunStatusComplete
	switch {
	case ctx.Err() != nil:
		status = model.RunStatusHalted
	case budgetExceeded && result.Counters.SkippedBudget > 0:
		status = model.RunStatusHalted
	}
	result.Status = status
	o.persistOutcomes(bgCtx, runID, rows, &mu)
	o.finishRun(bgCtx, runID, status, result, nil)

	log.Info("pipeline: batch finished",
		zap.String("status", string(status)),
		zap.Int("total", result.Counters.Total),
		zap.Int("found", result.Counters.Found),
		zap.Int("not_found", result.Counters.NotFound),
		zap.Int("errored", result.Counters.Errored),
		zap.Int("skipped_budget", result.Counters.SkippedBudget),
		zap.Float64("total_cost", result.Counters.TotalCost),
	)
	return result, nil
}

// processLead runs one lead through the state machine. Every path returns a
// terminal row; provider failures degrade the row, they never abort the
// batch.
func (o *Orchestrator) processLead(ctx context.Context, lead model.Lead) model.EnrichedLead {
	row := model.EnrichedLead{Lead: lead}
	log := zap.L().With(zap.Int("row", lead.Row), zap.String("name", lead.Name))

	// Rows already enriched in the input are re-emitted unchanged at zero
	// cost.
	if lead.ExistingURL != "" {
		row.Status = model.RowStatusDone
		if prior := model.RowStatus(lead.ExistingStatus); prior.Terminal() {
			row.Status = prior
		}
		log.Debug("pipeline: row resumed", zap.String("instagram_url", lead.ExistingURL))
		return row
	}

	q := o.builder.Build(lead)
	if q.Empty() {
		row.Status = model.RowStatusNoQuery
		return row
	}

	// Every governed call this lead issues charges its own meter, so the
	// per-row cost stays exact when leads run concurrently.
	meter := &governor.Meter{}
	ctx = governor.WithMeter(ctx, meter)

	profile, err := o.resolver.Resolve(ctx, lead, q)
	row.Cost = meter.Total()

	switch {
	case errors.Is(err, governor.ErrBudgetExceeded):
		row.Status = model.RowStatusSkippedBudget
		return row
	case err != nil:
		row.Status = model.RowStatusErrored
		row.Error = err.Error()
		log.Warn("pipeline: row errored", zap.Error(err))
		return row
	case profile == nil:
		row.Status = model.RowStatusNotFound
		return row
	}

	row.Profile = profile
	if !o.opts.EnrichEnabled {
		row.Status = model.RowStatusResolvedOnly
		return row
	}

	attrs, err := o.enricher.Enrich(ctx, profile.ProfileURL)
	row.Cost = meter.Total()

	switch {
	case errors.Is(err, enricher.ErrNotScrapable):
		// The profile exists but is private or deleted. Not a provider
		// failure, so the row keeps its resolved URL without an error.
		row.Status = model.RowStatusResolvedOnly
		log.Debug("pipeline: profile not scrapable",
			zap.String("instagram_url", profile.ProfileURL),
		)
		return row
	case err != nil:
		// The resolved URL is kept; only the attribute fetch failed.
		row.Status = model.RowStatusEnrichFailed
		row.Error = err.Error()
		log.Warn("pipeline: enrich failed, keeping resolved url",
			zap.String("instagram_url", profile.ProfileURL),
			zap.Error(err),
		)
		return row
	}

	row.Attributes = attrs
	row.Status = model.RowStatusDone
	return row
}

func (o *Orchestrator) persistOutcomes(ctx context.Context, runID string, rows []model.EnrichedLead, mu *sync.Mutex) {
	if o.store == nil || runID == "" {
		return
	}
	mu.Lock()
	snapshot := make([]model.EnrichedLead, len(rows))
	copy(snapshot, rows)
	mu.Unlock()
	if err := o.store.SaveRowOutcomes(ctx, runID, snapshot); err != nil {
		zap.L().Warn("pipeline: save row outcomes failed", zap.Error(err))
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, runID string, status model.RunStatus, result *model.BatchResult, runErr error) {
	if o.store == nil || runID == "" {
		return
	}
	rr := &model.RunResult{Counters: result.Counters}
	if runErr != nil {
		rr.Error = runErr.Error()
	}
	if err := o.store.UpdateRunResult(ctx, runID, status, rr); err != nil {
		zap.L().Warn("pipeline: update run result failed", zap.Error(err))
	}
}
