package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadenrich-cli/internal/config"
	"github.com/sells-group/leadenrich-cli/internal/cost"
	"github.com/sells-group/leadenrich-cli/internal/enricher"
	"github.com/sells-group/leadenrich-cli/internal/governor"
	"github.com/sells-group/leadenrich-cli/internal/model"
	"github.com/sells-group/leadenrich-cli/internal/pipeline"
	"github.com/sells-group/leadenrich-cli/internal/query"
	"github.com/sells-group/leadenrich-cli/internal/resilience"
	"github.com/sells-group/leadenrich-cli/internal/resolver"
	"github.com/sells-group/leadenrich-cli/internal/store"
	"github.com/sells-group/leadenrich-cli/pkg/apify"
	"github.com/sells-group/leadenrich-cli/pkg/rapidgoogle"
)

var (
	enrichInput       string
	enrichOutput      string
	enrichLimit       int
	enrichNoEnrich    bool
	enrichDelay       float64
	enrichCeiling     float64
	enrichSaveEvery   int
	enrichConcurrency int
	enrichTemplate    string
	enrichDryRun      bool
	enrichOffline     bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a lead file with Instagram profile data",
	Long: `Reads a CSV or XLSX of leads (name and/or email columns required),
discovers one Instagram profile URL per lead via paid Google search,
optionally scrapes profile attributes, and writes an enriched CSV.

Rows that already carry an instagram_url are re-emitted unchanged at zero
cost, so re-running on a partial output resumes where the last run stopped.

Examples:
  # Dry run: parse the file and print leads with their derived queries
  leadenrich-cli enrich --input leads.csv --dry-run

  # Offline full pipeline (no API keys needed)
  leadenrich-cli enrich --input leads.csv --offline --limit 5

  # Real APIs with a $5 spend ceiling, search only
  leadenrich-cli enrich --input leads.csv --cost-ceiling 5 --no-enrich`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		table, err := store.LoadLeads(enrichInput)
		if err != nil {
			return eris.Wrap(err, "enrich: load leads")
		}
		zap.L().Info("enrich: leads loaded",
			zap.String("path", enrichInput),
			zap.Int("leads", len(table.Leads)),
		)

		builder := query.Builder{Template: queryTemplate()}

		if enrichDryRun {
			return printLeadPreview(table, builder)
		}

		enrichEnabled := cfg.Run.EnrichEnabled && !enrichNoEnrich
		if !enrichOffline {
			if err := validateAPIKeys(enrichEnabled); err != nil {
				return err
			}
		}

		outPath := enrichOutput
		if outPath == "" {
			outPath = store.DefaultOutputPath(enrichInput, time.Now())
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "enrich: init store")
		}
		defer st.Close() //nolint:errcheck

		gov := newGovernor()

		var search rapidgoogle.Client
		var scrape apify.Client
		if enrichOffline {
			search = &pipeline.StubSearchClient{}
			scrape = &pipeline.StubScrapeClient{}
		} else {
			search = rapidgoogle.NewClient(cfg.RapidAPI.Key,
				rapidgoogle.WithHost(cfg.RapidAPI.Host),
				rapidgoogle.WithBaseURL(cfg.RapidAPI.BaseURL),
			)
			scrape = apify.NewClient(cfg.Apify.Key,
				apify.WithBaseURL(cfg.Apify.BaseURL),
				apify.WithActorID(cfg.Apify.ActorID),
				apify.WithTimeout(time.Duration(cfg.Apify.TimeoutSecs)*time.Second),
			)
		}

		rs := resolver.New(gov.WrapSearch(search), nil, resolver.Config{
			ConfidenceThreshold: cfg.Resolver.ConfidenceThreshold,
			ResultLimit:         cfg.Resolver.ResultLimit,
		})
		en := enricher.New(gov.WrapScrape(scrape))

		opts := pipeline.Options{
			EnrichEnabled: enrichEnabled,
			MaxRows:       intOr(enrichLimit, cfg.Run.MaxRows),
			SaveEvery:     intOr(enrichSaveEvery, cfg.Run.SaveEvery),
			Concurrency:   intOr(enrichConcurrency, cfg.Run.Concurrency),
			OutputPath:    outPath,
			Save: func(rows []model.EnrichedLead) error {
				return store.SaveEnriched(outPath, table, rows)
			},
		}

		result, err := pipeline.New(builder, rs, en, gov, st, opts).Run(ctx, table)
		if err != nil {
			return eris.Wrap(err, "enrich: run")
		}

		zap.L().Info("enrich: output written",
			zap.String("path", outPath),
			zap.String("status", string(result.Status)),
			zap.Float64("total_cost", result.Counters.TotalCost),
		)
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichInput, "input", "", "path to lead CSV or XLSX file (required)")
	enrichCmd.Flags().StringVar(&enrichOutput, "output", "", "output CSV path (default: <input>_enriched_<timestamp>.csv)")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max leads to process (0 = config/all)")
	enrichCmd.Flags().BoolVar(&enrichNoEnrich, "no-enrich", false, "skip the scrape step; rows end as resolved-only")
	enrichCmd.Flags().Float64Var(&enrichDelay, "delay", 0, "seconds between provider calls (0 = config default)")
	enrichCmd.Flags().Float64Var(&enrichCeiling, "cost-ceiling", 0, "halt when estimated spend would exceed this USD amount (0 = config/unbounded)")
	enrichCmd.Flags().IntVar(&enrichSaveEvery, "save-every", 0, "checkpoint the output every N rows (0 = config default)")
	enrichCmd.Flags().IntVar(&enrichConcurrency, "concurrency", 0, "max leads processed in parallel (0 = config default)")
	enrichCmd.Flags().StringVar(&enrichTemplate, "query-template", "", "override the query ladder with a single {name}/{email} template")
	enrichCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "parse the file, print leads and queries, skip the pipeline")
	enrichCmd.Flags().BoolVar(&enrichOffline, "offline", false, "use stub providers (no API keys, no spend)")
	_ = enrichCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(enrichCmd)
}

// newGovernor builds the shared call governor from config plus flag
// overrides.
func newGovernor() *governor.Governor {
	delay := cfg.Run.PerCallDelaySeconds
	if enrichDelay > 0 {
		delay = enrichDelay
	}
	ceiling := cfg.Run.CostCeiling
	if enrichCeiling > 0 {
		ceiling = enrichCeiling
	}

	return governor.New(governor.Config{
		PerCallDelay: time.Duration(delay * float64(time.Second)),
		CostCeiling:  ceiling,
		Retry:        retryPolicy(cfg.Retry),
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			ResetTimeout:     time.Duration(cfg.Breaker.ResetTimeoutSecs) * time.Second,
		},
	}, cost.NewCalculator(cfg.Pricing))
}

// retryPolicy converts the config retry block to a resilience policy.
func retryPolicy(rc config.RetryConfig) resilience.Policy {
	return resilience.Policy{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   time.Duration(rc.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(rc.MaxDelayMs) * time.Millisecond,
		Multiplier:  rc.Multiplier,
		Jitter:      rc.Jitter,
	}
}

func queryTemplate() string {
	if enrichTemplate != "" {
		return enrichTemplate
	}
	return cfg.Run.QueryTemplate
}

func intOr(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}

// printLeadPreview prints each lead with its derived query ladder as
// indented JSON.
func printLeadPreview(table *store.LeadTable, builder query.Builder) error {
	type preview struct {
		Row     int      `json:"row"`
		Name    string   `json:"name,omitempty"`
		Email   string   `json:"email,omitempty"`
		Resumed bool     `json:"resumed,omitempty"`
		Queries []string `json:"queries,omitempty"`
	}

	leads := table.Leads
	if n := intOr(enrichLimit, cfg.Run.MaxRows); n > 0 && n < len(leads) {
		leads = leads[:n]
	}

	previews := make([]preview, 0, len(leads))
	for _, lead := range leads {
		previews = append(previews, preview{
			Row:     lead.Row,
			Name:    lead.Name,
			Email:   lead.Email,
			Resumed: lead.ExistingURL != "",
			Queries: builder.Build(lead).Terms,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(previews)
}

// validateAPIKeys checks that the configured providers have credentials
// before any paid call is issued.
func validateAPIKeys(enrichEnabled bool) error {
	var missing []string

	if cfg.RapidAPI.Key == "" {
		missing = append(missing, "LEADENRICH_RAPIDAPI_KEY (required: profile search)")
	}
	if enrichEnabled && cfg.Apify.Key == "" {
		missing = append(missing, "LEADENRICH_APIFY_KEY (required: profile scrape; or pass --no-enrich)")
	}

	if len(missing) > 0 {
		return eris.Errorf("enrich: missing required API keys:\n  %s\n\nSet these env vars or use --offline for stub mode", strings.Join(missing, "\n  "))
	}
	return nil
}
