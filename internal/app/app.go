// Package app wires the analysis stack from configuration. The server and
// the CLI build the same graph: store, model client, duration resolver,
// admission controller and analysis service.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/Shimizu-Technology/video-insights-api/internal/config"
	"github.com/Shimizu-Technology/video-insights-api/internal/database"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/analysis"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/billing"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/budget"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/gemini"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/video"
)

// App is the wired analysis stack.
type App struct {
	DB       *database.DB
	Prices   *billing.PriceTable
	Budget   *budget.Controller
	Analysis *analysis.Service
}

// New opens the database, applies migrations and builds the services.
// It refuses to start when the configured model has no price.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	prices := cfg.Prices()
	if _, ok := prices.Lookup(cfg.Model); !ok {
		return nil, fmt.Errorf("no price configured for model %q; add it to PRICING_OVERRIDES_JSON: %w",
			cfg.Model, billing.ErrPricingNotConfigured)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, err
	}

	client, err := gemini.New(ctx, gemini.Config{
		Backend:     cfg.Backend,
		Model:       cfg.Model,
		Project:     cfg.Project,
		Location:    cfg.Location,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
		TopK:        cfg.TopK,
		TopP:        cfg.TopP,
		CallTimeout: cfg.ModelCallTimeout,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	if !client.SupportsWindows() {
		log.Println("⚠️  Backend cannot limit calls to a time window; segmented requests will run single-pass")
	}

	durations := video.NewDurationResolver(cfg.DurationLookupTimeout, cfg.YtDlpPath)

	orch := analysis.NewOrchestrator(client, durations, analysis.Limits{
		SinglePassMaxOutputTokens: cfg.SinglePassMaxOutputTokens,
		SegmentMaxOutputTokens:    cfg.SegmentMaxOutputTokens,
	})
	admission := budget.NewController(db, prices, cfg.Model, budget.Limits{
		UserDailyUSD:   cfg.UserDailyBudgetUSD,
		GlobalDailyUSD: cfg.GlobalDailyBudgetUSD,
	}, budget.Preflight{
		AssumedVideoSeconds:    cfg.PreflightAssumedVideoSeconds,
		PromptTokensPerCall:    cfg.PreflightPromptTokensPerCall,
		SinglePassOutputTokens: cfg.SinglePassMaxOutputTokens,
		SegmentOutputTokens:    cfg.SegmentMaxOutputTokens,
	})
	svc := analysis.NewService(orch, admission, db, prices, analysis.Defaults{
		SegmentSeconds: cfg.DefaultSegmentSeconds,
		Concurrency:    cfg.DefaultConcurrency,
	})

	return &App{DB: db, Prices: prices, Budget: admission, Analysis: svc}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}
