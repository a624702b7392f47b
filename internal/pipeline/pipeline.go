package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/pulsefeed/internal/collect"
	"github.com/TobiSchelling/pulsefeed/internal/config"
	"github.com/TobiSchelling/pulsefeed/internal/database"
	"github.com/TobiSchelling/pulsefeed/internal/fetch"
	"github.com/TobiSchelling/pulsefeed/internal/service"
)

// Run kinds stored in run reports.
const (
	KindPipeline = "pipeline"
	KindRefresh  = "refresh"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID string
	Steps []StepResult
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(s.Name), s.Err)
		}
	}
	return nil
}

func (r *Result) summary() string {
	parts := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		if s.Err != nil {
			parts = append(parts, fmt.Sprintf("%s: error", s.Name))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", s.Name, s.Summary))
	}
	return strings.Join(parts, "; ")
}

// Pipeline orchestrates collect → fetch → trending refresh.
type Pipeline struct {
	cfg *config.Config
	db  *database.DB
	svc *service.Service
	now func() time.Time
}

// New creates a new pipeline.
func New(cfg *config.Config, db *database.DB, svc *service.Service) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, svc: svc, now: time.Now}
}

// Run executes the full pipeline and records a run report.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{RunID: uuid.NewString()}
	if err := p.db.StartRun(ctx, r.RunID, KindPipeline, p.now()); err != nil {
		log.Printf("Failed to record run start: %v", err)
	}

	// Step 1: Collect
	r.Steps = append(r.Steps, p.runCollect(ctx))

	// Step 2: Fetch content
	r.Steps = append(r.Steps, p.runFetch(ctx))

	// Step 3: Refresh trending topics
	r.Steps = append(r.Steps, p.runRefresh(ctx))

	if err := p.db.FinishRun(ctx, r.RunID, p.now(), r.summary(), r.Err()); err != nil {
		log.Printf("Failed to record run finish: %v", err)
	}
	return r
}

// Refresh runs only the trending refresh, recording it as its own run. The
// scheduler calls this between full pipeline runs.
func (p *Pipeline) Refresh(ctx context.Context) *Result {
	r := &Result{RunID: uuid.NewString()}
	if err := p.db.StartRun(ctx, r.RunID, KindRefresh, p.now()); err != nil {
		log.Printf("Failed to record run start: %v", err)
	}
	r.Steps = append(r.Steps, p.runRefresh(ctx))
	if err := p.db.FinishRun(ctx, r.RunID, p.now(), r.summary(), r.Err()); err != nil {
		log.Printf("Failed to record run finish: %v", err)
	}
	return r
}

// DryRun shows what would be done without writing anything.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	r := &Result{}

	feeds := len(p.cfg.Sources.Feeds)
	queries := 0
	if p.cfg.Sources.NewsAPI.Enabled {
		queries = len(p.cfg.Sources.NewsAPI.Queries)
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("[dry-run] Would poll %d feeds and %d NewsAPI queries", feeds, queries),
	})

	needing, err := p.db.GetArticlesNeedingFetch(ctx, p.cfg.Fetch.BatchSize)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("[dry-run] %d articles need content fetching", len(needing)),
		Err:     err,
	})

	result, err := p.svc.RefreshTrending(ctx, service.RefreshOptions{PerCategory: p.cfg.Scoring.PerCategory, DryRun: true})
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Trending", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name: "Trending",
		Summary: fmt.Sprintf("[dry-run] %d samples would yield %d trending topics",
			result.Samples, len(result.Topics)),
	})
	return r
}

func (p *Pipeline) runCollect(ctx context.Context) StepResult {
	log.Println("Step 1/3: Collecting articles...")
	collector := collect.NewCollector(p.cfg, p.db)
	result := collector.Collect(ctx)
	return StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("Found %d new articles (%d total, %d duplicates)", result.NewArticles, result.TotalFound, result.Duplicates),
	}
}

func (p *Pipeline) runFetch(ctx context.Context) StepResult {
	log.Println("Step 2/3: Fetching article content...")
	fetcher := fetch.NewContentFetcher(p.db, p.cfg.FetchTimeout(), p.cfg.FetchLimiter())
	result, err := fetcher.FetchMissingContent(ctx, p.cfg.Fetch.BatchSize)
	if err != nil {
		return StepResult{Name: "Fetch", Err: err}
	}
	return StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d articles, %d failed, %d skipped", result.Fetched, result.Failed, result.Skipped),
	}
}

func (p *Pipeline) runRefresh(ctx context.Context) StepResult {
	log.Println("Step 3/3: Refreshing trending topics...")
	result, err := p.svc.RefreshTrending(ctx, service.RefreshOptions{PerCategory: p.cfg.Scoring.PerCategory})
	if err != nil {
		return StepResult{Name: "Trending", Err: err}
	}
	return StepResult{
		Name: "Trending",
		Summary: fmt.Sprintf("%d trending topics from %d interactions, %d stale pruned, %d dropped",
			len(result.Topics), result.Samples, result.Pruned, result.Superseded),
	}
}
