// Package pipeline runs the harvest tiers in sequence and keeps the job
// bookkeeping. Tiers hand work to each other through stored rows, never
// through process memory, so a crashed run resumes from the database.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/farmassist/harvester/internal/catalog"
	"github.com/farmassist/harvester/internal/metrics"
)

// Stage is one pipeline tier. Run returns the number of items it produced.
type Stage struct {
	Name string
	Type catalog.JobType
	Run  func(ctx context.Context) (int, error)
}

// Runner executes stages in order with a failure boundary per stage: a tier
// that errors is recorded as failed and the next tier still runs. Only
// context cancellation stops the sequence.
type Runner struct {
	stages []Stage
	jobs   catalog.JobStore
	clock  catalog.Clock
	logger *zap.Logger
}

// New creates a Runner over the given stages.
func New(stages []Stage, jobs catalog.JobStore, clock catalog.Clock, logger *zap.Logger) *Runner {
	return &Runner{
		stages: stages,
		jobs:   jobs,
		clock:  clock,
		logger: logger,
	}
}

// Run executes the full pipeline under one umbrella job. The umbrella job
// ends completed when the sequence ran to the end, interrupted when the
// context was canceled mid-run.
func (r *Runner) Run(ctx context.Context) error {
	pipelineID := uuid.NewString()
	start := r.clock.Now()
	if err := r.jobs.CreateJob(ctx, catalog.ScrapeJob{
		ID:        pipelineID,
		Type:      catalog.JobTypePipeline,
		Status:    catalog.StatusRunning,
		StartedAt: start,
	}); err != nil {
		return fmt.Errorf("create pipeline job: %w", err)
	}

	var (
		totalItems int
		outcomes   = make(map[string]any, len(r.stages))
		runErr     error
	)
	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		items, status := r.runStage(ctx, stage)
		totalItems += items
		outcomes[string(stage.Type)] = string(status)
		if status == catalog.StatusInterrupted {
			runErr = ctx.Err()
			break
		}
	}

	status := catalog.StatusCompleted
	errText := ""
	if runErr != nil {
		status = catalog.StatusInterrupted
		errText = runErr.Error()
	}
	if err := r.jobs.FinishJob(context.WithoutCancel(ctx), pipelineID, status, r.clock.Now(), totalItems, errText, map[string]any{
		"stages": outcomes,
	}); err != nil {
		r.logger.Error("Failed to finish pipeline job", zap.Error(err))
	}
	metrics.ObserveJobFinished(string(status))
	return runErr
}

// runStage wraps one tier in its own job row and duration metric.
func (r *Runner) runStage(ctx context.Context, stage Stage) (int, catalog.JobStatus) {
	jobID := uuid.NewString()
	start := r.clock.Now()
	r.logger.Info("Starting tier", zap.String("tier", stage.Name))

	if err := r.jobs.CreateJob(ctx, catalog.ScrapeJob{
		ID:        jobID,
		Type:      stage.Type,
		Status:    catalog.StatusRunning,
		StartedAt: start,
	}); err != nil {
		r.logger.Error("Failed to create tier job", zap.String("tier", stage.Name), zap.Error(err))
	}

	items, err := stage.Run(ctx)
	end := r.clock.Now()
	metrics.ObserveTierDuration(string(stage.Type), end.Sub(start))

	status := catalog.StatusCompleted
	errText := ""
	switch {
	case ctx.Err() != nil:
		status = catalog.StatusInterrupted
		errText = ctx.Err().Error()
	case err != nil:
		status = catalog.StatusFailed
		errText = err.Error()
	}

	if ferr := r.jobs.FinishJob(context.WithoutCancel(ctx), jobID, status, end, items, errText, nil); ferr != nil {
		r.logger.Error("Failed to finish tier job", zap.String("tier", stage.Name), zap.Error(ferr))
	}
	metrics.ObserveJobFinished(string(status))

	if err != nil {
		r.logger.Warn("Tier failed", zap.String("tier", stage.Name), zap.Error(err))
	} else {
		r.logger.Info("Tier done", zap.String("tier", stage.Name), zap.Int("items", items))
	}
	return items, status
}

// DiscoveredPDFURLs reads the PDF URL list the most recent discovery job
// left in its metadata. It tolerates both in-process and JSON-decoded
// metadata shapes.
func DiscoveredPDFURLs(ctx context.Context, jobs catalog.JobStore) ([]string, error) {
	job, err := jobs.LatestJob(ctx, catalog.JobTypeDiscovery)
	if err != nil {
		return nil, fmt.Errorf("load discovery job: %w", err)
	}
	raw, ok := job.Metadata["pdf_urls"]
	if !ok {
		return nil, nil
	}
	switch urls := raw.(type) {
	case []string:
		return urls, nil
	case []any:
		out := make([]string, 0, len(urls))
		for _, u := range urls {
			s, ok := u.(string)
			if !ok {
				return nil, fmt.Errorf("discovery job pdf_urls holds non-string entry %T", u)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("discovery job pdf_urls has unexpected type %T", raw)
	}
}
