package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/enrichr/internal/index"
	"github.com/raphaelgruber/enrichr/internal/llm"
	"github.com/raphaelgruber/enrichr/internal/metrics"
	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/raphaelgruber/enrichr/internal/search"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the entity worker pool size.
const DefaultWorkers = 4

// Orchestrator drives fetch, index and answer for every entity of a batch.
// Provider clients are injected and shared by all workers.
type Orchestrator struct {
	fetcher  search.Fetcher
	embedder embeddings.Embedder
	answerer *Answerer
	workers  int
	metrics  *metrics.Collector
}

// NewOrchestrator creates an orchestrator processing up to workers entities concurrently.
func NewOrchestrator(fetcher search.Fetcher, embedder embeddings.Embedder, answerer *Answerer, workers int, mc *metrics.Collector) *Orchestrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Orchestrator{
		fetcher:  fetcher,
		embedder: embedder,
		answerer: answerer,
		workers:  workers,
		metrics:  mc,
	}
}

// Run enriches entities with tmpl and returns one row per entity in input order.
func (o *Orchestrator) Run(ctx context.Context, entities []string, tmpl models.PromptTemplate) ([]models.ResultRow, error) {
	return o.Execute(ctx, NewBatch(entities), tmpl)
}

// Execute runs batch. An invalid template is reported before any entity is touched.
// If ctx is canceled, entities that had not started get canceled rows; the full row
// slice is still returned together with ctx.Err().
func (o *Orchestrator) Execute(ctx context.Context, batch *Batch, tmpl models.PromptTemplate) ([]models.ResultRow, error) {
	if tmpl.IsZero() {
		err := &models.ConfigError{Field: "template", Reason: "no prompt template"}
		batch.Fail(err)
		return nil, err
	}

	entities := batch.Entities()
	rows := make([]models.ResultRow, len(entities))

	batch.SetRunning()
	slog.Info("batch started", "batch_id", batch.ID, "entities", len(entities), "workers", o.workers)

	var g errgroup.Group
	g.SetLimit(o.workers)

	for i, entity := range entities {
		if ctx.Err() != nil {
			rows[i] = models.CanceledRow(entity)
			batch.Finish(i, rows[i])
			continue
		}

		g.Go(func() error {
			rows[i] = o.processEntity(ctx, batch, i, entity, tmpl)
			batch.Finish(i, rows[i])
			return nil
		})
	}

	// Workers never return errors; failures are recorded in rows.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		batch.Cancel()
		return rows, err
	}

	batch.Complete()
	return rows, nil
}

// processEntity runs one entity through the pipeline. It never panics and always returns a row.
func (o *Orchestrator) processEntity(ctx context.Context, batch *Batch, i int, entity string, tmpl models.PromptTemplate) (row models.ResultRow) {
	stage := models.StagePending
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("entity worker panicked", "entity", entity, "stage", stage, "panic", r)
			row = models.FailedRow(entity, stage, fmt.Errorf("internal panic: %v", r))
		}
		if row.Failed() && ctx.Err() != nil {
			row = models.CanceledRow(entity)
			row.Stage = stage
		}
		if row.Status == models.StatusFailed {
			o.metrics.RecordFailure(string(row.Stage))
		}
		o.metrics.RecordTiming(metrics.OpEntity, time.Since(start))
	}()

	if ctx.Err() != nil {
		return models.CanceledRow(entity)
	}

	query := tmpl.Render(entity)
	var degraded []error
	var degradedStage models.Stage

	// Fetching
	stage = models.StageFetching
	batch.SetStage(i, stage)
	evidence, err := o.fetcher.Fetch(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return models.CanceledRow(entity)
		}
		slog.Warn("retrieval failed, continuing without evidence", "entity", entity, "stage", stage, "error", err)
		o.metrics.RecordFailure(string(stage))
		degraded = append(degraded, asRetrievalError(err))
		degradedStage = stage
		evidence = nil
	}

	// Indexing
	stage = models.StageIndexing
	batch.SetStage(i, stage)
	idx, err := index.Build(ctx, o.embedder, index.ToDocuments(evidence))
	if err != nil {
		if ctx.Err() != nil {
			return models.CanceledRow(entity)
		}
		if !providerRejected(batch, entity, stage, err) {
			slog.Warn("indexing failed, continuing with empty index", "entity", entity, "stage", stage, "error", err)
		}
		o.metrics.RecordFailure(string(stage))
		degraded = append(degraded, err)
		if degradedStage == "" {
			degradedStage = stage
		}
		idx = index.New(o.embedder)
	}

	// Answering
	stage = models.StageAnswering
	batch.SetStage(i, stage)
	ans, err := o.answerer.Answer(ctx, query, idx)
	if err != nil {
		if !providerRejected(batch, entity, stage, err) {
			slog.Warn("generation failed", "entity", entity, "stage", stage, "error", err)
		}
		row = models.FailedRow(entity, stage, err)
		row.Evidence = len(evidence)
		return row
	}
	if ans.RetrievalErr != nil {
		slog.Warn("context retrieval failed, answered without context", "entity", entity, "error", ans.RetrievalErr)
		degraded = append(degraded, ans.RetrievalErr)
		if degradedStage == "" {
			degradedStage = models.StageIndexing
		}
	}

	row = models.ResultRow{
		Entity:   entity,
		Answer:   ans.Text,
		Status:   models.StatusOK,
		Evidence: len(evidence),
	}
	if len(degraded) > 0 {
		row.Stage = degradedStage
		row.Error = errors.Join(degraded...).Error()
	}

	slog.Debug("entity done", "entity", entity, "evidence", len(evidence), "context", ans.Documents, "duration_ms", time.Since(start).Milliseconds())
	return row
}

// providerRejected counts and logs err on batch when the provider refused the request.
func providerRejected(batch *Batch, entity string, stage models.Stage, err error) bool {
	if !errors.Is(err, llm.ErrFatalAPI) {
		return false
	}
	batch.Reject()
	slog.Error("provider rejected request", "entity", entity, "stage", stage, "error", err)
	return true
}

// asRetrievalError makes sure fetch failures carry the retrieval classification.
func asRetrievalError(err error) error {
	if errors.Is(err, models.ErrRetrieval) {
		return err
	}
	return &models.RetrievalError{Err: err}
}
