// Package service runs the entity enrichment pipeline.
package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/enrichr/internal/models"
)

// BatchStatus represents the state of an enrichment batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCanceled  BatchStatus = "canceled"
)

// EntityState is the live pipeline stage of one entity.
type EntityState struct {
	Entity string
	Stage  models.Stage
	Status models.Status // empty until the entity finishes
}

// BatchSnapshot is a point-in-time view of a batch. It holds no lock and is safe to copy.
type BatchSnapshot struct {
	ID          string
	Status      BatchStatus
	Total       int
	Completed   int // entities with a row, any status
	Failed      int
	Canceled    int
	Rejected    int // entities whose provider call was refused (credentials, quota, billing)
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	States      []EntityState
}

// Batch tracks one run over a list of entities.
type Batch struct {
	BatchSnapshot

	mu sync.RWMutex
}

// NewBatch creates a pending batch over entities.
func NewBatch(entities []string) *Batch {
	states := make([]EntityState, len(entities))
	for i, e := range entities {
		states[i] = EntityState{Entity: e, Stage: models.StagePending}
	}
	return &Batch{BatchSnapshot: BatchSnapshot{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Status:    BatchStatusPending,
		Total:     len(entities),
		StartedAt: time.Now(),
		States:    states,
	}}
}

// Entities returns the batch's entities in input order.
func (b *Batch) Entities() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.States))
	for i, s := range b.States {
		out[i] = s.Entity
	}
	return out
}

// SetRunning marks the batch as running.
func (b *Batch) SetRunning() {
	b.mu.Lock()
	b.Status = BatchStatusRunning
	b.mu.Unlock()
}

// SetStage records that entity i entered stage.
func (b *Batch) SetStage(i int, stage models.Stage) {
	b.mu.Lock()
	b.States[i].Stage = stage
	b.mu.Unlock()
}

// Finish records the final row for entity i.
func (b *Batch) Finish(i int, row models.ResultRow) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := &b.States[i]
	st.Status = row.Status
	switch row.Status {
	case models.StatusOK:
		st.Stage = models.StageDone
	case models.StatusFailed:
		st.Stage = models.StageFailed
		b.Failed++
	case models.StatusCanceled:
		b.Canceled++
	}
	b.Completed++
}

// Reject counts an entity whose provider request was refused.
func (b *Batch) Reject() {
	b.mu.Lock()
	b.Rejected++
	b.mu.Unlock()
}

// Complete marks the batch as completed.
func (b *Batch) Complete() {
	b.finish(BatchStatusCompleted, "")
	slog.Info("batch completed", "batch_id", b.ID, "entities", b.Total, "failed", b.Failed)
}

// Cancel marks the batch as canceled.
func (b *Batch) Cancel() {
	b.finish(BatchStatusCanceled, "batch canceled")
	slog.Warn("batch canceled", "batch_id", b.ID, "completed", b.Completed-b.Canceled, "canceled", b.Canceled)
}

// Fail marks the batch as failed with err.
func (b *Batch) Fail(err error) {
	b.finish(BatchStatusFailed, err.Error())
	slog.Error("batch failed", "batch_id", b.ID, "error", err)
}

func (b *Batch) finish(status BatchStatus, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Status = status
	b.Error = msg
	now := time.Now()
	b.CompletedAt = &now
}

// Done reports whether the batch reached a terminal status.
func (b *Batch) Done() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.CompletedAt != nil
}

// StageCounts returns how many entities are currently in each stage.
func (b *Batch) StageCounts() map[models.Stage]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := make(map[models.Stage]int)
	for _, s := range b.States {
		counts[s.Stage]++
	}
	return counts
}

// Snapshot returns a copy of the batch state.
func (b *Batch) Snapshot() BatchSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := b.BatchSnapshot
	snap.States = make([]EntityState, len(b.States))
	copy(snap.States, b.States)
	return snap
}
