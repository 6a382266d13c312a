// Package models defines the data structures shared by the enrichment pipeline.
package models

// EvidenceRecord is one normalized organic search result for an entity query.
// It lives for a single entity's fetch/index/answer cycle.
type EvidenceRecord struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Status is the terminal outcome of one entity's processing.
type Status string

const (
	StatusOK       Status = "ok"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Stage names the pipeline step an entity is in, or where it failed.
type Stage string

const (
	StagePending   Stage = "pending"
	StageFetching  Stage = "fetching"
	StageIndexing  Stage = "indexing"
	StageAnswering Stage = "answering"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

const (
	// FailureMarker is the answer recorded for entities whose answer could not be generated.
	FailureMarker = "#N/A"

	// NoEvidenceMarker is the answer recorded under the "marker" empty-evidence policy.
	NoEvidenceMarker = "#NO_EVIDENCE"
)

// ResultRow is the output for one entity. Rows are immutable once appended
// to a batch result.
type ResultRow struct {
	Entity string `json:"entity"`
	Answer string `json:"answer"`
	Status Status `json:"status"`

	// Stage is where the entity failed, or the stage that degraded
	// (e.g. retrieval fell back to empty evidence) for an ok row.
	Stage Stage  `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`

	// Evidence is the number of search results used for this entity.
	Evidence int `json:"evidence"`
}

// Failed reports whether the row carries a failure marker instead of an answer.
func (r ResultRow) Failed() bool {
	return r.Status != StatusOK
}

// FailedRow builds the row recorded for an entity whose processing failed at stage.
func FailedRow(entity string, stage Stage, err error) ResultRow {
	row := ResultRow{
		Entity: entity,
		Answer: FailureMarker,
		Status: StatusFailed,
		Stage:  stage,
	}
	if err != nil {
		row.Error = err.Error()
	}
	return row
}

// CanceledRow builds the row recorded for an entity that never ran because the batch was canceled.
func CanceledRow(entity string) ResultRow {
	return ResultRow{
		Entity: entity,
		Answer: FailureMarker,
		Status: StatusCanceled,
		Stage:  StagePending,
		Error:  "batch canceled",
	}
}
