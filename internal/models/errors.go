package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline's failure classes.
// Use errors.Is() to classify errors returned by pipeline stages.
var (
	// ErrRetrieval indicates the search provider was unreachable, rate-limited or
	// returned a non-success status. Recovered per entity with empty evidence.
	ErrRetrieval = errors.New("retrieval failure")

	// ErrIndexing indicates the embedding provider failed or a document was malformed.
	// Recovered per entity with an empty index.
	ErrIndexing = errors.New("indexing failure")

	// ErrGeneration indicates the completion provider failed or returned unusable output.
	// Recovered per entity with FailureMarker as the answer.
	ErrGeneration = errors.New("generation failure")

	// ErrConfiguration indicates missing credentials or an invalid template.
	// Fatal: a batch never starts with a configuration error.
	ErrConfiguration = errors.New("configuration error")
)

// RetrievalError carries the provider status code (0 for transport errors).
type RetrievalError struct {
	Code int
	Err  error
}

func (e *RetrievalError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("retrieval failure (status %d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("retrieval failure: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error        { return e.Err }
func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// IndexingError describes why evidence could not be indexed.
type IndexingError struct {
	Reason string
	Err    error
}

func (e *IndexingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("indexing failure: %s: %v", e.Reason, e.Err)
	}
	return "indexing failure: " + e.Reason
}

func (e *IndexingError) Unwrap() error        { return e.Err }
func (e *IndexingError) Is(target error) bool { return target == ErrIndexing }

// GenerationError describes why a completion could not be produced.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failure: %s: %v", e.Reason, e.Err)
	}
	return "generation failure: " + e.Reason
}

func (e *GenerationError) Unwrap() error        { return e.Err }
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// ConfigError reports an invalid setting. Field names the offending setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }
