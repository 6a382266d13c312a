// Package search fetches web evidence for entity queries.
package search

import (
	"context"

	"github.com/raphaelgruber/enrichr/internal/models"
)

// Fetcher returns the organic search results for a query.
// An empty result is not an error. Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, query string) ([]models.EvidenceRecord, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, query string) ([]models.EvidenceRecord, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, query string) ([]models.EvidenceRecord, error) {
	return f(ctx, query)
}
