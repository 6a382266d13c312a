package search

import (
	"context"

	"github.com/raphaelgruber/enrichr/internal/models"
	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped Fetcher.
type RateLimited struct {
	next    Fetcher
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second to next. rps <= 0 disables limiting.
func NewRateLimited(next Fetcher, rps float64) Fetcher {
	if rps <= 0 {
		return next
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Fetch waits for a token then delegates.
func (r *RateLimited) Fetch(ctx context.Context, query string) ([]models.EvidenceRecord, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &models.RetrievalError{Err: err}
	}
	return r.next.Fetch(ctx, query)
}
