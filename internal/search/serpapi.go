package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/enrichr/internal/metrics"
	"github.com/raphaelgruber/enrichr/internal/models"
)

const (
	// DefaultSerpAPIURL is the SerpAPI JSON search endpoint.
	DefaultSerpAPIURL = "https://serpapi.com/search.json"

	// DefaultTimeout bounds a single search request.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody limits how much of an error response is kept in the error message.
	maxErrorBody = 512
)

// SerpAPI is a Fetcher backed by the SerpAPI Google engine.
type SerpAPI struct {
	apiKey     string
	baseURL    string
	results    int
	httpClient *http.Client
	metrics    *metrics.Collector
}

// SerpAPIOption configures a SerpAPI client.
type SerpAPIOption func(*SerpAPI)

// WithBaseURL overrides the search endpoint.
func WithBaseURL(u string) SerpAPIOption {
	return func(s *SerpAPI) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) SerpAPIOption {
	return func(s *SerpAPI) { s.httpClient = c }
}

// WithMetrics records search timings on mc.
func WithMetrics(mc *metrics.Collector) SerpAPIOption {
	return func(s *SerpAPI) { s.metrics = mc }
}

// NewSerpAPI creates a client that requests at most results organic results per query.
func NewSerpAPI(apiKey string, results int, opts ...SerpAPIOption) *SerpAPI {
	s := &SerpAPI{
		apiKey:     apiKey,
		baseURL:    DefaultSerpAPIURL,
		results:    results,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type serpResponse struct {
	OrganicResults []serpOrganic `json:"organic_results"`
	Error          string        `json:"error"`
}

type serpOrganic struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Link     string `json:"link"`
}

// noResultsPrefix is how SerpAPI reports an empty result page in the error field.
const noResultsPrefix = "google hasn't returned any results"

// Fetch issues query and returns up to the configured number of results.
// Failures are returned as *models.RetrievalError.
func (s *SerpAPI) Fetch(ctx context.Context, query string) ([]models.EvidenceRecord, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &models.RetrievalError{Err: errors.New("empty query")}
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, &models.RetrievalError{Err: fmt.Errorf("parse base URL: %w", err)}
	}
	q := u.Query()
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("num", strconv.Itoa(s.results))
	q.Set("api_key", s.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &models.RetrievalError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	duration := time.Since(start)
	s.metrics.RecordTiming(metrics.OpSearch, duration)
	if err != nil {
		return nil, &models.RetrievalError{Err: fmt.Errorf("search request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Debug("search provider error", "status", resp.StatusCode, "duration_ms", duration.Milliseconds())
		return nil, &models.RetrievalError{
			Code: resp.StatusCode,
			Err:  fmt.Errorf("provider returned %s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}

	var parsed serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &models.RetrievalError{Code: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	if parsed.Error != "" {
		if strings.HasPrefix(strings.ToLower(parsed.Error), noResultsPrefix) {
			return []models.EvidenceRecord{}, nil
		}
		return nil, &models.RetrievalError{Code: resp.StatusCode, Err: errors.New(parsed.Error)}
	}

	records := make([]models.EvidenceRecord, 0, min(len(parsed.OrganicResults), s.results))
	for _, r := range parsed.OrganicResults {
		if len(records) == s.results {
			break
		}
		records = append(records, models.EvidenceRecord{
			Title:   r.Title,
			Snippet: r.Snippet,
			Link:    r.Link,
		})
	}

	slog.Debug("search completed", "results", len(records), "duration_ms", duration.Milliseconds())
	return records, nil
}
