// Package index builds the per-entity similarity index over search evidence.
package index

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// Metadata keys set on evidence documents.
const (
	MetaTitle = "title"
	MetaLink  = "link"
)

// ToDocuments converts evidence into retrievable documents. The content is the
// snippet annotated with its source link; records with neither title nor snippet are skipped.
func ToDocuments(evidence []models.EvidenceRecord) []schema.Document {
	docs := make([]schema.Document, 0, len(evidence))
	for _, e := range evidence {
		text := strings.TrimSpace(e.Snippet)
		if text == "" {
			text = strings.TrimSpace(e.Title)
		}
		if text == "" {
			continue
		}
		if e.Link != "" {
			text += "\nSource: " + e.Link
		}
		docs = append(docs, schema.Document{
			PageContent: text,
			Metadata: map[string]any{
				MetaTitle: e.Title,
				MetaLink:  e.Link,
			},
		})
	}
	return docs
}

// Index is an in-memory cosine similarity index. It is built once per entity
// and never shared between entities.
type Index struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	docs    []schema.Document
	vectors [][]float32
}

var _ vectorstores.VectorStore = (*Index)(nil)

// New returns an empty index that embeds with embedder.
func New(embedder embeddings.Embedder) *Index {
	return &Index{embedder: embedder}
}

// Build embeds docs into a fresh index. An empty docs slice yields an empty
// index without calling the embedder. Failures are *models.IndexingError.
func Build(ctx context.Context, embedder embeddings.Embedder, docs []schema.Document) (*Index, error) {
	idx := New(embedder)
	if len(docs) == 0 {
		return idx, nil
	}
	if _, err := idx.AddDocuments(ctx, docs); err != nil {
		return nil, err
	}
	return idx, nil
}

// AddDocuments embeds and stores docs, returning their positional IDs.
func (i *Index) AddDocuments(ctx context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for n, d := range docs {
		if strings.TrimSpace(d.PageContent) == "" {
			return nil, &models.IndexingError{Reason: fmt.Sprintf("document %d has no content", n)}
		}
		texts[n] = d.PageContent
	}

	vectors, err := i.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &models.IndexingError{Reason: "embed documents", Err: err}
	}
	if len(vectors) != len(docs) {
		return nil, &models.IndexingError{Reason: fmt.Sprintf("expected %d vectors, got %d", len(docs), len(vectors))}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	dim := 0
	if len(i.vectors) > 0 {
		dim = len(i.vectors[0])
	}
	for n, v := range vectors {
		if len(v) == 0 {
			return nil, &models.IndexingError{Reason: fmt.Sprintf("document %d has an empty vector", n)}
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return nil, &models.IndexingError{Reason: fmt.Sprintf("document %d has dimension %d, want %d", n, len(v), dim)}
		}
	}

	ids := make([]string, len(docs))
	for n := range docs {
		ids[n] = strconv.Itoa(len(i.docs))
		i.docs = append(i.docs, docs[n])
		i.vectors = append(i.vectors, vectors[n])
	}
	return ids, nil
}

// Len returns the number of indexed documents.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// SimilaritySearch returns up to numDocuments documents ordered by descending
// cosine similarity to query. An empty index returns no documents and no error.
// Ties keep insertion order. vectorstores.WithScoreThreshold is honoured.
func (i *Index) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.docs) == 0 || numDocuments <= 0 {
		return nil, nil
	}

	qv, err := i.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &models.IndexingError{Reason: "embed query", Err: err}
	}
	if len(qv) != len(i.vectors[0]) {
		return nil, &models.IndexingError{Reason: fmt.Sprintf("query dimension %d, want %d", len(qv), len(i.vectors[0]))}
	}

	type scored struct {
		pos   int
		score float32
	}
	results := make([]scored, 0, len(i.docs))
	for n, v := range i.vectors {
		s := cosineSimilarity(qv, v)
		if opts.ScoreThreshold > 0 && s < opts.ScoreThreshold {
			continue
		}
		results = append(results, scored{pos: n, score: s})
	}

	slices.SortStableFunc(results, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	if len(results) > numDocuments {
		results = results[:numDocuments]
	}

	out := make([]schema.Document, len(results))
	for n, r := range results {
		doc := i.docs[r.pos]
		doc.Score = r.score
		out[n] = doc
	}
	return out, nil
}

// cosineSimilarity returns 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	for n := range a {
		dot += float64(a[n]) * float64(b[n])
		na += float64(a[n]) * float64(a[n])
		nb += float64(b[n]) * float64(b[n])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
