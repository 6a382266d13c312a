package service

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/tmc/langchaingo/llms"
)

// bagOfWords is a deterministic embedder hashing lowercase words into buckets.
type bagOfWords struct {
	dim int
	err error
}

func (b bagOfWords) vector(text string) []float32 {
	v := make([]float32, b.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,?!:")))
		v[h.Sum32()%uint32(b.dim)]++
	}
	return v
}

func (b bagOfWords) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = b.vector(t)
	}
	return out, nil
}

func (b bagOfWords) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.vector(text), nil
}

// stubFetcher serves fixed evidence per entity. The entity is matched as a substring of the query.
type stubFetcher struct {
	evidence map[string][]models.EvidenceRecord
	errs     map[string]error
	hook     func(ctx context.Context, query string)
	calls    atomic.Int32
}

func (f *stubFetcher) Fetch(ctx context.Context, query string) ([]models.EvidenceRecord, error) {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook(ctx, query)
	}
	for entity, err := range f.errs {
		if strings.Contains(query, entity) {
			return nil, err
		}
	}
	for entity, ev := range f.evidence {
		if strings.Contains(query, entity) {
			return ev, nil
		}
	}
	return nil, nil
}

// stubCompleter answers from the context section of the rendered prompt.
type stubCompleter struct {
	answer func(contextText, question string) (string, error)

	mu      sync.Mutex
	prompts []string
	calls   atomic.Int32
}

func (c *stubCompleter) GenerateWithSystem(_ context.Context, _, userPrompt string, _ ...llms.CallOption) (string, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.prompts = append(c.prompts, userPrompt)
	c.mu.Unlock()

	contextText, question := splitPrompt(userPrompt)
	return c.answer(contextText, question)
}

// splitPrompt extracts the context and question sections of a grounded answer prompt.
func splitPrompt(p string) (contextText, question string) {
	rest := strings.TrimPrefix(p, "Context:\n")
	ctxPart, qPart, _ := strings.Cut(rest, "\n\nQuestion: ")
	question, _, _ = strings.Cut(qPart, "\nAnswer:")
	return strings.TrimSpace(ctxPart), question
}

// usaAnswer returns "USA" when the context mentions it and the failure marker otherwise.
func usaAnswer(contextText, _ string) (string, error) {
	if contextText != "" && strings.Contains(contextText, "USA") {
		return "USA", nil
	}
	return models.FailureMarker, nil
}

var acmeEvidence = []models.EvidenceRecord{{
	Title:   "Acme HQ",
	Snippet: "Acme Corp is headquartered in Springfield, USA.",
	Link:    "http://example.com/a",
}}
