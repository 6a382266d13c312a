package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/enrichr/internal/config"
	"github.com/raphaelgruber/enrichr/internal/index"
	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// DefaultTopK is the number of documents retrieved for an answer.
const DefaultTopK = 10

// Completer produces a text completion. *llm.Model implements it.
type Completer interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, options ...llms.CallOption) (string, error)
}

const answerSystemPrompt = `You answer a question about a single entity using ONLY the provided context.
Reply with the shortest possible answer: one word or number when possible, never a full sentence.
Do not explain. If the context does not contain the answer, reply with "unknown".`

// answerUserTemplate keeps the context section even when it is empty.
const answerUserTemplate = `Context:
{{.context}}

Question: {{.question}}
Answer:`

// Answer is the outcome of one grounded answer.
type Answer struct {
	Text string

	// Documents is how many retrieved documents were in the prompt context.
	Documents int

	// RetrievalErr is set when the index could not be queried and the
	// answer was produced from an empty context.
	RetrievalErr error

	// Skipped is true when the marker policy returned NoEvidenceMarker without a completion call.
	Skipped bool
}

// Answerer retrieves context from a similarity index and asks a model to answer from it.
// It holds no per-entity state and is safe for concurrent use.
type Answerer struct {
	completer Completer
	topK      int
	policy    config.EmptyEvidencePolicy
	prompt    prompts.PromptTemplate
}

// NewAnswerer creates an answerer retrieving topK documents per question.
func NewAnswerer(completer Completer, topK int, policy config.EmptyEvidencePolicy) *Answerer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if policy == "" {
		policy = config.EmptyEvidenceGenerate
	}
	return &Answerer{
		completer: completer,
		topK:      topK,
		policy:    policy,
		prompt:    prompts.NewPromptTemplate(answerUserTemplate, []string{"context", "question"}),
	}
}

// Answer answers question from the documents in store. Retrieval errors degrade to an
// empty context. Completion failures return *models.GenerationError.
func (a *Answerer) Answer(ctx context.Context, question string, store vectorstores.VectorStore) (Answer, error) {
	docs, err := store.SimilaritySearch(ctx, question, a.topK)
	if err != nil {
		if ctx.Err() != nil {
			return Answer{}, &models.GenerationError{Reason: "canceled", Err: ctx.Err()}
		}
		return a.generate(ctx, question, nil, err)
	}
	return a.generate(ctx, question, docs, nil)
}

func (a *Answerer) generate(ctx context.Context, question string, docs []schema.Document, retrievalErr error) (Answer, error) {
	result := Answer{Documents: len(docs), RetrievalErr: retrievalErr}

	if len(docs) == 0 && a.policy == config.EmptyEvidenceMarker {
		result.Text = models.NoEvidenceMarker
		result.Skipped = true
		return result, nil
	}

	userPrompt, err := a.prompt.Format(map[string]any{
		"context":  formatContext(docs),
		"question": question,
	})
	if err != nil {
		return result, &models.GenerationError{Reason: "render prompt", Err: err}
	}

	text, err := a.completer.GenerateWithSystem(ctx, answerSystemPrompt, userPrompt)
	if err != nil {
		return result, &models.GenerationError{Reason: "completion", Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return result, &models.GenerationError{Reason: "empty completion"}
	}

	result.Text = text
	return result, nil
}

// formatContext numbers documents and prefixes each with its title.
func formatContext(docs []schema.Document) string {
	if len(docs) == 0 {
		return ""
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		title, _ := d.Metadata[index.MetaTitle].(string)
		if title != "" {
			parts[i] = fmt.Sprintf("[%d] %s\n%s", i+1, title, d.PageContent)
		} else {
			parts[i] = fmt.Sprintf("[%d] %s", i+1, d.PageContent)
		}
	}
	return strings.Join(parts, "\n\n")
}
