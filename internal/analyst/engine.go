// Package analyst implements the dual-corpus retrieval-and-synthesis
// protocol: a question is embedded once, the wisdom and wire collections are
// searched independently, and the top hits from each become separately
// labeled context blocks for the analyst prompt. Both the synchronous and
// streaming query paths run through one Engine so their retrieval semantics
// cannot drift apart.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/onslaught7/market-pulse-engine/internal/rag"
)

// DefaultTopK is the number of hits retrieved per corpus collection.
const DefaultTopK = 3

// ErrEmptyQuestion rejects empty or whitespace-only input before any
// downstream call is made. It is a client error, never a dependency failure.
var ErrEmptyQuestion = errors.New("analyst: question cannot be empty")

// Stage identifies which step of the query pipeline failed, so callers can
// report embedding, per-collection search, and synthesis failures distinctly.
type Stage string

const (
	// StageEmbed is the question-embedding step.
	StageEmbed Stage = "embed"
	// StageWisdomSearch is the wisdom-collection similarity search.
	StageWisdomSearch Stage = "wisdom_search"
	// StageWireSearch is the wire-collection similarity search.
	StageWireSearch Stage = "wire_search"
	// StageSynthesis is the language-model invocation.
	StageSynthesis Stage = "synthesis"
)

// StageError wraps an upstream dependency failure with the pipeline stage
// that hit it. A search failure is never conflated with an empty corpus.
type StageError struct {
	// Stage is the pipeline step that failed.
	Stage Stage
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("analyst: %s failed: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *StageError) Unwrap() error { return e.Err }

// Detail returns the caller-facing description of the failure. It names the
// failed stage without leaking credentials or internals.
func (e *StageError) Detail() string {
	switch e.Stage {
	case StageEmbed:
		return "Failed to generate embedding for your question."
	case StageWisdomSearch:
		return "Failed to search historical knowledge base."
	case StageWireSearch:
		return "Failed to search live news feed."
	case StageSynthesis:
		return "Failed to synthesize answer from AI model."
	default:
		return "Query failed."
	}
}

// Answer is the synthesized result returned to the caller. It is ephemeral —
// nothing here is persisted by the engine itself.
type Answer struct {
	// Question is the trimmed question that was answered.
	Question string `json:"question"`
	// Answer is the model's synthesized response text.
	Answer string `json:"answer"`
	// SourcesScanned is the number of retrieved points across both corpora.
	SourcesScanned int `json:"sources_scanned"`
}

// Config holds the engine configuration.
type Config struct {
	// WisdomCollection is the curated background-knowledge collection name.
	WisdomCollection string
	// WireCollection is the live-news collection name.
	WireCollection string
	// TopK is the number of hits per collection. Defaults to 3.
	TopK int
}

// Engine answers questions against the two corpora. It is stateless and
// request-scoped: concurrent queries share only the injected collaborators,
// which are safe for concurrent use.
type Engine struct {
	// embedder converts the question into a query vector.
	embedder rag.Embedder
	// store performs the similarity searches.
	store rag.VectorStore
	// synth produces the final answer text.
	synth Synthesizer
	// wisdom and wire are the two corpus collection names.
	wisdom string
	wire   string
	// topK is the per-collection hit count.
	topK int
}

// NewEngine constructs an Engine from the injected collaborators.
func NewEngine(embedder rag.Embedder, store rag.VectorStore, synth Synthesizer, cfg *Config) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("analyst: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("analyst: store must not be nil")
	}
	if synth == nil {
		return nil, fmt.Errorf("analyst: synthesizer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.WisdomCollection == "" {
		cfg.WisdomCollection = "wisdom"
	}
	if cfg.WireCollection == "" {
		cfg.WireCollection = "wire"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}

	return &Engine{
		embedder: embedder,
		store:    store,
		synth:    synth,
		wisdom:   cfg.WisdomCollection,
		wire:     cfg.WireCollection,
		topK:     cfg.TopK,
	}, nil
}

// retrieval is the intermediate product of steps 1–4: the two rendered
// context blocks plus the total hit count.
type retrieval struct {
	wisdomContext string
	wireContext   string
	sources       int
}

// retrieve validates and embeds the question, then searches both collections
// concurrently. Both searches must succeed before synthesis proceeds — there
// is no partial-result synthesis.
func (e *Engine) retrieve(ctx context.Context, question string) (*retrieval, error) {
	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, &StageError{Stage: StageEmbed, Err: err}
	}
	if len(vectors) == 0 {
		return nil, &StageError{Stage: StageEmbed, Err: errors.New("embedder returned no vectors")}
	}
	queryVector := vectors[0]

	var (
		wg                     sync.WaitGroup
		wisdomHits, wireHits   []rag.ScoredPoint
		wisdomErr, wireErr     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		wisdomHits, wisdomErr = e.store.Search(ctx, e.wisdom, queryVector, e.topK)
	}()
	go func() {
		defer wg.Done()
		wireHits, wireErr = e.store.Search(ctx, e.wire, queryVector, e.topK)
	}()
	wg.Wait()

	if wisdomErr != nil {
		return nil, &StageError{Stage: StageWisdomSearch, Err: wisdomErr}
	}
	if wireErr != nil {
		return nil, &StageError{Stage: StageWireSearch, Err: wireErr}
	}

	return &retrieval{
		wisdomContext: joinContents(wisdomHits),
		wireContext:   joinContents(wireHits),
		sources:       len(wisdomHits) + len(wireHits),
	}, nil
}

// Ask answers a question synchronously: retrieve, render, synthesize.
func (e *Engine) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	r, err := e.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	answer, err := e.synth.Complete(ctx, renderPrompt(r.wisdomContext, r.wireContext, question))
	if err != nil {
		return nil, &StageError{Stage: StageSynthesis, Err: err}
	}

	return &Answer{
		Question:       question,
		Answer:         answer,
		SourcesScanned: r.sources,
	}, nil
}

// AskStream answers a question with incremental delivery: retrieval is
// identical to Ask, but answer fragments are forwarded to onToken as they
// arrive. The complete Answer is returned for observability and history.
func (e *Engine) AskStream(ctx context.Context, question string, onToken func(token string) error) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	r, err := e.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	answer, err := e.synth.Stream(ctx, renderPrompt(r.wisdomContext, r.wireContext, question), onToken)
	if err != nil {
		return nil, &StageError{Stage: StageSynthesis, Err: err}
	}

	return &Answer{
		Question:       question,
		Answer:         answer,
		SourcesScanned: r.sources,
	}, nil
}

// joinContents concatenates the page_content of each hit with newline
// separators, preserving the store's descending-similarity order. A hit
// without page_content contributes an empty string, never an error.
func joinContents(hits []rag.ScoredPoint) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Content())
	}
	return strings.Join(parts, "\n")
}
