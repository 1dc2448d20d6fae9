package ports

import (
	"context"

	"github.com/custodio/simap-assistant/internal/core/domain"
)

// LexicalIndex queries a pre-built full-text index. Implementations
// tag candidates with domain.OriginLexical and leave the score unset.
type LexicalIndex interface {
	Search(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.Candidate, error)
}

// Embedder builds the vector for a query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex performs similarity search over a pre-built vector
// index. Implementations tag candidates with domain.OriginSemantic
// and carry the raw similarity score.
type VectorIndex interface {
	Search(ctx context.Context, queryVector []float32, k int, filter domain.SearchFilter) ([]domain.Candidate, error)
}

// Reranker scores (query, document) pairs with a cross-encoder model
// and returns document indices ordered by relevance, at most topK.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]int, error)
}

// ChatModel is the language model behind the conversation pipeline.
// DecideRetrieval must force a structured retrieval request (the model
// cannot answer free-form) and returns the retrieval query it chose.
type ChatModel interface {
	DecideRetrieval(ctx context.Context, history []domain.Message) (string, error)
	Generate(ctx context.Context, systemInstruction, question string) (string, error)
}

// SessionStore maps thread ids to conversation state. Acquire returns
// the existing state or a fresh one, holding the thread's lock until
// the release function is called; turns on one thread are therefore
// serialized while distinct threads proceed in parallel.
type SessionStore interface {
	Acquire(threadID string) (*domain.ConversationState, func())
}
