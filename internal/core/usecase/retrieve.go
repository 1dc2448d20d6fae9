package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodio/simap-assistant/internal/core/domain"
	"github.com/custodio/simap-assistant/internal/core/ports"
)

// RetrieverConfig carries the tunables of one hybrid retrieval pass.
type RetrieverConfig struct {
	LexicalLimit  int
	SemanticK     int
	RRFK          int
	DedupPrefix   int
	FusionTopN    int
	RerankEnabled bool
	RerankTopK    int
	SearchTimeout time.Duration
	RerankTimeout time.Duration
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	if out.LexicalLimit <= 0 {
		out.LexicalLimit = 100
	}
	if out.SemanticK <= 0 {
		out.SemanticK = 50
	}
	if out.RRFK <= 0 {
		out.RRFK = defaultRRFK
	}
	if out.DedupPrefix <= 0 {
		out.DedupPrefix = defaultDedupPrefix
	}
	if out.FusionTopN <= 0 {
		out.FusionTopN = defaultFusionTopN
	}
	if out.RerankTopK <= 0 {
		out.RerankTopK = 20
	}
	if out.SearchTimeout <= 0 {
		out.SearchTimeout = 15 * time.Second
	}
	if out.RerankTimeout <= 0 {
		out.RerankTimeout = 15 * time.Second
	}
	return out
}

// Retriever runs the lexical and semantic retrievers in parallel,
// fuses their rankings, and optionally reranks the head of the fused
// list. Index and model failures degrade to smaller result sets and
// never surface to the caller.
type Retriever struct {
	lexical  ports.LexicalIndex
	embedder ports.Embedder
	vector   ports.VectorIndex
	reranker ports.Reranker
	cfg      RetrieverConfig
}

func NewRetriever(
	lexical ports.LexicalIndex,
	embedder ports.Embedder,
	vector ports.VectorIndex,
	reranker ports.Reranker,
	cfg RetrieverConfig,
) *Retriever {
	return &Retriever{
		lexical:  lexical,
		embedder: embedder,
		vector:   vector,
		reranker: reranker,
		cfg:      cfg.normalize(),
	}
}

// Retrieve executes the full hybrid pass for one query. The returned
// info reports candidate counts per source and whether reranking was
// applied.
func (r *Retriever) Retrieve(ctx context.Context, query domain.Query, filter domain.SearchFilter) ([]domain.FusedResult, domain.RetrievalInfo) {
	var (
		lexicalRes  []domain.Candidate
		semanticRes []domain.Candidate
	)

	semanticK := r.cfg.SemanticK
	if query.K > 0 {
		semanticK = query.K
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		lexicalRes = r.searchLexical(groupCtx, query.Question, filter)
		return nil
	})
	group.Go(func() error {
		semanticRes = r.searchSemantic(groupCtx, query.Question, semanticK, filter)
		return nil
	})
	_ = group.Wait()

	fused := fuseRankRRF(semanticRes, lexicalRes, r.cfg.RRFK, r.cfg.DedupPrefix, r.cfg.FusionTopN)
	info := domain.RetrievalInfo{
		LexicalCandidates:  len(lexicalRes),
		SemanticCandidates: len(semanticRes),
		FusedCandidates:    len(fused),
	}

	fused, info.RerankApplied = r.rerank(ctx, query.Question, fused)
	return fused, info
}

func (r *Retriever) searchLexical(ctx context.Context, question string, filter domain.SearchFilter) []domain.Candidate {
	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	results, err := r.lexical.Search(searchCtx, question, r.cfg.LexicalLimit, filter)
	if err != nil {
		slog.Warn("lexical_search_degraded", "error", err)
		return nil
	}
	return results
}

func (r *Retriever) searchSemantic(ctx context.Context, question string, k int, filter domain.SearchFilter) []domain.Candidate {
	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	queryVector, err := r.embedder.EmbedQuery(searchCtx, question)
	if err != nil {
		slog.Warn("semantic_search_degraded", "stage", "embed", "error", err)
		return nil
	}

	results, err := r.vector.Search(searchCtx, queryVector, k, filter)
	if err != nil {
		slog.Warn("semantic_search_degraded", "stage", "search", "error", err)
		return nil
	}
	return results
}
