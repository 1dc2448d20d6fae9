package usecase

import (
	"context"
	"log/slog"

	"github.com/custodio/simap-assistant/internal/core/domain"
)

// rerank reorders the fused head with the cross-encoder model and
// returns whether the model's ordering was actually applied. With
// reranking disabled, fewer than two candidates, or a model failure,
// the first topK of the fused order are returned unchanged.
func (r *Retriever) rerank(ctx context.Context, question string, fused []domain.FusedResult) ([]domain.FusedResult, bool) {
	topK := r.cfg.RerankTopK
	if !r.cfg.RerankEnabled || r.reranker == nil || len(fused) < 2 {
		return headOf(fused, topK), false
	}

	documents := make([]string, len(fused))
	for i, res := range fused {
		documents[i] = res.Content
	}

	rerankCtx, cancel := context.WithTimeout(ctx, r.cfg.RerankTimeout)
	defer cancel()

	order, err := r.reranker.Rerank(rerankCtx, question, documents, topK)
	if err != nil {
		slog.Warn("rerank_degraded", "error", err, "candidates", len(fused))
		return headOf(fused, topK), false
	}

	reranked := make([]domain.FusedResult, 0, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(fused) {
			continue
		}
		reranked = append(reranked, fused[idx])
	}
	if len(reranked) == 0 {
		return headOf(fused, topK), false
	}
	return headOf(reranked, topK), true
}

func headOf(results []domain.FusedResult, limit int) []domain.FusedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
