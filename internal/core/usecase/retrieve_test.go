package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/custodio/simap-assistant/internal/core/domain"
)

type fakeLexicalIndex struct {
	results []domain.Candidate
	err     error
	queries []string
}

func (f *fakeLexicalIndex) Search(_ context.Context, query string, _ int, _ domain.SearchFilter) ([]domain.Candidate, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeVectorIndex struct {
	results []domain.Candidate
	err     error
}

func (f *fakeVectorIndex) Search(_ context.Context, _ []float32, _ int, _ domain.SearchFilter) ([]domain.Candidate, error) {
	return f.results, f.err
}

type fakeReranker struct {
	order  []int
	err    error
	calls  int
	lastTopK int
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, _ []string, topK int) ([]int, error) {
	f.calls++
	f.lastTopK = topK
	return f.order, f.err
}

func newTestRetriever(lexical *fakeLexicalIndex, vector *fakeVectorIndex, reranker *fakeReranker, cfg RetrieverConfig) *Retriever {
	return NewRetriever(lexical, &fakeEmbedder{}, vector, reranker, cfg)
}

func TestRetrieveMergesBothSources(t *testing.T) {
	lexical := &fakeLexicalIndex{results: []domain.Candidate{lexicalCandidate("DNI, credencial, receta")}}
	vector := &fakeVectorIndex{results: []domain.Candidate{semanticCandidate("Formulario de excepción firmado por médico", 0.2)}}
	retriever := newTestRetriever(lexical, vector, nil, RetrieverConfig{})

	fused, info := retriever.Retrieve(context.Background(), domain.Query{Question: "¿qué requisitos hay?"}, domain.SearchFilter{})
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused results, got %d", len(fused))
	}
	if info.LexicalCandidates != 1 || info.SemanticCandidates != 1 {
		t.Fatalf("unexpected retrieval info: %+v", info)
	}
	if info.RerankApplied {
		t.Fatal("rerank must not be applied when disabled")
	}
	for _, res := range fused {
		if res.FusionScore > 1 {
			t.Fatalf("fusion score above 1: %f", res.FusionScore)
		}
	}
}

func TestRetrieveLexicalFailureDegradesToSemanticOnly(t *testing.T) {
	lexical := &fakeLexicalIndex{err: fmt.Errorf("index locked")}
	vector := &fakeVectorIndex{results: []domain.Candidate{semanticCandidate("fragmento", 0.4)}}
	retriever := newTestRetriever(lexical, vector, nil, RetrieverConfig{})

	fused, info := retriever.Retrieve(context.Background(), domain.Query{Question: "fragmento"}, domain.SearchFilter{})
	if len(fused) != 1 {
		t.Fatalf("expected semantic-only result, got %d", len(fused))
	}
	if info.LexicalCandidates != 0 {
		t.Fatalf("expected zero lexical candidates, got %d", info.LexicalCandidates)
	}
}

func TestRetrieveEmbedFailureDegradesToLexicalOnly(t *testing.T) {
	lexical := &fakeLexicalIndex{results: []domain.Candidate{lexicalCandidate("fragmento")}}
	vector := &fakeVectorIndex{}
	retriever := NewRetriever(lexical, &fakeEmbedder{err: fmt.Errorf("embedding service down")}, vector, nil, RetrieverConfig{})

	fused, info := retriever.Retrieve(context.Background(), domain.Query{Question: "fragmento"}, domain.SearchFilter{})
	if len(fused) != 1 {
		t.Fatalf("expected lexical-only result, got %d", len(fused))
	}
	if info.SemanticCandidates != 0 {
		t.Fatalf("expected zero semantic candidates, got %d", info.SemanticCandidates)
	}
}

func TestRetrieveBothSourcesEmpty(t *testing.T) {
	retriever := newTestRetriever(&fakeLexicalIndex{}, &fakeVectorIndex{}, nil, RetrieverConfig{})

	fused, info := retriever.Retrieve(context.Background(), domain.Query{Question: "algo"}, domain.SearchFilter{})
	if len(fused) != 0 {
		t.Fatalf("expected empty fusion, got %d", len(fused))
	}
	if info.FusedCandidates != 0 {
		t.Fatalf("expected zero fused candidates, got %d", info.FusedCandidates)
	}
}

func TestRetrieveQueryKOverridesSemanticBound(t *testing.T) {
	vector := &fakeVectorIndex{results: []domain.Candidate{semanticCandidate("fragmento", 0.4)}}
	retriever := newTestRetriever(&fakeLexicalIndex{}, vector, nil, RetrieverConfig{SemanticK: 50})

	_, info := retriever.Retrieve(context.Background(), domain.Query{Question: "fragmento", K: 3}, domain.SearchFilter{})
	if info.SemanticCandidates != 1 {
		t.Fatalf("unexpected semantic candidate count: %d", info.SemanticCandidates)
	}
}
