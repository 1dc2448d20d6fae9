package domain

// Origin identifies which retriever produced a candidate.
type Origin string

const (
	OriginLexical  Origin = "Lexical"
	OriginSemantic Origin = "Semantic"
)

// Query is one user question as issued to the retrieval pipeline.
// Immutable once built.
type Query struct {
	Question string
	DateFrom string
	DateTo   string
	K        int
}

// SearchFilter narrows index queries to a document category and,
// optionally, a publication date range (inclusive, YYYY-MM-DD).
type SearchFilter struct {
	Category string
	DateFrom string
	DateTo   string
}

// Citation carries the service identifiers used for the Referencias
// section of an answer.
type Citation struct {
	IDSub   string `json:"id_sub"`
	Subtipo string `json:"subtipo"`
}

// Candidate is one retrieved unit of text. Score is only meaningful
// when HasScore is set (semantic similarity distance); lexical hits
// carry no raw score.
type Candidate struct {
	Content  string   `json:"content"`
	Origin   Origin   `json:"origin"`
	Score    float64  `json:"score,omitempty"`
	HasScore bool     `json:"-"`
	Citation Citation `json:"citation,omitempty"`
}

// FusedResult is a candidate after rank fusion. FusionScore is
// normalized to [0,1] and comparable only within one fusion run.
// Sources records every retriever that contributed the candidate.
type FusedResult struct {
	Candidate
	FusionScore float64  `json:"fusion_score"`
	Sources     []Origin `json:"sources"`
}

// SourceLabel renders provenance the way the answer page shows it,
// e.g. "Semantic + Lexical".
func (f FusedResult) SourceLabel() string {
	out := ""
	for i, s := range f.Sources {
		if i > 0 {
			out += " + "
		}
		out += string(s)
	}
	return out
}

// ContextBlock is the assembled, budget-enforced context handed to
// the generation step.
type ContextBlock struct {
	Text      string
	WordCount int
	Truncated bool
}

// RetrievalInfo describes what one retrieval pass did, for logging
// and metrics.
type RetrievalInfo struct {
	LexicalCandidates  int  `json:"lexical_candidates"`
	SemanticCandidates int  `json:"semantic_candidates"`
	FusedCandidates    int  `json:"fused_candidates"`
	RerankApplied      bool `json:"rerank_applied"`
}

// Answer is the outcome of one conversation turn.
type Answer struct {
	Text      string        `json:"text"`
	Sources   []FusedResult `json:"sources,omitempty"`
	Refused   bool          `json:"refused,omitempty"`
	Retrieval RetrievalInfo `json:"retrieval"`
}
