package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodio/simap-assistant/internal/core/domain"
	"github.com/custodio/simap-assistant/internal/core/ports"
)

// RefusalText is the canonical refusal returned when the assembled
// context is not grounded in the question. Verbatim; callers and tests
// depend on the exact string.
const RefusalText = "Lo siento, no tengo información suficiente para responder esa pregunta."

// turnPhase tracks where in the decide→retrieve→generate pipeline a
// turn currently is. The pipeline has no cycles.
type turnPhase int

const (
	phaseDeciding turnPhase = iota
	phaseRetrieving
	phaseGenerating
	phaseDone
	phaseRefused
)

// ConversationConfig carries the per-turn limits of the state machine.
type ConversationConfig struct {
	MaxContextWords int
	DecideTimeout   time.Duration
	GenerateTimeout time.Duration
}

func (c ConversationConfig) normalize() ConversationConfig {
	out := c
	if out.MaxContextWords <= 0 {
		out.MaxContextWords = 1000000
	}
	if out.DecideTimeout <= 0 {
		out.DecideTimeout = 20 * time.Second
	}
	if out.GenerateTimeout <= 0 {
		out.GenerateTimeout = 90 * time.Second
	}
	return out
}

// ConversationUseCase drives one turn through the state machine:
// Deciding asks the model for a retrieval query (retrieval is forced,
// the model cannot skip it), Retrieving runs the hybrid pipeline,
// Generating produces the final answer from the assembled context.
// Model failures become "Error: <cause>" answers; the use case never
// returns a fault for a model problem.
type ConversationUseCase struct {
	model     ports.ChatModel
	retriever *Retriever
	sessions  ports.SessionStore
	cfg       ConversationConfig
}

func NewConversationUseCase(
	model ports.ChatModel,
	retriever *Retriever,
	sessions ports.SessionStore,
	cfg ConversationConfig,
) *ConversationUseCase {
	return &ConversationUseCase{
		model:     model,
		retriever: retriever,
		sessions:  sessions,
		cfg:       cfg.normalize(),
	}
}

// Ask runs exactly one turn for the given thread. The thread's state
// is held under the session store's lock for the whole turn, so turns
// on one thread are serialized.
func (uc *ConversationUseCase) Ask(ctx context.Context, threadID, category string, query domain.Query) (*domain.Answer, error) {
	question := strings.TrimSpace(query.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is required"))
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}

	state, release := uc.sessions.Acquire(threadID)
	defer release()

	state.Append(domain.RoleUser, question)

	answer := uc.runTurn(ctx, state, category, query)

	state.Append(domain.RoleAssistant, answer.Text)
	return answer, nil
}

func (uc *ConversationUseCase) runTurn(ctx context.Context, state *domain.ConversationState, category string, query domain.Query) *domain.Answer {
	phase := phaseDeciding
	start := time.Now()

	// Deciding: the model must emit a structured retrieval request.
	decideCtx, cancelDecide := context.WithTimeout(ctx, uc.cfg.DecideTimeout)
	retrievalQuery, err := uc.model.DecideRetrieval(decideCtx, state.Messages)
	cancelDecide()
	if err != nil {
		return errorAnswer("decide", err)
	}
	if strings.TrimSpace(retrievalQuery) == "" {
		retrievalQuery = query.Question
	}
	phase = phaseRetrieving

	fused, info := uc.retriever.Retrieve(ctx, domain.Query{
		Question: retrievalQuery,
		DateFrom: query.DateFrom,
		DateTo:   query.DateTo,
		K:        query.K,
	}, domain.SearchFilter{
		Category: category,
		DateFrom: query.DateFrom,
		DateTo:   query.DateTo,
	})

	block, err := assembleContext(fused, query.Question, uc.cfg.MaxContextWords)
	if err != nil {
		// Ungrounded context short-circuits to the canonical refusal;
		// no generation call is made.
		phase = phaseRefused
		slog.Info("turn_refused",
			"thread_id", state.ThreadID,
			"phase", int(phase),
			"retrieval_query", retrievalQuery,
			"fused_candidates", info.FusedCandidates,
		)
		return &domain.Answer{Text: RefusalText, Refused: true, Retrieval: info}
	}
	phase = phaseGenerating

	system := buildSystemInstruction(block, fused)
	generateCtx, cancelGenerate := context.WithTimeout(ctx, uc.cfg.GenerateTimeout)
	text, err := uc.model.Generate(generateCtx, system, query.Question)
	cancelGenerate()
	if err != nil {
		return errorAnswerWithRetrieval("generate", err, info)
	}
	phase = phaseDone

	slog.Info("turn_completed",
		"thread_id", state.ThreadID,
		"phase", int(phase),
		"retrieval_query", retrievalQuery,
		"lexical_candidates", info.LexicalCandidates,
		"semantic_candidates", info.SemanticCandidates,
		"fused_candidates", info.FusedCandidates,
		"rerank_applied", info.RerankApplied,
		"context_words", block.WordCount,
		"context_truncated", block.Truncated,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return &domain.Answer{Text: text, Sources: fused, Retrieval: info}
}

// errorAnswer converts a model failure into the user-visible error
// text mandated for generation-tier failures.
func errorAnswer(stage string, err error) *domain.Answer {
	slog.Error("turn_model_error", "stage", stage, "error", err)
	return &domain.Answer{Text: fmt.Sprintf("Error: %v", err)}
}

func errorAnswerWithRetrieval(stage string, err error, info domain.RetrievalInfo) *domain.Answer {
	answer := errorAnswer(stage, err)
	answer.Retrieval = info
	return answer
}
