package bootstrap

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/custodio/simap-assistant/internal/config"
	"github.com/custodio/simap-assistant/internal/core/ports"
	"github.com/custodio/simap-assistant/internal/core/usecase"
	"github.com/custodio/simap-assistant/internal/infrastructure/index/sqlitefts"
	"github.com/custodio/simap-assistant/internal/infrastructure/llm/openai"
	"github.com/custodio/simap-assistant/internal/infrastructure/rerank/cohere"
	"github.com/custodio/simap-assistant/internal/infrastructure/resilience"
	"github.com/custodio/simap-assistant/internal/infrastructure/session"
	"github.com/custodio/simap-assistant/internal/infrastructure/vector/qdrant"
	"github.com/custodio/simap-assistant/internal/observability/metrics"
)

// App wires the retrieval pipeline, the conversation use case, and the
// shared observability pieces from one validated configuration.
type App struct {
	Config  config.Config
	Ask     ports.QuestionService
	Metrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(cfg config.Config) (*App, error) {
	exec := resilience.NewExecutor(resilience.DefaultConfig())

	dbs := make(map[string]*sql.DB, len(cfg.Lexical.Indexes))
	for category, path := range cfg.Lexical.Indexes {
		db, err := sqlitefts.Open(path)
		if err != nil {
			closeAll(dbs)
			return nil, fmt.Errorf("open lexical index %q: %w", category, err)
		}
		dbs[category] = db
	}
	lexical := sqlitefts.NewIndex(dbs)

	llm := openai.New(openai.Config{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		GenModel:   cfg.OpenAI.GenModel,
		EmbedModel: cfg.OpenAI.EmbedModel,
	}, exec)

	vector := qdrant.New(cfg.Vector.URL, cfg.Vector.Collections, exec)

	var reranker ports.Reranker
	if cfg.Rerank.Enabled {
		reranker = cohere.New(cfg.Rerank.BaseURL, cfg.Rerank.APIKey, cfg.Rerank.Model, exec)
	}

	retriever := usecase.NewRetriever(lexical, llm, vector, reranker, usecase.RetrieverConfig{
		LexicalLimit:  cfg.Retrieval.LexicalLimit,
		SemanticK:     cfg.Retrieval.SemanticK,
		RRFK:          cfg.Retrieval.RRFK,
		DedupPrefix:   cfg.Retrieval.DedupPrefix,
		FusionTopN:    cfg.Retrieval.FusionTopN,
		RerankEnabled: cfg.Rerank.Enabled,
		RerankTopK:    cfg.Rerank.TopK,
		SearchTimeout: time.Duration(cfg.Retrieval.SearchTimeoutSec) * time.Second,
		RerankTimeout: time.Duration(cfg.Retrieval.RerankTimeoutSec) * time.Second,
	})

	sessions := session.NewStore(
		time.Duration(cfg.Session.TTLMin)*time.Minute,
		time.Duration(cfg.Session.SweepMin)*time.Minute,
	)

	ask := usecase.NewConversationUseCase(llm, retriever, sessions, usecase.ConversationConfig{
		MaxContextWords: cfg.Conversation.MaxContextWords,
		DecideTimeout:   time.Duration(cfg.Conversation.DecideTimeoutSec) * time.Second,
		GenerateTimeout: time.Duration(cfg.Conversation.GenerateTimeoutSec) * time.Second,
	})

	return &App{
		Config:  cfg,
		Ask:     ask,
		Metrics: metrics.NewHTTPServerMetrics(cfg.Service),
		closeFn: func() {
			closeAll(dbs)
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func closeAll(dbs map[string]*sql.DB) {
	for _, db := range dbs {
		_ = db.Close()
	}
}
