package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodio/simap-assistant/internal/core/domain"
	"github.com/custodio/simap-assistant/internal/infrastructure/resilience"
)

// Config holds the OpenAI connection and model selection.
type Config struct {
	APIKey     string
	BaseURL    string
	GenModel   string
	EmbedModel string
}

// Client implements the chat model and embedder ports on the OpenAI
// API. DecideRetrieval forces a "retrieve" tool call so the model
// always emits a retrieval query instead of answering free-form.
type Client struct {
	api  *openai.Client
	cfg  Config
	exec *resilience.Executor
}

func New(cfg Config, exec *resilience.Executor) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:  openai.NewClientWithConfig(clientCfg),
		cfg:  cfg,
		exec: exec,
	}
}

var retrieveTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        "retrieve",
		Description: "Busca fragmentos relevantes en la base de conocimiento para responder la pregunta del usuario.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Consulta de búsqueda derivada de la conversación."
				}
			},
			"required": ["query"]
		}`),
	},
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := c.exec.Execute(ctx, "openai_embed", func(ctx context.Context) error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.cfg.EmbedModel),
			Input: []string{text},
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("empty embedding response")
		}
		vector = resp.Data[0].Embedding
		return nil
	}, classifyAPIError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "embed query", err)
	}
	return vector, nil
}

func (c *Client) DecideRetrieval(ctx context.Context, history []domain.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    chatRole(m.Role),
			Content: m.Content,
		})
	}

	var query string
	err := c.exec.Execute(ctx, "openai_decide", func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    c.cfg.GenModel,
			Messages: messages,
			Tools:    []openai.Tool{retrieveTool},
			ToolChoice: openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: "retrieve"},
			},
		})
		if err != nil {
			return err
		}
		query, err = parseRetrieveCall(resp)
		return err
	}, classifyAPIError)
	if err != nil {
		return "", domain.WrapError(domain.ErrGenerationFailed, "decide retrieval", err)
	}
	return query, nil
}

func (c *Client) Generate(ctx context.Context, systemInstruction, question string) (string, error) {
	var answer string
	err := c.exec.Execute(ctx, "openai_generate", func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.cfg.GenModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
				{Role: openai.ChatMessageRoleUser, Content: question},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion response")
		}
		answer = resp.Choices[0].Message.Content
		return nil
	}, classifyAPIError)
	if err != nil {
		return "", domain.WrapError(domain.ErrGenerationFailed, "generate answer", err)
	}
	return answer, nil
}

func parseRetrieveCall(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return "", fmt.Errorf("model did not emit a retrieve call")
	}

	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(calls[0].Function.Arguments), &args); err != nil {
		return "", fmt.Errorf("parse retrieve arguments: %w", err)
	}
	return strings.TrimSpace(args.Query), nil
}

func chatRole(role domain.Role) string {
	switch role {
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func classifyAPIError(err error) resilience.ErrorClassification {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		transient := apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
		return resilience.ErrorClassification{Retryable: transient, RecordFailure: transient}
	}
	return resilience.ClassifyBackendError(err)
}
