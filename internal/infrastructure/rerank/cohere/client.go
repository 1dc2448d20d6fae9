package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodio/simap-assistant/internal/core/domain"
	"github.com/custodio/simap-assistant/internal/infrastructure/resilience"
)

const defaultModel = "rerank-multilingual-v2.0"

// Client scores (query, document) pairs with the Cohere rerank API and
// returns document indices in relevance order.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, apiKey, model string, exec *resilience.Executor) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		exec:       exec,
	}
}

func (c *Client) Rerank(ctx context.Context, query string, documents []string, topK int) ([]int, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"model":     c.model,
		"query":     query,
		"documents": documents,
		"top_n":     topK,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerankUnavailable, "marshal rerank body", err)
	}

	var indices []int
	err = c.exec.Execute(ctx, "cohere_rerank", func(ctx context.Context) error {
		var execErr error
		indices, execErr = c.doRerank(ctx, body)
		return execErr
	}, resilience.ClassifyBackendError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerankUnavailable, "rerank", err)
	}
	return indices, nil
}

func (c *Client) doRerank(ctx context.Context, body []byte) ([]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.StatusError{
			Operation: "cohere rerank",
			Code:      resp.StatusCode,
			Body:      strings.TrimSpace(string(msg)),
		}
	}

	var rerankResp struct {
		Results []struct {
			Index int `json:"index"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	indices := make([]int, 0, len(rerankResp.Results))
	for _, r := range rerankResp.Results {
		indices = append(indices, r.Index)
	}
	return indices, nil
}
