package qdrant

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

// Client queries pre-built Qdrant collections over the REST API, one
// collection per document category. Collections are populated by an
// external ingestion process; this adapter only searches.
type Client struct {
	baseURL     string
	collections map[string]string
	httpClient  *http.Client
	exec        *resilience.Executor
}

func New(baseURL string, collections map[string]string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		collections: collections,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		exec:        exec,
	}
}

func (c *Client) Search(ctx context.Context, queryVector []float32, k int, filter domain.SearchFilter) ([]domain.Candidate, error) {
	collection, ok := c.collections[filter.Category]
	if !ok {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "vector search",
			fmt.Errorf("no collection for category %q", filter.Category))
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        k,
		"with_payload": true,
	}
	if conditions := dateConditions(filter); len(conditions) > 0 {
		reqBody["filter"] = map[string]any{"must": conditions}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "marshal search body", err)
	}

	var candidates []domain.Candidate
	err = c.exec.Execute(ctx, "qdrant_search", func(ctx context.Context) error {
		var execErr error
		candidates, execErr = c.doSearch(ctx, collection, body)
		return execErr
	}, resilience.ClassifyBackendError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "vector search", err)
	}
	return candidates, nil
}

func (c *Client) doSearch(ctx context.Context, collection string, body []byte) ([]domain.Candidate, error) {
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.StatusError{
			Operation: "qdrant search",
			Code:      resp.StatusCode,
			Body:      strings.TrimSpace(string(msg)),
		}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.Candidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.Candidate{
			Content:  getStringPayload(r.Payload, "text"),
			Origin:   domain.OriginSemantic,
			Score:    r.Score,
			HasScore: true,
			Citation: domain.Citation{
				IDSub:   getStringPayload(r.Payload, "id_sub"),
				Subtipo: getStringPayload(r.Payload, "subtipo"),
			},
		})
	}
	return out, nil
}

func dateConditions(filter domain.SearchFilter) []map[string]any {
	dateRange := map[string]any{}
	if filter.DateFrom != "" {
		dateRange["gte"] = filter.DateFrom
	}
	if filter.DateTo != "" {
		dateRange["lte"] = filter.DateTo
	}
	if len(dateRange) == 0 {
		return nil
	}
	return []map[string]any{
		{"key": "fecha", "range": dateRange},
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
