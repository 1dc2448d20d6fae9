package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/custodio/simap-assistant/internal/core/domain"
	"github.com/custodio/simap-assistant/internal/core/usecase"
)

type fakeQuestionService struct {
	answer       *domain.Answer
	err          error
	lastThreadID string
	lastCategory string
	lastQuery    domain.Query
}

func (f *fakeQuestionService) Ask(_ context.Context, threadID, category string, query domain.Query) (*domain.Answer, error) {
	f.lastThreadID = threadID
	f.lastCategory = category
	f.lastQuery = query
	return f.answer, f.err
}

func newTestRouter(svc *fakeQuestionService) http.Handler {
	return NewRouter("simap-assistant", svc, nil, TrafficConfig{
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		MaxConcurrent:  8,
		QueueTimeout:   100 * time.Millisecond,
	}).Handler()
}

func TestGetCategoryPageRendersForm(t *testing.T) {
	handler := newTestRouter(&fakeQuestionService{})

	req := httptest.NewRequest(http.MethodGet, "/servicios-simap", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, `name="pregunta"`) {
		t.Fatal("form field pregunta missing")
	}
	if !strings.Contains(body, "2024-01-01") || !strings.Contains(body, "2024-12-31") {
		t.Fatal("default date range missing")
	}
}

func TestPostCategoryFormAppliesDefaultsAndRendersAnswer(t *testing.T) {
	svc := &fakeQuestionService{answer: &domain.Answer{
		Text: "Debe presentar DNI y credencial.",
		Sources: []domain.FusedResult{{
			Candidate: domain.Candidate{
				Content:  "requisitos",
				Origin:   domain.OriginSemantic,
				Citation: domain.Citation{IDSub: "123", Subtipo: "Insulinas"},
			},
			FusionScore: 1.0,
			Sources:     []domain.Origin{domain.OriginSemantic},
		}},
	}}
	handler := newTestRouter(svc)

	form := url.Values{"pregunta": {"¿qué requisitos hay?"}}
	req := httptest.NewRequest(http.MethodPost, "/noticias-simap", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if svc.lastCategory != "noticias" {
		t.Fatalf("category not routed: %q", svc.lastCategory)
	}
	if svc.lastQuery.DateFrom != "2024-01-01" || svc.lastQuery.DateTo != "2024-12-31" || svc.lastQuery.K != 50 {
		t.Fatalf("defaults not applied: %+v", svc.lastQuery)
	}
	if svc.lastThreadID == "" {
		t.Fatal("expected generated thread id")
	}

	body := res.Body.String()
	if !strings.Contains(body, "Debe presentar DNI y credencial.") {
		t.Fatal("answer missing from page")
	}
	if !strings.Contains(body, "subtipo_detalle.php?id_sub=123") {
		t.Fatal("citation link missing from page")
	}
}

func TestPostCategoryFormRefusalHidesSources(t *testing.T) {
	svc := &fakeQuestionService{answer: &domain.Answer{
		Text:    usecase.RefusalText,
		Refused: true,
	}}
	handler := newTestRouter(svc)

	form := url.Values{"pregunta": {"algo sin respuesta"}}
	req := httptest.NewRequest(http.MethodPost, "/servicios-simap", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	body := res.Body.String()
	if !strings.Contains(body, usecase.RefusalText) {
		t.Fatal("refusal text missing from page")
	}
	if strings.Contains(body, "Fuentes") {
		t.Fatal("refused answer must not list sources")
	}
}

func TestPostCategoryFormErrorRendersSpanishMessage(t *testing.T) {
	svc := &fakeQuestionService{err: domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is required"))}
	handler := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/resoluciones-simap", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if !strings.Contains(res.Body.String(), "Error al procesar la pregunta:") {
		t.Fatalf("expected handler error message, got:\n%s", res.Body.String())
	}
}

func TestAskJSONReturnsAnswerAndThreadID(t *testing.T) {
	svc := &fakeQuestionService{answer: &domain.Answer{Text: "respuesta"}}
	handler := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/ask",
		strings.NewReader(`{"question":"¿qué requisitos hay?","category":"servicios","thread_id":"hilo-1"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp struct {
		ThreadID string        `json:"thread_id"`
		Answer   domain.Answer `json:"answer"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ThreadID != "hilo-1" {
		t.Fatalf("thread id not echoed: %q", resp.ThreadID)
	}
	if resp.Answer.Text != "respuesta" {
		t.Fatalf("unexpected answer: %q", resp.Answer.Text)
	}
}

func TestAskJSONRequiresQuestionAndCategory(t *testing.T) {
	handler := newTestRouter(&fakeQuestionService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"category":"servicios"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing question, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"algo"}`))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing category, got %d", res.Code)
	}
}

func TestAskJSONMapsInvalidInputTo400(t *testing.T) {
	svc := &fakeQuestionService{err: domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is required"))}
	handler := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/ask",
		strings.NewReader(`{"question":"   ","category":"servicios"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	svc := &fakeQuestionService{answer: &domain.Answer{Text: "respuesta"}}
	handler := NewRouter("simap-assistant", svc, nil, TrafficConfig{
		RateLimitRPS:   1,
		RateLimitBurst: 1,
		MaxConcurrent:  8,
		QueueTimeout:   100 * time.Millisecond,
	}).Handler()

	req1 := httptest.NewRequest(http.MethodGet, "/servicios-simap", nil)
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/servicios-simap", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header for 429 response")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/servicios-simap", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodGet, "/servicios-simap", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(res2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatal("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for first request completion")
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&fakeQuestionService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
