package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/custodio/simap-assistant/internal/core/domain"
	"github.com/custodio/simap-assistant/internal/infrastructure/resilience"
)

func testExecutor(attempts int) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

func TestSearchMapsPayloadToCandidates(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/servicios_simap/points/search" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{"text":"Requisitos del servicio","id_sub":"123","subtipo":"Insulinas"}},
			{"score":0.74,"payload":{"text":"Formulario de excepción"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, map[string]string{"servicios": "servicios_simap"}, testExecutor(1))
	got, err := client.Search(context.Background(), []float32{0.1, 0.2}, 50, domain.SearchFilter{
		Category: "servicios",
		DateFrom: "2024-01-01",
		DateTo:   "2024-12-31",
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Origin != domain.OriginSemantic || !got[0].HasScore || got[0].Score != 0.91 {
		t.Fatalf("unexpected first candidate: %+v", got[0])
	}
	if got[0].Citation.IDSub != "123" || got[0].Citation.Subtipo != "Insulinas" {
		t.Fatalf("citation not mapped: %+v", got[0].Citation)
	}

	if gotBody["limit"].(float64) != 50 {
		t.Fatalf("limit not forwarded: %v", gotBody["limit"])
	}
	if _, ok := gotBody["filter"]; !ok {
		t.Fatal("expected date filter in request body")
	}
}

func TestSearchOmitsFilterWithoutDateRange(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, map[string]string{"noticias": "noticias_simap"}, testExecutor(1))
	if _, err := client.Search(context.Background(), []float32{0.1}, 10, domain.SearchFilter{Category: "noticias"}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, ok := gotBody["filter"]; ok {
		t.Fatal("filter must be omitted without a date range")
	}
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"score":0.5,"payload":{"text":"fragmento"}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, map[string]string{"servicios": "servicios_simap"}, testExecutor(3))
	got, err := client.Search(context.Background(), []float32{0.1}, 10, domain.SearchFilter{Category: "servicios"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate after retry, got %d", len(got))
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestSearchUnknownCategoryIsRetrievalUnavailable(t *testing.T) {
	client := New("http://localhost:6333", map[string]string{"servicios": "servicios_simap"}, testExecutor(1))
	_, err := client.Search(context.Background(), []float32{0.1}, 10, domain.SearchFilter{Category: "otros"})
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestSearchClientErrorFailsFast(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad vector size", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, map[string]string{"servicios": "servicios_simap"}, testExecutor(3))
	_, err := client.Search(context.Background(), []float32{0.1}, 10, domain.SearchFilter{Category: "servicios"})
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("client errors must not retry, got %d attempts", calls)
	}
}
