package httpadapter

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/custodio/simap-assistant/internal/core/domain"
	"github.com/custodio/simap-assistant/internal/core/ports"
	"github.com/custodio/simap-assistant/internal/observability/metrics"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

const (
	defaultDateFrom = "2024-01-01"
	defaultDateTo   = "2024-12-31"
	defaultK        = 50
)

var categoryPages = []struct {
	Path     string
	Category string
	Title    string
}{
	{Path: "/servicios-simap", Category: "servicios", Title: "Servicios SIMAP"},
	{Path: "/noticias-simap", Category: "noticias", Title: "Noticias SIMAP"},
	{Path: "/resoluciones-simap", Category: "resoluciones", Title: "Resoluciones SIMAP"},
}

// TrafficConfig bounds inbound load on the question endpoints.
type TrafficConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
	QueueTimeout   time.Duration
}

type Router struct {
	service   string
	questions ports.QuestionService
	metrics   *metrics.HTTPServerMetrics
	traffic   TrafficConfig
	pages     *template.Template
}

func NewRouter(service string, questions ports.QuestionService, m *metrics.HTTPServerMetrics, traffic TrafficConfig) *Router {
	return &Router{
		service:   service,
		questions: questions,
		metrics:   m,
		traffic:   traffic,
		pages:     template.Must(template.ParseFS(templateFS, "templates/*.html.tmpl")),
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)

	r.Get("/healthz", rt.healthz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Group(func(g chi.Router) {
		if rt.metrics != nil {
			g.Use(func(next http.Handler) http.Handler {
				return rt.metrics.Middleware(rt.service, next)
			})
		}
		g.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.traffic.RateLimitRPS, rt.traffic.RateLimitBurst)
		})
		g.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.traffic.MaxConcurrent, rt.traffic.QueueTimeout)
		})

		for _, page := range categoryPages {
			g.Get(page.Path, rt.renderForm(page.Category, page.Title))
			g.Post(page.Path, rt.askForm(page.Category, page.Title))
		}
		g.Post("/v1/ask", rt.askJSON)
	})

	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// answerPage is the view model for the per-category question pages.
type answerPage struct {
	Title      string
	Pregunta   string
	FechaDesde string
	FechaHasta string
	K          int
	ThreadID   string
	Answer     string
	Error      string
	Sources    []domain.FusedResult
}

func (rt *Router) renderForm(_, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt.renderPage(w, answerPage{
			Title:      title,
			FechaDesde: defaultDateFrom,
			FechaHasta: defaultDateTo,
			K:          defaultK,
		})
	}
}

func (rt *Router) askForm(category, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		page := answerPage{
			Title:      title,
			Pregunta:   strings.TrimSpace(r.PostFormValue("pregunta")),
			FechaDesde: formValueOr(r, "fecha_desde", defaultDateFrom),
			FechaHasta: formValueOr(r, "fecha_hasta", defaultDateTo),
			K:          formIntOr(r, "k", defaultK),
			ThreadID:   strings.TrimSpace(r.PostFormValue("thread_id")),
		}
		if page.ThreadID == "" {
			page.ThreadID = uuid.NewString()
		}

		start := time.Now()
		answer, err := rt.questions.Ask(r.Context(), page.ThreadID, category, domain.Query{
			Question: page.Pregunta,
			DateFrom: page.FechaDesde,
			DateTo:   page.FechaHasta,
			K:        page.K,
		})
		if err != nil {
			page.Error = fmt.Sprintf("Error al procesar la pregunta: %v", err)
			rt.renderPage(w, page)
			return
		}
		if rt.metrics != nil {
			rt.metrics.RecordTurn(rt.service, answer, time.Since(start))
		}

		page.Answer = answer.Text
		if !answer.Refused {
			page.Sources = answer.Sources
		}
		rt.renderPage(w, page)
	}
}

func (rt *Router) askJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Category string `json:"category"`
		ThreadID string `json:"thread_id"`
		DateFrom string `json:"date_from"`
		DateTo   string `json:"date_to"`
		K        int    `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	if strings.TrimSpace(req.Category) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "category is required"})
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	start := time.Now()
	answer, err := rt.questions.Ask(r.Context(), req.ThreadID, req.Category, domain.Query{
		Question: req.Question,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		K:        req.K,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordTurn(rt.service, answer, time.Since(start))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"thread_id": req.ThreadID,
		"answer":    answer,
	})
}

func (rt *Router) renderPage(w http.ResponseWriter, page answerPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := rt.pages.ExecuteTemplate(w, "answer.html.tmpl", page); err != nil {
		http.Error(w, "render failure", http.StatusInternalServerError)
	}
}

func formValueOr(r *http.Request, key, fallback string) string {
	v := strings.TrimSpace(r.PostFormValue(key))
	if v == "" {
		return fallback
	}
	return v
}

func formIntOr(r *http.Request, key string, fallback int) int {
	v := strings.TrimSpace(r.PostFormValue(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
