// Package httpapi is a small HTTP surface over the Workflow Service and
// event bus, used by the CLI's serve subcommand; it renders timelines
// through the report package. It is an external collaborator: the core packages never
// import net/http or this package.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/dshills/ccguard/eventbus"
	"github.com/dshills/ccguard/report"
	"github.com/dshills/ccguard/workflow"
)

// Server exposes the Workflow Service and event bus history over HTTP.
type Server struct {
	Service *workflow.Service
	Bus     *eventbus.Bus
	router  chi.Router
}

// NewServer builds the chi router for svc/bus and installs permissive CORS,
// so a browser-based dashboard can call this API from another origin.
func NewServer(svc *workflow.Service, bus *eventbus.Bus) *Server {
	s := &Server{Service: svc, Bus: bus}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/tasks/{id}/complete", s.handleCompleteTask)
	r.Get("/workflows/{id}/timeline", s.handleTimeline)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type completeTaskRequest struct {
	ActualTokens *int64 `json:"actualTokens,omitempty"`
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req completeTaskRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := s.Service.CompleteTask(id, req.ActualTokens)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if result.Message == "not found" {
		status = http.StatusNotFound
	}
	writeJSON(w, status, result)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	history := s.Bus.GetHistory(eventbus.HistoryQuery{})
	filtered := make([]eventbus.Event, 0, len(history))
	for _, event := range history {
		if taskID, ok := event.Data["taskId"].(string); ok && taskID == id {
			filtered = append(filtered, event)
		}
	}

	accept := r.URL.Query().Get("format")
	markdown := report.BuildMarkdown("Timeline for "+id, filtered)
	if accept == "html" {
		html, err := report.RenderHTML(markdown)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(html))
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(markdown))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
