// internal/ops/server.go
package ops

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/user/slackclaw/internal/store"
	"github.com/user/slackclaw/internal/types"
)

// Server is a lightweight HTTP handler exposing operational read-only
// endpoints: health and a view into live conversation threads.
type Server struct {
	threads *store.ThreadStore
	started time.Time
	mux     *http.ServeMux
}

// NewServer creates an ops Server over the given thread store.
func NewServer(threads *store.ThreadStore) *Server {
	s := &Server{
		threads: threads,
		started: time.Now(),
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/threads", s.handleThreads)
	s.mux.HandleFunc("GET /api/threads/", s.handleThreadDetail)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"threads": s.threads.Len(),
	})
}

// threadSummary is one row in the GET /api/threads listing.
type threadSummary struct {
	ID          string    `json:"id"`
	Messages    int       `json:"messages"`
	Executions  int       `json:"executions"`
	LastActive  time.Time `json:"last_active"`
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	var out []threadSummary
	for _, thread := range s.threads.List() {
		out = append(out, threadSummary{
			ID:         string(thread.ID),
			Messages:   len(thread.Messages()),
			Executions: len(thread.Executions()),
			LastActive: thread.LastActive(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"threads": out})
}

// threadDetail is the GET /api/threads/{id} payload.
type threadDetail struct {
	ID         string            `json:"id"`
	Messages   []threadMessage   `json:"messages"`
	Executions []threadExecution `json:"executions"`
}

type threadMessage struct {
	Role          string    `json:"role"`
	Text          string    `json:"text"`
	At            time.Time `json:"at"`
	IsButtonClick bool      `json:"is_button_click,omitempty"`
	IsSystemNote  bool      `json:"is_system_note,omitempty"`
}

type threadExecution struct {
	Tool     string        `json:"tool"`
	Result   string        `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration_ns"`
}

func (s *Server) handleThreadDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/threads/")
	if id == "" {
		http.Error(w, `{"error":"thread id required"}`, http.StatusBadRequest)
		return
	}

	thread, ok := s.threads.Peek(types.ThreadID(id))
	if !ok {
		http.Error(w, `{"error":"thread not found"}`, http.StatusNotFound)
		return
	}

	detail := threadDetail{ID: id}
	for _, m := range thread.Messages() {
		detail.Messages = append(detail.Messages, threadMessage{
			Role:          string(m.Role),
			Text:          m.Text,
			At:            m.At,
			IsButtonClick: m.IsButtonClick,
			IsSystemNote:  m.IsSystemNote,
		})
	}
	for _, e := range thread.Executions() {
		detail.Executions = append(detail.Executions, threadExecution{
			Tool:     e.Tool,
			Result:   e.Result,
			Error:    e.Err,
			At:       e.At,
			Duration: e.Duration,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}
