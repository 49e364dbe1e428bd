// Package llmstub serves an offline OpenAI-compatible API that answers chat
// completions with the canned sample for the requested response schema.
package llmstub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/csverma610/medkit/internal/generators"
)

type chatRequest struct {
	Model          string `json:"model"`
	ResponseFormat *struct {
		Type       string `json:"type"`
		JSONSchema *struct {
			Name string `json:"name"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

// Server is an http.Handler that counts the completions it served.
type Server struct {
	Model string
	mux   *http.ServeMux
	calls atomic.Int64
}

// New returns a stub reporting model from /v1/models.
func New(model string) *Server {
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	s := &Server{Model: model, mux: http.NewServeMux()}
	s.mux.HandleFunc("/v1/models", s.models)
	s.mux.HandleFunc("/v1/chat/completions", s.completions)
	return s
}

// Calls reports how many chat completions were answered.
func (s *Server) Calls() int64 { return s.calls.Load() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   []map[string]any{{"id": s.Model, "object": "model"}},
	})
}

func (s *Server) completions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResponseFormat == nil || req.ResponseFormat.JSONSchema == nil {
		writeError(w, http.StatusBadRequest, "response_format.json_schema is required")
		return
	}
	name := req.ResponseFormat.JSONSchema.Name
	body, ok := generators.Sample(name)
	if !ok {
		writeError(w, http.StatusBadRequest, "no canned answer for schema "+name)
		return
	}
	s.calls.Add(1)
	log.Debug().Str("schema", name).Str("model", req.Model).Msg("stub completion")
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     "chatcmpl-stub",
		"object": "chat.completion",
		"model":  req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": string(body)},
		}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": msg, "type": "invalid_request_error"},
	})
}
