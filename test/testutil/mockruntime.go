package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// MockRuntime is an httptest.Server that simulates a local model runtime. It
// answers both the Ollama native routes (/api/chat, /api/generate, /api/tags)
// and the OpenAI-compatible routes (/v1/chat/completions, /v1/completions,
// /v1/models).
type MockRuntime struct {
	Server *httptest.Server

	// Configurable response fields
	Answer           string
	Models           []string
	PromptTokens     int
	CompletionTokens int
	// StatusCode, when non-zero, is returned instead of a normal reply.
	StatusCode int
	// RawBody, when non-empty, replaces the JSON reply for generation routes.
	RawBody string
	// Delay is slept before answering.
	Delay time.Duration

	calls atomic.Int64

	mu          sync.Mutex
	lastPath    string
	lastRequest map[string]any
}

// NewMockRuntime creates and starts a mock runtime that answers every
// generation with answer.
func NewMockRuntime(answer string) *MockRuntime {
	m := &MockRuntime{
		Answer:           answer,
		Models:           []string{"llama2:latest"},
		PromptTokens:     7,
		CompletionTokens: 3,
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockRuntime) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockRuntime) URL() string {
	return m.Server.URL
}

// Calls returns how many requests the mock has received.
func (m *MockRuntime) Calls() int {
	return int(m.calls.Load())
}

// LastRequest returns the path and parsed body of the most recent request.
func (m *MockRuntime) LastRequest() (string, map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPath, m.lastRequest
}

func (m *MockRuntime) handle(w http.ResponseWriter, r *http.Request) {
	m.calls.Add(1)

	var body map[string]any
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
	}
	m.mu.Lock()
	m.lastPath = r.URL.Path
	m.lastRequest = body
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-r.Context().Done():
			return
		}
	}
	if m.StatusCode != 0 {
		http.Error(w, `{"error":"mock failure"}`, m.StatusCode)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/tags":
		m.writeOllamaTags(w)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/models":
		m.writeOpenAIModels(w)
	case r.Method == http.MethodPost && r.URL.Path == "/api/chat":
		m.writeGeneration(w, map[string]any{
			"model":             body["model"],
			"created_at":        time.Now().UTC().Format(time.RFC3339),
			"message":           map[string]any{"role": "assistant", "content": m.Answer},
			"done":              true,
			"prompt_eval_count": m.PromptTokens,
			"eval_count":        m.CompletionTokens,
		})
	case r.Method == http.MethodPost && r.URL.Path == "/api/generate":
		m.writeGeneration(w, map[string]any{
			"model":             body["model"],
			"response":          m.Answer,
			"done":              true,
			"prompt_eval_count": m.PromptTokens,
			"eval_count":        m.CompletionTokens,
		})
	case r.Method == http.MethodPost && r.URL.Path == "/v1/chat/completions":
		m.writeGeneration(w, map[string]any{
			"id":      "cmpl-mock",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   body["model"],
			"choices": []any{map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": m.Answer},
				"finish_reason": "stop",
			}},
			"usage": m.usage(),
		})
	case r.Method == http.MethodPost && r.URL.Path == "/v1/completions":
		m.writeGeneration(w, map[string]any{
			"id":      "cmpl-mock",
			"model":   body["model"],
			"choices": []any{map[string]any{"index": 0, "text": m.Answer}},
			"usage":   m.usage(),
		})
	default:
		http.NotFound(w, r)
	}
}

func (m *MockRuntime) usage() map[string]any {
	return map[string]any{
		"prompt_tokens":     m.PromptTokens,
		"completion_tokens": m.CompletionTokens,
		"total_tokens":      m.PromptTokens + m.CompletionTokens,
	}
}

func (m *MockRuntime) writeGeneration(w http.ResponseWriter, resp map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	if m.RawBody != "" {
		_, _ = w.Write([]byte(m.RawBody))
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *MockRuntime) writeOllamaTags(w http.ResponseWriter) {
	models := make([]map[string]any, 0, len(m.Models))
	for _, name := range m.Models {
		models = append(models, map[string]any{"name": name, "size": 3825819519, "digest": "sha256:mock"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
}

func (m *MockRuntime) writeOpenAIModels(w http.ResponseWriter) {
	data := make([]map[string]any, 0, len(m.Models))
	for _, id := range m.Models {
		data = append(data, map[string]any{"id": id, "object": "model", "owned_by": "local"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
}
