// Package api holds the JSON wire contract shared by the gateway and its clients.
package api

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
// Nil Temperature and zero MaxTokens select the gateway defaults.
type ChatCompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse is the stable envelope returned for a chat completion.
type ChatCompletionResponse struct {
	ID      string  `json:"id"`
	Model   string  `json:"model"`
	Created int64   `json:"created"`
	Message Message `json:"message"`
	Usage   Usage   `json:"usage"`
}

// CompletionRequest is the body of POST /v1/completions.
type CompletionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// CompletionResponse is the envelope returned for a text completion.
type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Text    string `json:"text"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Reachable       bool   `json:"reachable"`
	Model           string `json:"model"`
	BackendEndpoint string `json:"backend_endpoint"`
}

// ServiceInfo is the body of GET /.
type ServiceInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Float64 returns a pointer to v, for filling optional request fields.
func Float64(v float64) *float64 { return &v }
