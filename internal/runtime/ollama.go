package runtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zhengjr9/edgechat/internal/api"
	apierrors "github.com/zhengjr9/edgechat/internal/errors"
)

// ollamaOptions carries sampling parameters in Ollama's "options" object.
type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaChatRequest is sent to POST /api/chat.
type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []api.Message `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

// ollamaChatResponse is the non-streaming reply of POST /api/chat.
type ollamaChatResponse struct {
	Model     string       `json:"model"`
	CreatedAt string       `json:"created_at"`
	Message   *api.Message `json:"message"`
	Done      bool         `json:"done"`
	// Token counts; absent on some versions and on cached prompts.
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// ollamaGenerateRequest is sent to POST /api/generate.
type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

// ollamaGenerateResponse is the non-streaming reply of POST /api/generate.
type ollamaGenerateResponse struct {
	Model           string  `json:"model"`
	Response        *string `json:"response"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// ollamaTagsResponse is the reply of GET /api/tags.
type ollamaTagsResponse struct {
	Models []ollamaModel `json:"models"`
}

type ollamaModel struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// Ollama talks to an Ollama server.
type Ollama struct {
	httpRuntime
}

// NewOllama returns an Ollama adapter for baseURL, e.g. "http://localhost:11434".
func NewOllama(baseURL string, hc *http.Client) *Ollama {
	return &Ollama{httpRuntime: newHTTPRuntime(baseURL, hc)}
}

func (o *Ollama) Chat(ctx context.Context, req *ChatRequest) (*Result, error) {
	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}
	var resp ollamaChatResponse
	if err := o.do(ctx, http.MethodPost, "/api/chat", body, &resp); err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if resp.Message == nil {
		return nil, fmt.Errorf("ollama chat: %w: reply has no message", apierrors.ErrUpstreamMalformed)
	}
	return &Result{
		Model:            firstNonEmpty(resp.Model, req.Model),
		Content:          resp.Message.Content,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}, nil
}

func (o *Ollama) Generate(ctx context.Context, req *GenerateRequest) (*Result, error) {
	body := ollamaGenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}
	var resp ollamaGenerateResponse
	if err := o.do(ctx, http.MethodPost, "/api/generate", body, &resp); err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}
	if resp.Response == nil {
		return nil, fmt.Errorf("ollama generate: %w: reply has no response field", apierrors.ErrUpstreamMalformed)
	}
	return &Result{
		Model:            firstNonEmpty(resp.Model, req.Model),
		Content:          *resp.Response,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}, nil
}

func (o *Ollama) Models(ctx context.Context) ([]string, error) {
	var resp ollamaTagsResponse
	if err := o.do(ctx, http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (o *Ollama) Ping(ctx context.Context) error {
	if err := o.do(ctx, http.MethodGet, "/api/tags", nil, nil); err != nil {
		return fmt.Errorf("ollama ping: %w", err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
