package runtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zhengjr9/edgechat/internal/api"
	apierrors "github.com/zhengjr9/edgechat/internal/errors"
)

// openAIChatRequest is sent to POST /v1/chat/completions.
type openAIChatRequest struct {
	Model       string        `json:"model"`
	Messages    []api.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// openAIChatResponse is the blocking reply of an OpenAI-compatible server.
type openAIChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int          `json:"index"`
		Message      *api.Message `json:"message"`
		FinishReason string       `json:"finish_reason"`
	} `json:"choices"`
	Usage *api.Usage `json:"usage"`
}

// openAICompletionRequest is sent to POST /v1/completions.
type openAICompletionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Stream      bool    `json:"stream"`
}

type openAICompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int     `json:"index"`
		Text  *string `json:"text"`
	} `json:"choices"`
	Usage *api.Usage `json:"usage"`
}

// openAIModelsResponse is the reply of GET /v1/models.
type openAIModelsResponse struct {
	Object string `json:"object"`
	Data   []struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

// OpenAI talks to any server implementing the OpenAI REST shape
// (llama.cpp server, vLLM, LM Studio, LocalAI).
type OpenAI struct {
	httpRuntime
}

// NewOpenAI returns an adapter for baseURL, e.g. "http://localhost:8080".
func NewOpenAI(baseURL string, hc *http.Client) *OpenAI {
	return &OpenAI{httpRuntime: newHTTPRuntime(baseURL, hc)}
}

func (o *OpenAI) Chat(ctx context.Context, req *ChatRequest) (*Result, error) {
	body := openAIChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	var resp openAIChatResponse
	if err := o.do(ctx, http.MethodPost, "/v1/chat/completions", body, &resp); err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, fmt.Errorf("openai chat: %w: reply has no choices", apierrors.ErrUpstreamMalformed)
	}
	res := &Result{
		Model:   firstNonEmpty(resp.Model, req.Model),
		Content: resp.Choices[0].Message.Content,
	}
	if resp.Usage != nil {
		res.PromptTokens = resp.Usage.PromptTokens
		res.CompletionTokens = resp.Usage.CompletionTokens
	}
	return res, nil
}

func (o *OpenAI) Generate(ctx context.Context, req *GenerateRequest) (*Result, error) {
	body := openAICompletionRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	var resp openAICompletionResponse
	if err := o.do(ctx, http.MethodPost, "/v1/completions", body, &resp); err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Text == nil {
		return nil, fmt.Errorf("openai completion: %w: reply has no choices", apierrors.ErrUpstreamMalformed)
	}
	res := &Result{
		Model:   firstNonEmpty(resp.Model, req.Model),
		Content: *resp.Choices[0].Text,
	}
	if resp.Usage != nil {
		res.PromptTokens = resp.Usage.PromptTokens
		res.CompletionTokens = resp.Usage.CompletionTokens
	}
	return res, nil
}

func (o *OpenAI) Models(ctx context.Context) ([]string, error) {
	var resp openAIModelsResponse
	if err := o.do(ctx, http.MethodGet, "/v1/models", nil, &resp); err != nil {
		return nil, fmt.Errorf("openai models: %w", err)
	}
	ids := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (o *OpenAI) Ping(ctx context.Context) error {
	if err := o.do(ctx, http.MethodGet, "/v1/models", nil, nil); err != nil {
		return fmt.Errorf("openai ping: %w", err)
	}
	return nil
}
