package a2a

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/zhengjr9/edgechat/internal/api"
)

// ChatCompleter is the gateway call the agent forwards to.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error)
}

// AgentConfig holds the configuration for the gateway-backed A2A agent.
type AgentConfig struct {
	// Name is the agent name exposed via A2A AgentCard.
	Name string
	// Description is exposed via A2A AgentCard.
	Description string
	// Gateway answers each invocation.
	Gateway ChatCompleter
}

// New returns an agent.Agent whose Run sends the caller's text through the
// gateway as a single user turn.
func New(cfg AgentConfig) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("a2a agent: Name must not be empty")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("a2a agent: Gateway must not be nil")
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         runFunc(cfg),
	})
}

// runFunc returns the Run closure that drives one agent invocation. The
// gateway does not stream, so every invocation yields exactly one final event.
func runFunc(cfg AgentConfig) func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			query := extractQuery(ctx.UserContent())
			if query == "" {
				yield(finalEvent(ctx, cfg.Name, "(empty input)"), nil)
				return
			}

			resp, err := cfg.Gateway.ChatCompletion(ctx, &api.ChatCompletionRequest{
				Messages: []api.Message{{Role: api.RoleUser, Content: query}},
			})
			if err != nil {
				slog.Warn("a2a completion failed", "agent", cfg.Name, "error", err)
				yield(nil, fmt.Errorf("gateway completion failed: %w", err))
				return
			}
			yield(finalEvent(ctx, cfg.Name, resp.Message.Content), nil)
		}
	}
}

// finalEvent builds the non-partial event that closes the invocation.
func finalEvent(ctx agent.InvocationContext, author, text string) *session.Event {
	ev := session.NewEvent(ctx.InvocationID())
	ev.Author = author
	ev.Branch = ctx.Branch()
	ev.LLMResponse = model.LLMResponse{
		Content: textContent(text),
		Partial: false,
	}
	return ev
}

// extractQuery pulls the plain-text content from the genai.Content that ADK
// puts in the InvocationContext when the caller sends a message.
func extractQuery(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func textContent(text string) *genai.Content {
	return &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{Text: text}},
	}
}
