package gateway

import (
	"strings"

	"github.com/zhengjr9/edgechat/internal/api"
)

const (
	minTemperature = 0.0
	maxTemperature = 2.0
)

// ValidateChat rejects a request the runtime should never see.
func ValidateChat(req *api.ChatCompletionRequest) error {
	if req == nil || len(req.Messages) == 0 {
		return errorf("messages must not be empty")
	}
	for i, m := range req.Messages {
		switch m.Role {
		case api.RoleSystem, api.RoleUser, api.RoleAssistant:
		default:
			return errorf("messages[%d]: unrecognized role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return errorf("messages[%d]: content must not be empty", i)
		}
	}
	return validateSampling(req.Temperature, req.MaxTokens)
}

// ValidateCompletion rejects an empty prompt or out-of-range sampling values.
func ValidateCompletion(req *api.CompletionRequest) error {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return errorf("prompt must not be empty")
	}
	return validateSampling(req.Temperature, req.MaxTokens)
}

func validateSampling(temperature *float64, maxTokens int) error {
	if temperature != nil && (*temperature < minTemperature || *temperature > maxTemperature) {
		return errorf("temperature must be between %.1f and %.1f", minTemperature, maxTemperature)
	}
	if maxTokens < 0 {
		return errorf("max_tokens must be positive")
	}
	return nil
}
