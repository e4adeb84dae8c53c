package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"course-advisor-be/pkg/aihttp"
	"course-advisor-be/pkg/llm"
)

// Provider talks to any OpenAI-compatible /chat/completions endpoint
// (OpenAI, HuggingFace router, vLLM, LiteLLM).
type Provider struct {
	baseURL string
	model   string
	client  *aihttp.Client
}

var _ llm.LLMProvider = &Provider{}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewProvider(apiKey, baseURL, model string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  aihttp.NewClient("openai-chat", timeout, headers),
	}
}

func (p *Provider) Name() string {
	return "openai"
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	opts := llm.ApplyOptions(llm.Options{
		Model:       p.model,
		MaxTokens:   800,
		Temperature: 0.3,
	}, options...)

	reqBody := chatRequest{
		Model:       opts.Model,
		Messages:    history,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	var chatResp chatResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/chat/completions", reqBody, &chatResp); err != nil {
		return "", err
	}

	if chatResp.Error != nil {
		return "", &aihttp.ProviderError{Provider: p.client.Provider, Err: fmt.Errorf("api returned error: %s", chatResp.Error.Message)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &aihttp.ProviderError{Provider: p.client.Provider, Err: fmt.Errorf("empty choices in response")}
	}

	return chatResp.Choices[0].Message.Content, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}
