package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"course-advisor-be/pkg/aihttp"
)

// openAIMaxInputChars keeps requests under the 8191-token input limit.
const openAIMaxInputChars = 24000

// OpenAIProvider implements EmbeddingProvider against any OpenAI-compatible
// /embeddings endpoint (text-embedding-3-small by default, 1536 dimensions).
type OpenAIProvider struct {
	BaseURL    string
	Model      string
	Dimensions int
	client     *aihttp.Client
}

func NewOpenAIProvider(baseURL, apiKey, model string, dimensions int, timeout time.Duration) EmbeddingProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIProvider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		Dimensions: dimensions,
		client: aihttp.NewClient("openai-embedding", timeout, map[string]string{
			"Authorization": bearer(apiKey),
		}),
	}
}

type openAIEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate ignores taskType; OpenAI embeds queries and documents the same way.
func (p *OpenAIProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	input, err := PrepareInput(text, openAIMaxInputChars)
	if err != nil {
		return nil, err
	}

	var res openAIEmbeddingResponse
	err = p.client.PostJSON(ctx, p.BaseURL+"/embeddings", openAIEmbeddingRequest{
		Model:      p.Model,
		Input:      []string{input},
		Dimensions: p.Dimensions,
	}, &res)
	if err != nil {
		return nil, err
	}

	if len(res.Data) == 0 {
		return nil, &aihttp.ProviderError{Provider: p.client.Provider, Err: fmt.Errorf("empty embeddings in response")}
	}
	values := res.Data[0].Embedding
	if err := checkDimensions(values, p.Dimensions); err != nil {
		return nil, &aihttp.ProviderError{Provider: p.client.Provider, Err: err}
	}

	return &EmbeddingResponse{
		Embedding: EmbeddingResponseEmbedding{Values: values},
	}, nil
}

func bearer(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	return "Bearer " + apiKey
}
