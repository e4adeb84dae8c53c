package embedding

import (
	"context"
	"math"
	"strings"
	"time"

	"course-advisor-be/pkg/aihttp"
)

const ollamaMaxInputChars = 8000

// OllamaProvider implements EmbeddingProvider for local Ollama models (e.g., nomic-embed-text)
type OllamaProvider struct {
	BaseURL    string
	Model      string
	Dimensions int
	client     *aihttp.Client
}

func NewOllamaProvider(baseURL string, model string, dimensions int, timeout time.Duration) EmbeddingProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaProvider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		Dimensions: dimensions,
		client:     aihttp.NewClient("ollama-embedding", timeout, nil),
	}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"` // Ollama returns float64
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	input, err := PrepareInput(text, ollamaMaxInputChars)
	if err != nil {
		return nil, err
	}

	// nomic-embed-text expects task prefixes to separate query and document space
	switch taskType {
	case TaskRetrievalQuery:
		input = "search_query: " + input
	case TaskRetrievalDocument:
		input = "search_document: " + input
	}

	var res ollamaEmbeddingResponse
	err = p.client.PostJSON(ctx, p.BaseURL+"/api/embeddings", ollamaEmbeddingRequest{
		Model:  p.Model,
		Prompt: input,
	}, &res)
	if err != nil {
		return nil, err
	}

	values := make([]float32, len(res.Embedding))
	for i, v := range res.Embedding {
		values[i] = float32(v)
	}
	if err := checkDimensions(values, p.Dimensions); err != nil {
		return nil, &aihttp.ProviderError{Provider: p.client.Provider, Err: err}
	}

	// Cosine distance in pgvector expects unit-length vectors
	return &EmbeddingResponse{
		Embedding: EmbeddingResponseEmbedding{Values: normalizeVector(values)},
	}, nil
}

// normalizeVector normalizes a vector to unit length (magnitude = 1)
func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
