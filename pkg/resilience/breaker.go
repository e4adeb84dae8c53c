// Package resilience wraps provider clients with circuit breakers so that a
// failing upstream is skipped quickly and the pipeline falls back.
package resilience

import (
	"context"
	"errors"
	"time"

	"course-advisor-be/internal/pkg/logger"
	"course-advisor-be/pkg/advisor/metrics"
	"course-advisor-be/pkg/aihttp"
	"course-advisor-be/pkg/embedding"
	"course-advisor-be/pkg/llm"

	gobreaker "github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	MaxRequests  uint32        // trial requests allowed while half-open
	Interval     time.Duration // closed-state count reset window
	OpenTimeout  time.Duration // how long to stay open before probing
	MinRequests  uint32
	FailureRatio float64
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  2,
		Interval:     time.Minute,
		OpenTimeout:  30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

func newBreaker(name string, cfg BreakerConfig, log logger.ILogger) *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// Empty input and caller cancellation say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, embedding.ErrEmptyInput) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			log.Warn("BREAKER", "Circuit breaker state transition", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})
}

// rejected turns the breaker's own refusals into non-transient provider
// errors so callers go straight to the fallback path.
func rejected(provider string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &aihttp.ProviderError{Provider: provider, Err: err}
	}
	return err
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// EmbeddingBreaker decorates an EmbeddingProvider.
type EmbeddingBreaker struct {
	next embedding.EmbeddingProvider
	cb   *gobreaker.CircuitBreaker[any]
}

func NewEmbeddingBreaker(next embedding.EmbeddingProvider, cfg BreakerConfig, log logger.ILogger) *EmbeddingBreaker {
	return &EmbeddingBreaker{
		next: next,
		cb:   newBreaker("embedding-"+next.Name(), cfg, log),
	}
}

func (b *EmbeddingBreaker) Name() string {
	return b.next.Name()
}

func (b *EmbeddingBreaker) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Generate(ctx, text, taskType)
	})
	if err != nil {
		return nil, rejected(b.cb.Name(), err)
	}
	return res.(*embedding.EmbeddingResponse), nil
}

// LLMBreaker decorates an LLMProvider.
type LLMBreaker struct {
	next llm.LLMProvider
	cb   *gobreaker.CircuitBreaker[any]
}

func NewLLMBreaker(next llm.LLMProvider, cfg BreakerConfig, log logger.ILogger) *LLMBreaker {
	return &LLMBreaker{
		next: next,
		cb:   newBreaker("llm-"+next.Name(), cfg, log),
	}
}

func (b *LLMBreaker) Name() string {
	return b.next.Name()
}

func (b *LLMBreaker) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Chat(ctx, history, options...)
	})
	if err != nil {
		return "", rejected(b.cb.Name(), err)
	}
	return res.(string), nil
}

func (b *LLMBreaker) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return b.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}
