// Package orchestrator runs the recommendation pipeline: validate input,
// retrieve candidates, prompt the model, validate its output, and fall back to
// keyword matching whenever any of those steps cannot produce a grounded answer.
package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/pkg/logger"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/pkg/advisor/fallback"
	"course-advisor-be/pkg/advisor/prompt"
	"course-advisor-be/pkg/advisor/session"
	"course-advisor-be/pkg/events"
	"course-advisor-be/pkg/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Stage string

const (
	StageValidating       Stage = "validating"
	StageRetrieving       Stage = "retrieving"
	StagePrompting        Stage = "prompting"
	StageCompleting       Stage = "completing"
	StageValidatingOutput Stage = "validating_output"
	StageFallback         Stage = "fallback"
	StageDone             Stage = "done"
)

const (
	SearchMethodVector   = "semantic_vector_search"
	SearchMethodFallback = "keyword_fallback"

	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"

	ModeRecommend = "recommend"
	ModeChat      = "chat"
)

// CandidateSource retrieves the ordered candidate set for a request.
type CandidateSource interface {
	Retrieve(ctx context.Context, major, interests string) ([]*contract.ScoredCourse, error)
}

type KeywordMatcher interface {
	Match(ctx context.Context, major, interests string, limit int) ([]*entity.Course, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Config struct {
	CompletionTimeout  time.Duration
	RetryBaseDelay     time.Duration
	MaxRecommendations int
	FallbackLimit      int
	Temperature        float64
	MaxTokens          int
}

func DefaultConfig() Config {
	return Config{
		CompletionTimeout:  15 * time.Second,
		RetryBaseDelay:     250 * time.Millisecond,
		MaxRecommendations: prompt.MaxRecommendations,
		FallbackLimit:      fallback.DefaultLimit,
		Temperature:        0.3,
		MaxTokens:          800,
	}
}

type Orchestrator struct {
	retriever CandidateSource
	completer llm.LLMProvider
	matcher   KeywordMatcher
	sessions  *session.Store
	publisher EventPublisher

	cfg         Config
	logger      logger.ILogger
	traceLogger logger.ILogger
	tracer      trace.Tracer

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

type Option func(*Orchestrator)

// WithPublisher emits a recommendation.served event after every answer.
func WithPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithTraceLogger sends full prompts and raw completions to a separate log.
func WithTraceLogger(l logger.ILogger) Option {
	return func(o *Orchestrator) { o.traceLogger = l }
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

func New(
	retriever CandidateSource,
	completer llm.LLMProvider,
	matcher KeywordMatcher,
	sessions *session.Store,
	cfg Config,
	log logger.ILogger,
	opts ...Option,
) *Orchestrator {
	def := DefaultConfig()
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = def.CompletionTimeout
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.MaxRecommendations <= 0 {
		cfg.MaxRecommendations = def.MaxRecommendations
	}
	if cfg.FallbackLimit <= 0 {
		cfg.FallbackLimit = def.FallbackLimit
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	o := &Orchestrator{
		retriever:   retriever,
		completer:   completer,
		matcher:     matcher,
		sessions:    sessions,
		cfg:         cfg,
		logger:      log,
		traceLogger: logger.NewNopLogger(),
		tracer:      otel.Tracer("course-advisor/orchestrator"),
		sleep:       sleepContext,
		jitter:      rand.Float64,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if o.publisher == nil {
		return
	}
	// The request context may already be finishing; publishing is best effort.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := o.publisher.Publish(pctx, ev); err != nil {
		o.logger.Warn("ADVISOR", "Failed to publish event", map[string]interface{}{
			"event": ev.EventType(),
			"error": err.Error(),
		})
	}
}
