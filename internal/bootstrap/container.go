package bootstrap

import (
	"context"
	"fmt"

	"course-advisor-be/internal/config"
	"course-advisor-be/internal/controller"
	"course-advisor-be/internal/pkg/logger"
	sessioncache "course-advisor-be/internal/repository/cache"
	"course-advisor-be/internal/repository/memory"
	"course-advisor-be/internal/repository/unitofwork"
	"course-advisor-be/internal/service"
	"course-advisor-be/pkg/advisor/corpus"
	"course-advisor-be/pkg/advisor/fallback"
	"course-advisor-be/pkg/advisor/orchestrator"
	"course-advisor-be/pkg/advisor/retrieval"
	"course-advisor-be/pkg/advisor/session"
	"course-advisor-be/pkg/embedding"
	"course-advisor-be/pkg/events"
	"course-advisor-be/pkg/llm/factory"
	pktNats "course-advisor-be/pkg/nats"
	"course-advisor-be/pkg/resilience"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	AdvisorController controller.IAdvisorController

	// Background services, started by main.
	EmbeddingJobService service.IEmbeddingJobService
	NatsSubscriber      *pktNats.Subscriber

	Logger logger.ILogger

	closers []func()
}

// NewContainer builds every provider client once and injects it downward.
// db may be nil when the corpus backend is "memory".
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	traceLogger := logger.NewIsolatedLogger(cfg.App.TraceLogFilePath)
	c := &Container{Logger: sysLogger}

	// 1. Course corpus
	var (
		store  corpus.Store
		target corpus.EmbeddingTarget
	)
	switch cfg.Advisor.CorpusBackend {
	case "memory":
		courses, err := corpus.LoadSeedFile(cfg.Advisor.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("load corpus seed: %w", err)
		}
		ms := corpus.NewMemoryStore(courses)
		store, target = ms, ms
		sysLogger.Info("RETRIEVAL", "Using in-memory corpus", map[string]interface{}{
			"courses": len(courses),
			"seed":    cfg.Advisor.SeedFile,
		})
	default:
		if db == nil {
			return nil, fmt.Errorf("corpus backend %q needs a database connection", cfg.Advisor.CorpusBackend)
		}
		rs := corpus.NewRepositoryStore(unitofwork.NewRepositoryFactory(db))
		store, target = rs, rs
	}

	// 2. Providers, each behind a circuit breaker
	breakerCfg := resilience.DefaultBreakerConfig()
	breakerCfg.OpenTimeout = cfg.Ai.BreakerOpenTimeout
	breakerCfg.MinRequests = uint32(cfg.Ai.BreakerMinRequests)

	embeddingAPIKey := ""
	if cfg.Ai.EmbeddingProvider != "ollama" {
		embeddingAPIKey = cfg.Keys.OpenAI
	}
	embedder, err := embedding.NewProvider(embedding.Config{
		Provider:   cfg.Ai.EmbeddingProvider,
		BaseURL:    cfg.Ai.EmbeddingBaseURL,
		APIKey:     embeddingAPIKey,
		Model:      cfg.Ai.EmbeddingModel,
		Dimensions: cfg.Ai.EmbeddingDimensions,
		Timeout:    cfg.Ai.EmbeddingTimeout,
	})
	if err != nil {
		return nil, err
	}
	embedder = resilience.NewEmbeddingBreaker(embedder, breakerCfg, sysLogger)

	completer, err := factory.NewLLMProvider(factory.Config{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.Ai.LLMBaseURL,
		APIKey:   cfg.Keys.OpenAI,
		Timeout:  cfg.Ai.CompletionTimeout,
	})
	if err != nil {
		return nil, err
	}
	completer = resilience.NewLLMBreaker(completer, breakerCfg, sysLogger)

	sysLogger.Info("ADVISOR", "Providers configured", map[string]interface{}{
		"embedding": embedder.Name(),
		"llm":       completer.Name(),
	})

	// 3. Sessions
	var sessionRepo session.Repository
	switch cfg.Advisor.SessionBackend {
	case "redis":
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			sysLogger.Warn("SESSION", "Redis not reachable yet", map[string]interface{}{"error": err.Error()})
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		sessionRepo = sessioncache.NewRedisSessionRepository(rdb, cfg.Advisor.SessionTTL)
	default:
		sessionRepo = memory.NewSessionRepository(cfg.Advisor.SessionTTL, cfg.Advisor.SessionMaxEntries)
	}
	sessions := session.NewStore(sessionRepo, cfg.Advisor.MaxHistoryTurns, sysLogger)

	// 4. Events (optional)
	opts := []orchestrator.Option{orchestrator.WithTraceLogger(traceLogger)}
	if cfg.App.NatsURL != "" {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("NATS", "Publisher unavailable, events disabled", map[string]interface{}{"error": err.Error()})
		} else {
			opts = append(opts, orchestrator.WithPublisher(pub))
			c.closers = append(c.closers, pub.Close)
		}

		sub, err := pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("NATS", "Subscriber unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			c.NatsSubscriber = sub
			c.closers = append(c.closers, sub.Close)
		}
	}

	// 5. Pipeline
	retriever := retrieval.NewRetriever(embedder, store, cfg.Advisor.TopK, cfg.Ai.EmbeddingTimeout, sysLogger)
	orch := orchestrator.New(
		retriever,
		completer,
		fallback.NewMatcher(store),
		sessions,
		orchestrator.Config{
			CompletionTimeout: cfg.Ai.CompletionTimeout,
			RetryBaseDelay:    cfg.Advisor.RetryBaseDelay,
			Temperature:       cfg.Ai.LLMTemperature,
			MaxTokens:         cfg.Ai.LLMMaxTokens,
		},
		sysLogger,
		opts...,
	)

	// 6. Embedding job queue
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })
	c.EmbeddingJobService = service.NewEmbeddingJobService(
		pubSub,
		pubSub,
		cfg.Keys.EmbedCourseTopic,
		target,
		embedder,
		sysLogger,
	)

	// 7. Controllers
	c.AdvisorController = controller.NewAdvisorController(
		service.NewAdvisorService(orch, sessions),
		sysLogger,
	)
	return c, nil
}

// StartBackground runs the embedding consumer, subscribes to course updates
// and queues the backfill. It returns once everything is started.
func (c *Container) StartBackground(ctx context.Context, backfill bool) error {
	if err := c.EmbeddingJobService.Consume(ctx); err != nil {
		return fmt.Errorf("start embedding consumer: %w", err)
	}

	if c.NatsSubscriber != nil {
		if err := c.NatsSubscriber.Subscribe(ctx, events.TypeCourseUpdated, "advisor-course-embedder", c.EmbeddingJobService.HandleCourseUpdated); err != nil {
			c.Logger.Warn("NATS", "Course update subscription failed", map[string]interface{}{"error": err.Error()})
		}
	}

	if backfill {
		if _, err := c.EmbeddingJobService.EnqueueMissing(ctx); err != nil {
			c.Logger.Warn("EMBED_JOB", "Backfill failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
