package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Advisor  AdvisorConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	TraceLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string // empty disables events
	RedisURL           string
	JwtSecret          string // empty disables bearer verification
	OtelEnabled        bool
	OtelEndpoint       string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	OpenAI           string
	EmbedCourseTopic string
}

type AIConfig struct {
	EmbeddingProvider   string // "openai" or "ollama"
	EmbeddingBaseURL    string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingTimeout    time.Duration

	LLMProvider       string // "openai" or "ollama"
	LLMBaseURL        string
	LLMModel          string
	LLMTemperature    float64
	LLMMaxTokens      int
	CompletionTimeout time.Duration

	BreakerOpenTimeout time.Duration
	BreakerMinRequests int
}

type AdvisorConfig struct {
	CorpusBackend     string // "postgres" or "memory"
	SeedFile          string
	TopK              int
	SessionBackend    string // "memory" or "redis"
	SessionTTL        time.Duration
	SessionMaxEntries int
	MaxHistoryTurns   int
	RetryBaseDelay    time.Duration
	BackfillOnStart   bool
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			TraceLogFilePath:   getEnv("TRACE_LOG_FILE_PATH", "logs/llm_pipeline.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			OpenAI:           getEnv("OPENAI_API_KEY", ""),
			EmbedCourseTopic: getEnv("EMBED_COURSE_TOPIC_NAME", "EMBED_COURSE"),
		},
		Ai: AIConfig{
			EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "openai"),
			EmbeddingBaseURL:    getEnv("EMBEDDING_BASE_URL", ""),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", ""),
			EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1536),
			EmbeddingTimeout:    getEnvAsDuration("EMBEDDING_TIMEOUT", 15*time.Second),

			LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
			LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
			LLMModel:          getEnv("LLM_MODEL", ""),
			LLMTemperature:    getEnvAsFloat("LLM_TEMPERATURE", 0.3),
			LLMMaxTokens:      getEnvAsInt("LLM_MAX_TOKENS", 800),
			CompletionTimeout: getEnvAsDuration("COMPLETION_TIMEOUT", 15*time.Second),

			BreakerOpenTimeout: getEnvAsDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
			BreakerMinRequests: getEnvAsInt("BREAKER_MIN_REQUESTS", 5),
		},
		Advisor: AdvisorConfig{
			CorpusBackend:     getEnv("CORPUS_BACKEND", "postgres"),
			SeedFile:          getEnv("CORPUS_SEED_FILE", ""),
			TopK:              getEnvAsInt("RETRIEVAL_TOP_K", 15),
			SessionBackend:    getEnv("SESSION_BACKEND", "memory"),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", 45*time.Minute),
			SessionMaxEntries: getEnvAsInt("SESSION_MAX_ENTRIES", 10000),
			MaxHistoryTurns:   getEnvAsInt("SESSION_HISTORY_TURNS", 10),
			RetryBaseDelay:    getEnvAsDuration("PROVIDER_RETRY_BASE_DELAY", 250*time.Millisecond),
			BackfillOnStart:   getEnvAsBool("EMBEDDING_BACKFILL_ON_START", true),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("15s", "45m").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil && value > 0 {
		return value
	}
	return fallback
}
