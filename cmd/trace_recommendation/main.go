// Command trace_recommendation runs one request through the live pipeline and
// prints the candidates, the exact prompt and the final answer.
//
//	go run ./cmd/trace_recommendation -major "Computer Science" -interests "machine learning"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"course-advisor-be/internal/config"
	"course-advisor-be/internal/pkg/logger"
	"course-advisor-be/internal/repository/memory"
	"course-advisor-be/internal/repository/unitofwork"
	"course-advisor-be/pkg/advisor/corpus"
	"course-advisor-be/pkg/advisor/fallback"
	"course-advisor-be/pkg/advisor/orchestrator"
	"course-advisor-be/pkg/advisor/prompt"
	"course-advisor-be/pkg/advisor/retrieval"
	"course-advisor-be/pkg/advisor/session"
	"course-advisor-be/pkg/database"
	"course-advisor-be/pkg/embedding"
	"course-advisor-be/pkg/llm/factory"

	"github.com/fatih/color"
)

func prettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}

func fail(format string, args ...interface{}) {
	color.Red(format, args...)
	os.Exit(1)
}

func main() {
	major := flag.String("major", "Computer Science", "student major")
	interests := flag.String("interests", "machine learning and data visualization", "free-text interests")
	seed := flag.String("seed", "", "JSON corpus seed file; empty uses the database")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()
	quiet := logger.NewNopLogger()

	var store corpus.Store
	if *seed != "" {
		courses, err := corpus.LoadSeedFile(*seed)
		if err != nil {
			fail("Failed to load seed: %v", err)
		}
		store = corpus.NewMemoryStore(courses)
	} else {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, true)
		if err != nil {
			fail("Failed to connect to DB: %v", err)
		}
		store = corpus.NewRepositoryStore(unitofwork.NewRepositoryFactory(db))
	}

	embedder, err := embedding.NewProvider(embedding.Config{
		Provider:   cfg.Ai.EmbeddingProvider,
		BaseURL:    cfg.Ai.EmbeddingBaseURL,
		APIKey:     cfg.Keys.OpenAI,
		Model:      cfg.Ai.EmbeddingModel,
		Dimensions: cfg.Ai.EmbeddingDimensions,
		Timeout:    cfg.Ai.EmbeddingTimeout,
	})
	if err != nil {
		fail("Embedding provider: %v", err)
	}
	completer, err := factory.NewLLMProvider(factory.Config{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.Ai.LLMBaseURL,
		APIKey:   cfg.Keys.OpenAI,
		Timeout:  cfg.Ai.CompletionTimeout,
	})
	if err != nil {
		fail("LLM provider: %v", err)
	}

	color.Cyan("Tracing recommendation for %q / %q", *major, *interests)
	color.Cyan("Embedding: %s   LLM: %s\n", embedder.Name(), completer.Name())

	// 1. Retrieval
	color.Yellow("\n[1] Candidates (query %q)", retrieval.Query(*major, *interests))
	retriever := retrieval.NewRetriever(embedder, store, cfg.Advisor.TopK, cfg.Ai.EmbeddingTimeout, quiet)
	start := time.Now()
	candidates, err := retriever.Retrieve(ctx, *major, *interests)
	if err != nil {
		color.Red("Retrieval failed after %s: %v", time.Since(start), err)
	} else {
		for i, c := range candidates {
			fmt.Printf("%2d. %-10s %.4f  %s\n", i+1, c.Course.Code, c.Distance, c.Course.Title)
		}
		color.Green("%d candidates in %s", len(candidates), time.Since(start))

		// 2. Prompt
		p := prompt.BuildRecommendation(prompt.RecommendationInput{
			Major:      *major,
			Interests:  *interests,
			Candidates: candidates,
		})
		color.Yellow("\n[2] System prompt (%d chars)", len(p.System))
		fmt.Println(p.System)
		color.Yellow("[2] User prompt (%d chars)", len(p.User))
		fmt.Println(p.User)
	}

	// 3. Full pipeline
	color.Yellow("\n[3] Orchestrated result")
	sessions := session.NewStore(memory.NewSessionRepository(time.Minute, 10), session.DefaultMaxHistoryTurns, quiet)
	orch := orchestrator.New(retriever, completer, fallback.NewMatcher(store), sessions, orchestrator.Config{
		CompletionTimeout: cfg.Ai.CompletionTimeout,
		Temperature:       cfg.Ai.LLMTemperature,
		MaxTokens:         cfg.Ai.LLMMaxTokens,
	}, quiet)

	start = time.Now()
	res, err := orch.Recommend(ctx, orchestrator.RecommendRequest{Major: *major, Interests: *interests})
	if err != nil {
		fail("Recommend failed: %v", err)
	}
	if res.SearchMethod == orchestrator.SearchMethodFallback {
		color.Red("Answered by keyword fallback")
	} else {
		color.Green("Answered by %s search", res.SearchMethod)
	}
	prettyPrint(res)
	color.Cyan("Done in %s", time.Since(start))
}
