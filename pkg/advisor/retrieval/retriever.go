package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"course-advisor-be/internal/pkg/logger"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/pkg/advisor"
	"course-advisor-be/pkg/advisor/corpus"
	"course-advisor-be/pkg/embedding"
)

// Retriever turns a student's major and interests into an ordered candidate
// set: one embedding call followed by a nearest-neighbour lookup.
type Retriever struct {
	embedder     embedding.EmbeddingProvider
	store        corpus.Store
	k            int
	embedTimeout time.Duration
	logger       logger.ILogger
}

func NewRetriever(embedder embedding.EmbeddingProvider, store corpus.Store, k int, embedTimeout time.Duration, log logger.ILogger) *Retriever {
	if k <= 0 {
		k = corpus.DefaultK
	}
	return &Retriever{
		embedder:     embedder,
		store:        store,
		k:            k,
		embedTimeout: embedTimeout,
		logger:       log,
	}
}

// Query builds the text that is embedded for a request.
func Query(major, interests string) string {
	major = strings.TrimSpace(major)
	interests = strings.TrimSpace(interests)
	if major == "" {
		return interests
	}
	return fmt.Sprintf("%s: %s", major, interests)
}

// Retrieve returns up to k candidates. Embedding and store failures come back
// as *advisor.RetrievalError; an unembedded corpus as advisor.ErrEmptyCorpus.
func (r *Retriever) Retrieve(ctx context.Context, major, interests string) ([]*contract.ScoredCourse, error) {
	query := Query(major, interests)

	embedCtx := ctx
	if r.embedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, r.embedTimeout)
		defer cancel()
	}

	res, err := r.embedder.Generate(embedCtx, query, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, &advisor.RetrievalError{Stage: "embed", Err: err}
	}

	candidates, err := r.store.NearestNeighbors(ctx, res.Embedding.Values, r.k)
	if err != nil {
		if errors.Is(err, advisor.ErrEmptyCorpus) {
			return nil, err
		}
		return nil, &advisor.RetrievalError{Stage: "search", Err: err}
	}

	r.logger.Debug("RETRIEVAL", "Candidates retrieved", map[string]interface{}{
		"query":      query,
		"candidates": len(candidates),
		"metric":     corpus.Metric,
	})
	return candidates, nil
}
