// Package corpus is the read side of the course catalog used by the
// recommendation pipeline: nearest-neighbour lookup over course embeddings
// and keyword access for the fallback matcher.
package corpus

import (
	"context"
	"sort"
	"strings"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/repository/contract"

	"github.com/google/uuid"
)

// Metric is the distance used for every vector comparison. It has to match
// the metric the corpus embeddings were produced for, so it is not a knob.
const Metric = "cosine"

// DefaultK balances prompt size against recall.
const DefaultK = 15

type Store interface {
	// NearestNeighbors returns up to k embedded courses in ascending distance,
	// ties broken by code. Fails with advisor.ErrEmptyCorpus when nothing is embedded.
	NearestNeighbors(ctx context.Context, queryVector []float32, k int) ([]*contract.ScoredCourse, error)
	KeywordSearch(ctx context.Context, terms []string) ([]*entity.Course, error)
	AllCourses(ctx context.Context) ([]*entity.Course, error)
}

// SortCandidates orders by distance, then code, so equal scores always come
// back in the same order.
func SortCandidates(candidates []*contract.ScoredCourse) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Course.Code < candidates[j].Course.Code
	})
}

func SortByCode(courses []*entity.Course) {
	sort.SliceStable(courses, func(i, j int) bool {
		return courses[i].Code < courses[j].Code
	})
}

// NormalizeTerms lowercases, trims and de-duplicates search terms.
func NormalizeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// EmbeddingTarget is the write side used by the course embedding job.
type EmbeddingTarget interface {
	FindCourse(ctx context.Context, id uuid.UUID) (*entity.Course, error)
	PendingEmbeddings(ctx context.Context) ([]*entity.Course, error)
	SaveEmbedding(ctx context.Context, id uuid.UUID, vector []float32) error
}
