package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/pkg/advisor"

	"github.com/google/uuid"
)

// MemoryStore keeps a catalog snapshot in process. It backs development
// setups without Postgres (CORPUS_BACKEND=memory) and the pipeline tests.
type MemoryStore struct {
	mu      sync.RWMutex
	courses []*entity.Course
}

func NewMemoryStore(courses []*entity.Course) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(courses)
	return s
}

// Replace swaps in a new snapshot, kept sorted by code.
func (s *MemoryStore) Replace(courses []*entity.Course) {
	cp := make([]*entity.Course, len(courses))
	copy(cp, courses)
	SortByCode(cp)

	s.mu.Lock()
	s.courses = cp
	s.mu.Unlock()
}

func (s *MemoryStore) NearestNeighbors(ctx context.Context, queryVector []float32, k int) ([]*contract.ScoredCourse, error) {
	if k <= 0 {
		k = DefaultK
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]*contract.ScoredCourse, 0, len(s.courses))
	for _, c := range s.courses {
		if !c.HasEmbedding() {
			continue
		}
		d, err := cosineDistance(queryVector, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", c.Code, err)
		}
		candidates = append(candidates, &contract.ScoredCourse{Course: c, Distance: d})
	}
	if len(candidates) == 0 {
		return nil, advisor.ErrEmptyCorpus
	}

	SortCandidates(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (s *MemoryStore) KeywordSearch(ctx context.Context, terms []string) ([]*entity.Course, error) {
	terms = NormalizeTerms(terms)
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*entity.Course, 0)
	if len(terms) == 0 {
		return matches, nil
	}
	for _, c := range s.courses {
		haystack := strings.ToLower(c.Code + " " + c.Title + " " + c.Description)
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				matches = append(matches, c)
				break
			}
		}
	}
	return matches, nil
}

func (s *MemoryStore) AllCourses(ctx context.Context) ([]*entity.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.Course, len(s.courses))
	copy(out, s.courses)
	return out, nil
}

func cosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

type seedCourse struct {
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// LoadSeedFile reads a JSON array of {code,title,description,embedding?}.
func LoadSeedFile(path string) ([]*entity.Course, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus seed: %w", err)
	}
	var seeds []seedCourse
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("decode corpus seed: %w", err)
	}

	courses := make([]*entity.Course, 0, len(seeds))
	for _, s := range seeds {
		if strings.TrimSpace(s.Code) == "" {
			continue
		}
		courses = append(courses, &entity.Course{
			Id:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.Code)),
			Code:        strings.TrimSpace(s.Code),
			Title:       s.Title,
			Description: s.Description,
			Embedding:   s.Embedding,
		})
	}
	return courses, nil
}

func (s *MemoryStore) FindCourse(ctx context.Context, id uuid.UUID) (*entity.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.courses {
		if c.Id == id {
			return c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) PendingEmbeddings(ctx context.Context) ([]*entity.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := make([]*entity.Course, 0)
	for _, c := range s.courses {
		if !c.HasEmbedding() {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// SaveEmbedding replaces the course record rather than mutating it, since
// readers may hold the old pointer.
func (s *MemoryStore) SaveEmbedding(ctx context.Context, id uuid.UUID, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.courses {
		if c.Id == id {
			updated := *c
			updated.Embedding = append([]float32(nil), vector...)
			now := time.Now()
			updated.EmbeddedAt = &now
			s.courses[i] = &updated
			return nil
		}
	}
	return fmt.Errorf("course %s not found", id)
}
