package corpus

import (
	"context"
	"fmt"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/internal/repository/specification"
	"course-advisor-be/internal/repository/unitofwork"
	"course-advisor-be/pkg/advisor"

	"github.com/google/uuid"
)

// RepositoryStore serves the corpus from Postgres through the unit of work.
type RepositoryStore struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewRepositoryStore(uowFactory unitofwork.RepositoryFactory) *RepositoryStore {
	return &RepositoryStore{uowFactory: uowFactory}
}

func (s *RepositoryStore) NearestNeighbors(ctx context.Context, queryVector []float32, k int) ([]*contract.ScoredCourse, error) {
	if k <= 0 {
		k = DefaultK
	}
	repo := s.uowFactory.NewUnitOfWork(ctx).CourseRepository()

	embedded, err := repo.Count(ctx, specification.HasEmbedding{})
	if err != nil {
		return nil, fmt.Errorf("count embedded courses: %w", err)
	}
	if embedded == 0 {
		return nil, advisor.ErrEmptyCorpus
	}

	candidates, err := repo.SearchNearest(ctx, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbour search: %w", err)
	}
	SortCandidates(candidates)
	return candidates, nil
}

func (s *RepositoryStore) KeywordSearch(ctx context.Context, terms []string) ([]*entity.Course, error) {
	terms = NormalizeTerms(terms)
	if len(terms) == 0 {
		return []*entity.Course{}, nil
	}
	repo := s.uowFactory.NewUnitOfWork(ctx).CourseRepository()
	return repo.FindAll(ctx,
		specification.CourseKeywordMatch{Terms: terms},
		specification.OrderBy{Field: "code"},
	)
}

func (s *RepositoryStore) AllCourses(ctx context.Context) ([]*entity.Course, error) {
	repo := s.uowFactory.NewUnitOfWork(ctx).CourseRepository()
	return repo.FindAll(ctx, specification.OrderBy{Field: "code"})
}

func (s *RepositoryStore) FindCourse(ctx context.Context, id uuid.UUID) (*entity.Course, error) {
	repo := s.uowFactory.NewUnitOfWork(ctx).CourseRepository()
	return repo.FindOne(ctx, specification.ByID{ID: id})
}

func (s *RepositoryStore) PendingEmbeddings(ctx context.Context) ([]*entity.Course, error) {
	repo := s.uowFactory.NewUnitOfWork(ctx).CourseRepository()
	return repo.FindAll(ctx, specification.MissingEmbedding{}, specification.OrderBy{Field: "code"})
}

func (s *RepositoryStore) SaveEmbedding(ctx context.Context, id uuid.UUID, vector []float32) error {
	repo := s.uowFactory.NewUnitOfWork(ctx).CourseRepository()
	return repo.UpdateEmbedding(ctx, id, vector)
}
