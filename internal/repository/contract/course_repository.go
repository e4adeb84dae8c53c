package contract

import (
	"context"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/repository/specification"

	"github.com/google/uuid"
)

// ScoredCourse is a retrieval candidate: a course plus its distance from the
// query vector (smaller is closer).
type ScoredCourse struct {
	Course   *entity.Course
	Distance float64
}

type CourseRepository interface {
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Course, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Course, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	// SearchNearest returns the limit closest embedded courses ordered by
	// cosine distance, ties broken by code.
	SearchNearest(ctx context.Context, embedding []float32, limit int) ([]*ScoredCourse, error)
}
