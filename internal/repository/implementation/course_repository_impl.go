package implementation

import (
	"context"
	"errors"
	"time"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/mapper"
	"course-advisor-be/internal/model"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type CourseRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CourseMapper
}

func NewCourseRepository(db *gorm.DB) contract.CourseRepository {
	return &CourseRepositoryImpl{
		db:     db,
		mapper: mapper.NewCourseMapper(),
	}
}

func (r *CourseRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *CourseRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Course, error) {
	var m model.Course
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *CourseRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Course, error) {
	var models []*model.Course
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *CourseRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	err := query.Model(&model.Course{}).Count(&count).Error
	return count, err
}

func (r *CourseRepositoryImpl) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.Course{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding":   pgvector.NewVector(embedding),
			"embedded_at": now,
		}).Error
}

func (r *CourseRepositoryImpl) SearchNearest(ctx context.Context, embedding []float32, limit int) ([]*contract.ScoredCourse, error) {
	if limit <= 0 {
		limit = 15
	}

	type result struct {
		model.Course
		Distance float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	// Cosine distance (<=>) must match the metric the corpus was embedded for.
	err := r.db.WithContext(ctx).
		Table("courses").
		Select("courses.*, (embedding <=> ?) AS distance", queryVector).
		Where("embedding IS NOT NULL").
		Where("deleted_at IS NULL").
		Order("distance ASC").
		Order("code ASC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredCourse, len(results))
	for i := range results {
		scored[i] = &contract.ScoredCourse{
			Course:   r.mapper.ToEntity(&results[i].Course),
			Distance: results[i].Distance,
		}
	}
	return scored, nil
}
