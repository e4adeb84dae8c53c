package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"course-advisor-be/internal/dto"
	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/pkg/logger"
	"course-advisor-be/pkg/advisor/corpus"
	"course-advisor-be/pkg/advisor/metrics"
	"course-advisor-be/pkg/embedding"
	"course-advisor-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

type IEmbeddingJobService interface {
	// Consume starts processing queued jobs until ctx is done.
	Consume(ctx context.Context) error
	Enqueue(ctx context.Context, courseId uuid.UUID) error
	// EnqueueMissing queues every course that has no embedding yet.
	EnqueueMissing(ctx context.Context) (int, error)
	// HandleCourseUpdated re-embeds the course named in a course.updated event.
	HandleCourseUpdated(ctx context.Context, event events.Event) error
}

type embeddingJobService struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topicName  string
	target     corpus.EmbeddingTarget
	provider   embedding.EmbeddingProvider
	logger     logger.ILogger
}

func NewEmbeddingJobService(
	publisher message.Publisher,
	subscriber message.Subscriber,
	topicName string,
	target corpus.EmbeddingTarget,
	provider embedding.EmbeddingProvider,
	log logger.ILogger,
) IEmbeddingJobService {
	return &embeddingJobService{
		publisher:  publisher,
		subscriber: subscriber,
		topicName:  topicName,
		target:     target,
		provider:   provider,
		logger:     log,
	}
}

func (s *embeddingJobService) Enqueue(ctx context.Context, courseId uuid.UUID) error {
	payload, err := json.Marshal(dto.EmbedCourseMessage{CourseId: courseId})
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := s.publisher.Publish(s.topicName, msg); err != nil {
		return fmt.Errorf("publish embedding job: %w", err)
	}
	return nil
}

func (s *embeddingJobService) EnqueueMissing(ctx context.Context) (int, error) {
	pending, err := s.target.PendingEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending embeddings: %w", err)
	}
	for i, c := range pending {
		if err := s.Enqueue(ctx, c.Id); err != nil {
			return i, err
		}
	}
	if len(pending) > 0 {
		s.logger.Info("EMBED_JOB", "Queued courses without embeddings", map[string]interface{}{
			"count": len(pending),
		})
	}
	return len(pending), nil
}

func (s *embeddingJobService) HandleCourseUpdated(ctx context.Context, event events.Event) error {
	raw, ok := events.StringField(event, "course_id")
	if !ok {
		s.logger.Warn("EMBED_JOB", "course.updated event without course_id", map[string]interface{}{
			"payload": event.Payload(),
		})
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		s.logger.Warn("EMBED_JOB", "course.updated event with invalid course_id", map[string]interface{}{
			"course_id": raw,
		})
		return nil
	}
	return s.Enqueue(ctx, id)
}

func (s *embeddingJobService) Consume(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (s *embeddingJobService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.EmbedCourseMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.Error("EMBED_JOB", "Failed to unmarshal message", map[string]interface{}{
			"error": err.Error(),
		})
		metrics.EmbeddingJobsTotal.WithLabelValues("invalid").Inc()
		// Invalid payloads would fail forever.
		msg.Ack()
		return
	}

	if err := s.embedCourse(ctx, payload.CourseId); err != nil {
		s.logger.Error("EMBED_JOB", "Course embedding failed", map[string]interface{}{
			"course_id": payload.CourseId.String(),
			"error":     err.Error(),
		})
		metrics.EmbeddingJobsTotal.WithLabelValues("failed").Inc()
		// Not redelivered: the next EnqueueMissing pass picks the course up again.
		msg.Ack()
		return
	}

	metrics.EmbeddingJobsTotal.WithLabelValues("embedded").Inc()
	msg.Ack()
}

func (s *embeddingJobService) embedCourse(ctx context.Context, id uuid.UUID) error {
	course, err := s.target.FindCourse(ctx, id)
	if err != nil {
		return fmt.Errorf("find course: %w", err)
	}
	if course == nil {
		s.logger.Warn("EMBED_JOB", "Course not found, skipping", map[string]interface{}{
			"course_id": id.String(),
		})
		return nil
	}

	start := time.Now()
	res, err := s.provider.Generate(ctx, CourseDocument(course), embedding.TaskRetrievalDocument)
	if err != nil {
		return fmt.Errorf("generate embedding: %w", err)
	}
	if err := s.target.SaveEmbedding(ctx, course.Id, res.Embedding.Values); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}

	s.logger.Info("EMBED_JOB", "Course embedded", map[string]interface{}{
		"course_id":  course.Id.String(),
		"code":       course.Code,
		"dimensions": len(res.Embedding.Values),
		"took_ms":    time.Since(start).Milliseconds(),
	})
	return nil
}

// CourseDocument is the text embedded for a course.
func CourseDocument(c *entity.Course) string {
	return fmt.Sprintf("%s %s\n\n%s", c.Code, c.Title, c.Description)
}
