package service

import (
	"context"

	"course-advisor-be/internal/dto"
	"course-advisor-be/pkg/advisor/orchestrator"
	"course-advisor-be/pkg/advisor/session"

	"github.com/google/uuid"
)

type IAdvisorService interface {
	Recommend(ctx context.Context, req *dto.RecommendRequest) (*dto.RecommendResponse, error)
	Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error)
	ExpireSession(ctx context.Context, sessionId string) error
}

type advisorService struct {
	orchestrator *orchestrator.Orchestrator
	sessions     *session.Store
}

func NewAdvisorService(orch *orchestrator.Orchestrator, sessions *session.Store) IAdvisorService {
	return &advisorService{
		orchestrator: orch,
		sessions:     sessions,
	}
}

func (s *advisorService) Recommend(ctx context.Context, req *dto.RecommendRequest) (*dto.RecommendResponse, error) {
	res, err := s.orchestrator.Recommend(ctx, orchestrator.RecommendRequest{
		SessionId: req.SessionId,
		Major:     req.Major,
		Interests: req.Interests,
	})
	if err != nil {
		return nil, err
	}

	recs := make([]dto.Recommendation, len(res.Recommendations))
	for i, r := range res.Recommendations {
		recs[i] = dto.Recommendation{
			Code:       r.Code,
			Title:      r.Title,
			Reason:     r.Reason,
			Confidence: r.Confidence,
		}
	}

	return &dto.RecommendResponse{
		Recommendations: recs,
		TotalCandidates: res.TotalCandidates,
		SearchMethod:    res.SearchMethod,
		Major:           res.Major,
		Interests:       res.Interests,
	}, nil
}

// Chat starts a new session when the request carries none.
func (s *advisorService) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	sessionId := req.SessionId
	if sessionId == "" {
		sessionId = uuid.NewString()
	}

	res, err := s.orchestrator.Chat(ctx, orchestrator.ChatRequest{
		SessionId: sessionId,
		Message:   req.Message,
	})
	if err != nil {
		return nil, err
	}

	return &dto.ChatResponse{
		SessionId:    sessionId,
		Response:     res.Response,
		Context:      dto.ChatContext{Major: res.Major},
		Courses:      res.Courses,
		SearchMethod: res.SearchMethod,
	}, nil
}

func (s *advisorService) ExpireSession(ctx context.Context, sessionId string) error {
	return s.sessions.Expire(ctx, sessionId)
}
