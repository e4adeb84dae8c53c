package dto

import "github.com/google/uuid"

type RecommendRequest struct {
	Major     string `json:"major" validate:"required"`
	Interests string `json:"interests" validate:"required"`
	SessionId string `json:"sessionId,omitempty" validate:"omitempty,max=128"`
}

type Recommendation struct {
	Code       string `json:"code"`
	Title      string `json:"title"`
	Reason     string `json:"reason"`
	Confidence string `json:"confidence,omitempty"` // "high" | "medium" | "low"
}

type RecommendResponse struct {
	Recommendations []Recommendation `json:"recommendations"`
	TotalCandidates int              `json:"totalCandidates"`
	SearchMethod    string           `json:"searchMethod"` // "semantic_vector_search" | "keyword_fallback"
	Major           string           `json:"major"`
	Interests       string           `json:"interests"`
}

type ChatRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionId string `json:"sessionId,omitempty" validate:"omitempty,max=128"`
}

type ChatContext struct {
	Major *string `json:"major,omitempty"`
}

type ChatResponse struct {
	SessionId    string      `json:"sessionId"`
	Response     string      `json:"response"`
	Context      ChatContext `json:"context"`
	Courses      []string    `json:"courses,omitempty"`
	SearchMethod string      `json:"searchMethod"`
}

// EmbedCourseMessage is the embedding job payload.
type EmbedCourseMessage struct {
	CourseId uuid.UUID `json:"course_id"`
}
