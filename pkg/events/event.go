package events

import "time"

const (
	// TypeCourseUpdated is published by the catalog when a course's text changes.
	TypeCourseUpdated = "course.updated"
	// TypeRecommendationServed is published after every answered request.
	TypeRecommendationServed = "recommendation.served"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the subject suffix for this event (e.g., "course.updated").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewRecommendationServed describes one answered request. Only course codes
// are carried, never the student's free text.
func NewRecommendationServed(mode, sessionID, searchMethod string, codes []string, candidates int) BaseEvent {
	return BaseEvent{
		Type: TypeRecommendationServed,
		Data: map[string]interface{}{
			"mode":             mode,
			"session_id":       sessionID,
			"search_method":    searchMethod,
			"course_codes":     codes,
			"total_candidates": candidates,
		},
		OccurredAt: time.Now(),
	}
}

// StringField reads a string value from an event payload.
func StringField(e Event, key string) (string, bool) {
	v, ok := e.Payload()[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
