package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Course struct {
	Id          uuid.UUID
	Code        string // department prefix + number, e.g. "CSCI 0320"
	Title       string
	Description string
	Embedding   []float32 // nil until the embedding job has run
	EmbeddedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
	IsDeleted   bool
}

// HasEmbedding reports whether the course can take part in vector retrieval.
func (c *Course) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Department returns the code's department prefix ("CSCI" for "CSCI 0320").
func (c *Course) Department() string {
	code := strings.TrimSpace(c.Code)
	if i := strings.IndexAny(code, " \t"); i > 0 {
		return strings.ToUpper(code[:i])
	}
	return strings.ToUpper(code)
}
