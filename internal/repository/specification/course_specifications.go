package specification

import (
	"strings"

	"gorm.io/gorm"
)

// HasEmbedding keeps only courses that take part in vector retrieval
type HasEmbedding struct{}

func (s HasEmbedding) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("embedding IS NOT NULL")
}

// MissingEmbedding selects courses the embedding job still has to process
type MissingEmbedding struct{}

func (s MissingEmbedding) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("embedding IS NULL")
}

// CourseKeywordMatch matches any term in code, title or description.
// Using ILIKE for Postgres (case insensitive)
type CourseKeywordMatch struct {
	Terms []string
}

func (s CourseKeywordMatch) Apply(db *gorm.DB) *gorm.DB {
	if len(s.Terms) == 0 {
		return db
	}

	clause := db.Session(&gorm.Session{NewDB: true})
	for i, term := range s.Terms {
		pattern := "%" + escapeLike(term) + "%"
		cond := "code ILIKE ? OR title ILIKE ? OR description ILIKE ?"
		if i == 0 {
			clause = clause.Where(cond, pattern, pattern, pattern)
		} else {
			clause = clause.Or(cond, pattern, pattern, pattern)
		}
	}
	return db.Where(clause)
}

func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
