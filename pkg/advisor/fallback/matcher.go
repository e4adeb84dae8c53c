// Package fallback ranks courses by keyword overlap when the vector and model
// path cannot produce an answer. It makes no external calls beyond the
// course store.
package fallback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"course-advisor-be/internal/entity"
	"course-advisor-be/pkg/advisor"
	"course-advisor-be/pkg/advisor/corpus"
)

const (
	DefaultLimit = 3

	titleWeight       = 3
	descriptionWeight = 1
	codeWeight        = 2
	departmentWeight  = 4

	minTermLength = 3
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "about": true, "that": true,
	"this": true, "are": true, "was": true, "but": true, "not": true, "you": true,
	"your": true, "have": true, "has": true, "like": true, "want": true, "learn": true,
	"interested": true, "interest": true, "interests": true, "course": true, "courses": true,
	"class": true, "classes": true, "take": true, "some": true, "any": true, "more": true,
	"what": true, "which": true, "should": true, "would": true, "could": true, "from": true,
	"into": true, "also": true, "really": true, "major": true, "majoring": true, "student": true,
	"study": true, "studying": true, "recommend": true, "recommendations": true, "good": true,
	"things": true, "stuff": true, "lot": true, "lots": true, "very": true, "its": true,
	"i'm": true, "im": true, "love": true, "enjoy": true, "how": true, "can": true,
}

type Matcher struct {
	store corpus.Store
}

func NewMatcher(store corpus.Store) *Matcher {
	return &Matcher{store: store}
}

type scored struct {
	course *entity.Course
	score  int
}

// Match returns up to limit courses ranked by keyword score, ties by code.
// When nothing scores it returns the first limit courses by code, so the
// result is empty only for an empty catalog.
func (m *Matcher) Match(ctx context.Context, major, interests string, limit int) ([]*entity.Course, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	terms := Tokenize(major + " " + interests)
	prefixes := advisor.PrefixesForMajor(major)

	search := append([]string{}, terms...)
	for _, p := range prefixes {
		search = append(search, strings.ToLower(p))
	}

	matches, err := m.store.KeywordSearch(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	ranked := make([]scored, 0, len(matches))
	for _, c := range matches {
		if s := Score(c, terms, prefixes); s > 0 {
			ranked = append(ranked, scored{course: c, score: s})
		}
	}

	if len(ranked) == 0 {
		all, err := m.store.AllCourses(ctx)
		if err != nil {
			return nil, fmt.Errorf("list courses: %w", err)
		}
		corpus.SortByCode(all)
		if len(all) > limit {
			all = all[:limit]
		}
		return all, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].course.Code < ranked[j].course.Code
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]*entity.Course, len(ranked))
	for i, r := range ranked {
		out[i] = r.course
	}
	return out, nil
}

// Score weighs each term by where it occurs and adds a bonus when the course
// belongs to one of the major's departments.
func Score(c *entity.Course, terms []string, prefixes []string) int {
	title := strings.ToLower(c.Title)
	description := strings.ToLower(c.Description)
	code := strings.ToLower(c.Code)

	score := 0
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += titleWeight
		}
		if strings.Contains(description, t) {
			score += descriptionWeight
		}
		if strings.Contains(code, t) {
			score += codeWeight
		}
	}

	dept := c.Department()
	for _, p := range prefixes {
		if strings.EqualFold(dept, p) {
			score += departmentWeight
			break
		}
	}
	return score
}

// Tokenize lowercases text, splits on anything that is not a letter or digit,
// and drops stopwords and short tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len([]rune(f)) < minTermLength || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
