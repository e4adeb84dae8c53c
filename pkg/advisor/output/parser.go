// Package output turns raw model replies into recommendations that are
// guaranteed to reference only courses from the request's candidate set.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/pkg/advisor"
)

// Method tags how a reply was accepted.
type Method string

const (
	MethodStrict     Method = "strict"
	MethodNormalized Method = "normalized"
)

type Item struct {
	Code   string
	Title  string
	Reason string
}

type Result struct {
	Items  []Item
	Method Method
}

// Index maps normalized course codes to the candidates they came from.
type Index map[string]*entity.Course

func NewIndex(candidates []*contract.ScoredCourse) Index {
	idx := make(Index, len(candidates))
	for _, c := range candidates {
		idx[NormalizeCode(c.Course.Code)] = c.Course
	}
	return idx
}

func (idx Index) Contains(code string) bool {
	_, ok := idx[NormalizeCode(code)]
	return ok
}

// Parse accepts a reply when it is, or after one normalization pass becomes,
// a JSON array of {code, title, reason} whose codes all belong to idx. At most
// limit items are returned. Any other reply yields *advisor.OutputValidationError.
func Parse(raw string, idx Index, limit int) (Result, error) {
	items, err := decode(raw)
	method := MethodStrict
	if err != nil {
		var ove *advisor.OutputValidationError
		if errors.As(err, &ove) && ove.Reason == advisor.ReasonUnparseable {
			normalized := normalize(raw)
			if normalized != raw {
				items, err = decode(normalized)
				method = MethodNormalized
			}
		}
	}
	if err != nil {
		return Result{}, err
	}

	grounded, err := ground(items, idx)
	if err != nil {
		return Result{}, err
	}
	if limit > 0 && len(grounded) > limit {
		grounded = grounded[:limit]
	}
	return Result{Items: grounded, Method: method}, nil
}

func decode(raw string) ([]Item, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return nil, &advisor.OutputValidationError{Reason: advisor.ReasonUnparseable, Err: err}
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, &advisor.OutputValidationError{Reason: advisor.ReasonNotArray, Detail: fmt.Sprintf("got %T", v)}
	}
	if len(arr) == 0 {
		return nil, &advisor.OutputValidationError{Reason: advisor.ReasonEmpty}
	}

	items := make([]Item, 0, len(arr))
	for i, el := range arr {
		obj, ok := el.(map[string]interface{})
		if !ok {
			return nil, &advisor.OutputValidationError{Reason: advisor.ReasonMissingField, Detail: fmt.Sprintf("element %d is not an object", i)}
		}
		var fields [3]string
		for j, name := range []string{"code", "title", "reason"} {
			s, _ := obj[name].(string)
			s = strings.TrimSpace(s)
			if s == "" {
				return nil, &advisor.OutputValidationError{Reason: advisor.ReasonMissingField, Detail: fmt.Sprintf("element %d: %s", i, name)}
			}
			fields[j] = s
		}
		items = append(items, Item{Code: fields[0], Title: fields[1], Reason: fields[2]})
	}
	return items, nil
}

func ground(items []Item, idx Index) ([]Item, error) {
	out := make([]Item, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		course, ok := idx[NormalizeCode(it.Code)]
		if !ok {
			return nil, &advisor.OutputValidationError{Reason: advisor.ReasonUngrounded, Detail: it.Code}
		}
		if seen[course.Code] {
			continue
		}
		seen[course.Code] = true
		// Code and title always come from the catalog, never the model.
		out = append(out, Item{Code: course.Code, Title: course.Title, Reason: it.Reason})
	}
	return out, nil
}

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// normalize strips a markdown fence and any prose around the outermost array.
func normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

var codePattern = regexp.MustCompile(`\b([A-Z]{2,5})[ \-]?(\d{3,4}[A-Z]?)\b`)

// NormalizeCode upper-cases a course code and puts exactly one space between
// department and number, so "csci0320" and "CSCI 0320" compare equal.
func NormalizeCode(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if m := codePattern.FindStringSubmatch(c); m != nil && len(m[0]) == len(c) {
		return m[1] + " " + m[2]
	}
	return strings.Join(strings.Fields(c), " ")
}

// UngroundedCodes lists course codes mentioned in free text that are not in idx.
func UngroundedCodes(text string, idx Index) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range codePattern.FindAllStringSubmatch(text, -1) {
		code := m[1] + " " + m[2]
		if seen[code] || idx.Contains(code) {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

// MentionedCodes lists candidate codes that appear in free text, in order.
func MentionedCodes(text string, idx Index) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range codePattern.FindAllStringSubmatch(text, -1) {
		code := m[1] + " " + m[2]
		if seen[code] || !idx.Contains(code) {
			continue
		}
		seen[code] = true
		out = append(out, idx[code].Code)
	}
	return out
}
