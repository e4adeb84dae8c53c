// Package session keeps the per-conversation context (major, accumulated
// interests, recent turns) that lets a follow-up request build on earlier ones.
package session

import (
	"strings"
	"time"

	"course-advisor-be/pkg/llm"
)

const DefaultMaxHistoryTurns = 10

type Context struct {
	Id          string        `json:"id"`
	Major       *string       `json:"major,omitempty"`
	Interests   []string      `json:"interests"`
	History     []llm.Message `json:"history"`
	LastTouched time.Time     `json:"last_touched"`
}

func newContext(id string, now time.Time) *Context {
	return &Context{
		Id:          id,
		Interests:   []string{},
		History:     []llm.Message{},
		LastTouched: now,
	}
}

// Clone returns a deep copy.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	if c.Major != nil {
		m := *c.Major
		out.Major = &m
	}
	out.Interests = append([]string{}, c.Interests...)
	out.History = append([]llm.Message{}, c.History...)
	return &out
}

// SetMajor overwrites the major; the latest statement wins.
func (c *Context) SetMajor(major string) {
	major = strings.TrimSpace(major)
	if major == "" {
		return
	}
	c.Major = &major
}

func (c *Context) MajorOrEmpty() string {
	if c.Major == nil {
		return ""
	}
	return *c.Major
}

// AddInterests appends interests that are not already present, compared
// case-insensitively. Order of first mention is kept.
func (c *Context) AddInterests(interests ...string) {
	seen := make(map[string]bool, len(c.Interests))
	for _, existing := range c.Interests {
		seen[strings.ToLower(existing)] = true
	}
	for _, in := range interests {
		in = strings.TrimSpace(in)
		key := strings.ToLower(in)
		if in == "" || seen[key] {
			continue
		}
		seen[key] = true
		c.Interests = append(c.Interests, in)
	}
}

// AppendTurn records one message and drops the oldest beyond maxTurns.
func (c *Context) AppendTurn(role, content string, maxTurns int) {
	c.History = append(c.History, llm.Message{Role: role, Content: content})
	if maxTurns > 0 && len(c.History) > maxTurns {
		c.History = append([]llm.Message{}, c.History[len(c.History)-maxTurns:]...)
	}
}
