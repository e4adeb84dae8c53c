package fallback

import (
	"context"
	"errors"
	"testing"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/pkg/advisor/corpus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog() []*entity.Course {
	return []*entity.Course{
		{Code: "CSCI 0320", Title: "Introduction to Software Engineering", Description: "Design and testing of large programs."},
		{Code: "CSCI 1420", Title: "Machine Learning", Description: "Supervised and unsupervised learning algorithms."},
		{Code: "CSCI 1230", Title: "Computer Graphics", Description: "Rendering, modeling and visualization."},
		{Code: "APMA 1650", Title: "Statistical Inference", Description: "Estimation and hypothesis testing, with machine learning applications."},
		{Code: "HIST 0150", Title: "History of Science", Description: "Scientific revolutions."},
		{Code: "ECON 0110", Title: "Principles of Economics", Description: "Markets and incentives."},
	}
}

func codes(cs []*entity.Course) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Code
	}
	return out
}

func TestMatch_RanksByScoreThenCode(t *testing.T) {
	m := NewMatcher(corpus.NewMemoryStore(catalog()))

	got, err := m.Match(context.Background(), "Computer Science", "machine learning", 3)
	require.NoError(t, err)
	// CSCI 1420: title hits (2x3) + description "learning" (1) + dept (4) = 11
	// APMA 1650: description hits (2x1) = 2, below every CSCI course (dept 4)
	assert.Equal(t, []string{"CSCI 1420", "CSCI 1230", "CSCI 0320"}, codes(got))
}

func TestMatch_WithoutMajorBoost(t *testing.T) {
	m := NewMatcher(corpus.NewMemoryStore(catalog()))

	got, err := m.Match(context.Background(), "Undeclared", "machine learning", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"CSCI 1420", "APMA 1650"}, codes(got))
}

func TestMatch_NoMatchesReturnsFirstCoursesByCode(t *testing.T) {
	m := NewMatcher(corpus.NewMemoryStore(catalog()))

	got, err := m.Match(context.Background(), "Undeclared", "zzz qqq", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"APMA 1650", "CSCI 0320", "CSCI 1230"}, codes(got))
}

func TestMatch_EmptyCatalog(t *testing.T) {
	m := NewMatcher(corpus.NewMemoryStore(nil))

	got, err := m.Match(context.Background(), "Computer Science", "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatch_DefaultLimit(t *testing.T) {
	m := NewMatcher(corpus.NewMemoryStore(catalog()))

	got, err := m.Match(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultLimit)
}

type failingStore struct{ corpus.Store }

func (failingStore) KeywordSearch(context.Context, []string) ([]*entity.Course, error) {
	return nil, errors.New("db down")
}

func (failingStore) NearestNeighbors(context.Context, []float32, int) ([]*contract.ScoredCourse, error) {
	return nil, errors.New("db down")
}

func TestMatch_StoreErrorPropagates(t *testing.T) {
	m := NewMatcher(failingStore{})

	_, err := m.Match(context.Background(), "Physics", "optics", 3)
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"computer", "science", "machine", "learning", "data", "visualization"},
		Tokenize("I'm a Computer-Science major, interested in machine learning & data visualization!!"),
	)
	assert.Empty(t, Tokenize("I am in it to do AI"))
}

func TestScore(t *testing.T) {
	c := &entity.Course{Code: "CSCI 1420", Title: "Machine Learning", Description: "Learning from data"}

	assert.Equal(t, 3+1+3, Score(c, []string{"machine", "learning"}, nil))
	assert.Equal(t, 2+4, Score(c, []string{"1420"}, []string{"CSCI"}))
	assert.Zero(t, Score(c, []string{"history"}, []string{"HIST"}))
}
