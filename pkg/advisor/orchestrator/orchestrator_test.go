package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/pkg/logger"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/internal/repository/memory"
	"course-advisor-be/pkg/advisor"
	"course-advisor-be/pkg/advisor/corpus"
	"course-advisor-be/pkg/advisor/fallback"
	"course-advisor-be/pkg/advisor/session"
	"course-advisor-be/pkg/aihttp"
	"course-advisor-be/pkg/events"
	"course-advisor-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalog = []*entity.Course{
	{Code: "CSCI 0320", Title: "Introduction to Software Engineering", Description: "Design, testing and maintenance of large programs."},
	{Code: "CSCI 1420", Title: "Machine Learning", Description: "Supervised and unsupervised learning algorithms."},
	{Code: "MATH 0520", Title: "Linear Algebra", Description: "Vector spaces, matrices and eigenvalues."},
	{Code: "ECON 1110", Title: "Intermediate Microeconomics", Description: "Consumer and producer theory."},
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	errs  []error
	out   []*contract.ScoredCourse
}

func (f *fakeSource) Retrieve(ctx context.Context, major, interests string) ([]*contract.ScoredCourse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.out, nil
}

type reply struct {
	text string
	err  error
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	seen    [][]llm.Message
	// whether every call carried a deadline
	bounded bool
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, history)
	_, hasDeadline := ctx.Deadline()
	f.bounded = (f.calls == 1 || f.bounded) && hasDeadline
	if len(f.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r.text, r.err
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type harness struct {
	orch     *Orchestrator
	source   *fakeSource
	llm      *fakeLLM
	sessions *session.Store
	pub      *recordingPublisher
	sleeps   []time.Duration
}

func scored(distances ...float64) []*contract.ScoredCourse {
	out := make([]*contract.ScoredCourse, len(distances))
	for i, d := range distances {
		out[i] = &contract.ScoredCourse{Course: catalog[i], Distance: d}
	}
	return out
}

func newHarness(t *testing.T, source *fakeSource, model *fakeLLM) *harness {
	t.Helper()
	h := &harness{
		source:   source,
		llm:      model,
		sessions: session.NewStore(memory.NewSessionRepository(time.Hour, 100), 10, logger.NewNopLogger()),
		pub:      &recordingPublisher{},
	}
	matcher := fallback.NewMatcher(corpus.NewMemoryStore(catalog))
	h.orch = New(source, model, matcher, h.sessions, DefaultConfig(), logger.NewNopLogger(),
		WithPublisher(h.pub),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
	)
	return h
}

func transient() error {
	return &aihttp.ProviderError{Provider: "fake", StatusCode: 503, Body: "overloaded"}
}

func assertFallback(t *testing.T, res *RecommendResult) {
	t.Helper()
	assert.Equal(t, SearchMethodFallback, res.SearchMethod)
	require.NotEmpty(t, res.Recommendations)
	assert.LessOrEqual(t, len(res.Recommendations), fallback.DefaultLimit)
	for _, r := range res.Recommendations {
		assert.Equal(t, ConfidenceLow, r.Confidence)
	}
}

func TestRecommend_GroundedAnswer(t *testing.T) {
	model := &fakeLLM{replies: []reply{{text: `[
		{"code":"csci0320","title":"Made up title","reason":"Builds on your interest in software."},
		{"code":"MATH 0520","title":"Linear Algebra","reason":"Useful background."}
	]`}}}
	h := newHarness(t, &fakeSource{out: scored(0.2, 0.5, 0.8)}, model)

	res, err := h.orch.Recommend(context.Background(), RecommendRequest{Major: "Computer Science", Interests: "software engineering"})
	require.NoError(t, err)

	assert.Equal(t, SearchMethodVector, res.SearchMethod)
	assert.Equal(t, 3, res.TotalCandidates)
	require.Len(t, res.Recommendations, 2)
	assert.Equal(t, Recommendation{
		Code:       "CSCI 0320",
		Title:      "Introduction to Software Engineering",
		Reason:     "Builds on your interest in software.",
		Confidence: ConfidenceHigh,
	}, res.Recommendations[0])
	assert.Equal(t, ConfidenceLow, res.Recommendations[1].Confidence)
	assert.Equal(t, 1, model.calls)

	require.Len(t, h.pub.events, 1)
	assert.Equal(t, events.TypeRecommendationServed, h.pub.events[0].EventType())
	method, _ := events.StringField(h.pub.events[0], "search_method")
	assert.Equal(t, SearchMethodVector, method)
}

func TestRecommend_CompletionIsBoundedWithoutCallerDeadline(t *testing.T) {
	model := &fakeLLM{replies: []reply{{text: `[{"code":"CSCI 1420","title":"ML","reason":"Data."}]`}}}
	h := newHarness(t, &fakeSource{out: scored(0.2, 0.5, 0.8)}, model)

	// A request context that is never cancelled, as fiber hands out.
	_, err := h.orch.Recommend(context.Background(), RecommendRequest{Major: "Computer Science", Interests: "machine learning"})
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls)
	assert.True(t, model.bounded)
}

func TestRecommend_ProviderFailureFallsBackToKeywords(t *testing.T) {
	model := &fakeLLM{replies: []reply{{err: &aihttp.ProviderError{Provider: "fake", StatusCode: 400}}}}
	h := newHarness(t, &fakeSource{out: scored(0.2, 0.5, 0.8)}, model)

	res, err := h.orch.Recommend(context.Background(), RecommendRequest{Major: "Computer Science", Interests: "software engineering"})
	require.NoError(t, err)

	assertFallback(t, res)
	assert.Equal(t, "CSCI 0320", res.Recommendations[0].Code)
	assert.Equal(t, 3, res.TotalCandidates)
	assert.Equal(t, 1, model.calls, "client errors are not retried")
	assert.Empty(t, h.sleeps)
}

func TestRecommend_RetriesTransientCompletionOnce(t *testing.T) {
	model := &fakeLLM{replies: []reply{
		{err: transient()},
		{text: `[{"code":"CSCI 1420","title":"ML","reason":"Matches machine learning."}]`},
	}}
	h := newHarness(t, &fakeSource{out: scored(0.2, 0.5, 0.8)}, model)

	res, err := h.orch.Recommend(context.Background(), RecommendRequest{Major: "CS", Interests: "machine learning"})
	require.NoError(t, err)

	assert.Equal(t, 2, model.calls)
	assert.Equal(t, SearchMethodVector, res.SearchMethod)
	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, "CSCI 1420", res.Recommendations[0].Code)
	assert.Equal(t, ConfidenceMedium, res.Recommendations[0].Confidence)

	require.Len(t, h.sleeps, 1)
	assert.GreaterOrEqual(t, h.sleeps[0], 200*time.Millisecond)
	assert.LessOrEqual(t, h.sleeps[0], 300*time.Millisecond)
}

func TestRecommend_SecondTransientFailureFallsBack(t *testing.T) {
	model := &fakeLLM{replies: []reply{{err: transient()}}}
	h := newHarness(t, &fakeSource{out: scored(0.2, 0.5, 0.8)}, model)

	res, err := h.orch.Recommend(context.Background(), RecommendRequest{Major: "Computer Science", Interests: "software"})
	require.NoError(t, err)

	assert.Equal(t, 2, model.calls, "exactly one retry")
	assertFallback(t, res)
}

func TestRecommend_RetriesTransientRetrievalOnce(t *testing.T) {
	source := &fakeSource{
		errs: []error{&advisor.RetrievalError{Stage: "embed", Err: transient()}},
		out:  scored(0.1, 0.2),
	}
	model := &fakeLLM{replies: []reply{{text: `[{"code":"CSCI 0320","title":"SE","reason":"r"}]`}}}
	h := newHarness(t, source, model)

	res, err := h.orch.Recommend(context.Background(), RecommendRequest{Major: "CS", Interests: "software"})
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
	assert.Equal(t, SearchMethodVector, res.SearchMethod)
}

func TestRecommend_OutputDriftFallsBackWithoutRetry(t *testing.T) {
	cases := map[string]string{
		"prose":      "Sure! I recommend taking software engineering.",
		"object":     `{"code":"CSCI 0320"}`,
		"ungrounded": "```json\n[{\"code\":\"FAKE 9999\",\"title\":\"Fake\",\"reason\":\"r\"}]\n```",
		"empty":      "[]",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			model := &fakeLLM{replies: []reply{{text: raw}}}
			h := newHarness(t, &fakeSource{out: scored(0.2, 0.5, 0.8)}, model)

			res, err := h.orch.Recommend(context.Background(), RecommendRequest{Major: "Computer Science", Interests: "software engineering"})
			require.NoError(t, err)
			assert.Equal(t, 1, model.calls)
			assertFallback(t, res)
			for _, r := range res.Recommendations {
				assert.NotEqual(t, "FAKE 9999", r.Code)
			}
		})
	}
}

func TestRecommend_EmptyCorpusStillAnswers(t *testing.T) {
	model := &fakeLLM{}
	h := newHarness(t, &fakeSource{errs: []error{advisor.ErrEmptyCorpus}}, model)

	res, err := h.orch.Recommend(context.Background(), RecommendRequest{Major: "Economics", Interests: "markets"})
	require.NoError(t, err)

	assertFallback(t, res)
	assert.Equal(t, 0, res.TotalCandidates)
	assert.Equal(t, "ECON 1110", res.Recommendations[0].Code)
	assert.Equal(t, 0, model.calls)
	assert.Equal(t, 1, h.source.calls, "empty corpus is not transient")
}

func TestRecommend_EverythingDownStillAnswers(t *testing.T) {
	source := &fakeSource{errs: []error{
		&advisor.RetrievalError{Stage: "embed", Err: transient()},
		&advisor.RetrievalError{Stage: "embed", Err: transient()},
	}}
	h := newHarness(t, source, &fakeLLM{replies: []reply{{err: transient()}}})

	res, err := h.orch.Recommend(context.Background(), RecommendRequest{Major: "Underwater Basket Weaving", Interests: "zzz qqq"})
	require.NoError(t, err)

	assertFallback(t, res)
	// nothing scores, so the catalog's first courses by code are offered
	assert.Equal(t, []string{"CSCI 0320", "CSCI 1420", "ECON 1110"}, codesOf(res.Recommendations))
}

func TestRecommend_RejectsEmptyInput(t *testing.T) {
	model := &fakeLLM{}
	h := newHarness(t, &fakeSource{out: scored(0.2)}, model)

	_, err := h.orch.Recommend(context.Background(), RecommendRequest{Major: "   ", Interests: "ai"})
	var verr *advisor.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "major", verr.Field)

	_, err = h.orch.Recommend(context.Background(), RecommendRequest{Major: "CS", Interests: ""})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "interests", verr.Field)

	assert.Equal(t, 0, h.source.calls)
	assert.Equal(t, 0, model.calls)
	assert.Empty(t, h.pub.events)
}

func TestRecommend_SessionAccumulatesContext(t *testing.T) {
	model := &fakeLLM{replies: []reply{{text: `[{"code":"CSCI 0320","title":"SE","reason":"r"}]`}}}
	h := newHarness(t, &fakeSource{out: scored(0.2, 0.5)}, model)
	ctx := context.Background()

	_, err := h.orch.Recommend(ctx, RecommendRequest{SessionId: "s1", Major: "Computer Science", Interests: "software"})
	require.NoError(t, err)
	_, err = h.orch.Recommend(ctx, RecommendRequest{SessionId: "s1", Major: "Computer Science", Interests: "machine learning"})
	require.NoError(t, err)

	sc, err := h.sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Computer Science", sc.MajorOrEmpty())
	assert.Equal(t, []string{"software", "machine learning"}, sc.Interests)
	assert.Len(t, sc.History, 4)

	// the second prompt mentions the interest from the first request
	require.Len(t, model.seen, 2)
	assert.Contains(t, model.seen[1][1].Content, "software")
}

func TestChat_DetectsMajorAndAnswersWithCandidates(t *testing.T) {
	model := &fakeLLM{replies: []reply{{text: "You should look at CSCI 1420, it covers exactly that."}}}
	h := newHarness(t, &fakeSource{out: scored(0.3, 0.2, 0.7)}, model)
	ctx := context.Background()

	res, err := h.orch.Chat(ctx, ChatRequest{SessionId: "chat-1", Message: "I'm a computer science major and I'm interested in machine learning"})
	require.NoError(t, err)

	assert.Equal(t, SearchMethodVector, res.SearchMethod)
	require.NotNil(t, res.Major)
	assert.Equal(t, "computer science", strings.ToLower(*res.Major))
	assert.Equal(t, []string{"CSCI 1420"}, res.Courses)

	sc, err := h.sessions.Get(ctx, "chat-1")
	require.NoError(t, err)
	assert.Contains(t, sc.Interests, "machine learning")
	require.Len(t, sc.History, 2)
	assert.Equal(t, llm.RoleAssistant, sc.History[1].Role)

	_, err = h.orch.Chat(ctx, ChatRequest{SessionId: "chat-1", Message: "What about something more theoretical?"})
	require.NoError(t, err)

	require.Len(t, model.seen, 2)
	second := model.seen[1]
	require.Len(t, second, 4, "system, two history turns, user")
	assert.Equal(t, llm.RoleSystem, second[0].Role)
	assert.Equal(t, llm.RoleUser, second[3].Role)
	assert.Contains(t, second[3].Content, "theoretical")
}

func TestChat_UngroundedReplyFallsBack(t *testing.T) {
	model := &fakeLLM{replies: []reply{{text: "Take FAKE 9999, it is great."}}}
	h := newHarness(t, &fakeSource{out: scored(0.3, 0.2)}, model)

	res, err := h.orch.Chat(context.Background(), ChatRequest{SessionId: "chat-2", Message: "I want to learn about software engineering"})
	require.NoError(t, err)

	assert.Equal(t, SearchMethodFallback, res.SearchMethod)
	assert.NotContains(t, res.Response, "FAKE 9999")
	require.NotEmpty(t, res.Courses)
	assert.Equal(t, "CSCI 0320", res.Courses[0])
	for _, code := range res.Courses {
		assert.Contains(t, res.Response, code)
	}
}

func TestChat_RequiresSessionAndMessage(t *testing.T) {
	h := newHarness(t, &fakeSource{}, &fakeLLM{})

	_, err := h.orch.Chat(context.Background(), ChatRequest{SessionId: "", Message: "hi"})
	var verr *advisor.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sessionId", verr.Field)

	_, err = h.orch.Chat(context.Background(), ChatRequest{SessionId: "x", Message: "  "})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "message", verr.Field)
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, confidenceFor(0))
	assert.Equal(t, ConfidenceHigh, confidenceFor(0.35))
	assert.Equal(t, ConfidenceMedium, confidenceFor(0.36))
	assert.Equal(t, ConfidenceMedium, confidenceFor(0.6))
	assert.Equal(t, ConfidenceLow, confidenceFor(0.61))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a b c", sanitize("  a \n b\t c ", 200))
	assert.Equal(t, "abc", sanitize("abcdef", 3))
}
