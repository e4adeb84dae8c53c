package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/pkg/advisor"
	"course-advisor-be/pkg/advisor/output"
	"course-advisor-be/pkg/advisor/prompt"
	"course-advisor-be/pkg/advisor/session"
	"course-advisor-be/pkg/events"
	"course-advisor-be/pkg/llm"
)

type ChatRequest struct {
	SessionId string
	Message   string
}

type ChatResult struct {
	Response     string
	Major        *string
	Courses      []string
	SearchMethod string
}

// Chat answers one conversational turn. The session must be identified; the
// caller generates an id for first turns.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	ctx, r := o.begin(ctx, ModeChat, req.SessionId)

	res, err := o.chat(ctx, r, req)
	if err != nil {
		r.finish("", err)
		return nil, err
	}
	r.finish(res.SearchMethod, nil)

	o.publish(ctx, events.NewRecommendationServed(ModeChat, req.SessionId, res.SearchMethod, res.Courses, len(res.Courses)))
	return res, nil
}

func (o *Orchestrator) chat(ctx context.Context, r *run, req ChatRequest) (*ChatResult, error) {
	message, err := required("message", req.Message, MaxInterestsLength)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.SessionId) == "" {
		return nil, advisor.NewValidationError("sessionId", "must not be empty")
	}

	// History is read before this turn is recorded so the prompt does not
	// repeat the current message.
	var history []llm.Message
	sc, err := o.sessions.Update(ctx, req.SessionId, func(sc *session.Context) error {
		history = append([]llm.Message{}, sc.History...)
		if major, ok := session.DetectMajor(message); ok {
			sc.SetMajor(major)
		}
		sc.AddInterests(session.ExtractInterests(message)...)
		return nil
	})
	var verr *advisor.ValidationError
	if errors.As(err, &verr) {
		return nil, err
	}
	if err != nil {
		o.logger.Warn("SESSION", "Session update failed, continuing without context", map[string]interface{}{
			"session_id": req.SessionId,
			"error":      err.Error(),
		})
		sc = &session.Context{Id: req.SessionId}
		history = nil
	}

	major := sc.MajorOrEmpty()
	queryInterests := message
	if len(sc.Interests) > 0 {
		queryInterests = strings.Join(sc.Interests, ", ") + ". " + message
	}

	res := &ChatResult{Major: sc.Major}
	defer func() {
		if res.Response != "" {
			o.appendTurns(ctx, req.SessionId, message, res.Response)
		}
	}()

	r.enter(StageRetrieving)
	var candidates []*contract.ScoredCourse
	err = o.withRetry(ctx, "embedding", func(ctx context.Context) error {
		var rerr error
		candidates, rerr = o.retriever.Retrieve(ctx, major, queryInterests)
		return rerr
	})
	if err != nil || len(candidates) == 0 {
		if err == nil {
			err = advisor.ErrEmptyCorpus
		}
		r.fail("retrieval_unavailable", err)
		return o.fallbackChat(ctx, res, major, queryInterests)
	}

	r.enter(StagePrompting)
	messages := prompt.BuildChat(prompt.ChatInput{
		Message:    message,
		Major:      major,
		Interests:  sc.Interests,
		History:    history,
		Candidates: candidates,
	})

	r.enter(StageCompleting)
	reply, err := o.complete(ctx, messages)
	o.traceLogger.Info("ADVISOR", "Chat completion", map[string]interface{}{
		"session_id":   req.SessionId,
		"messages":     messages,
		"raw_response": reply,
		"candidates":   len(candidates),
	})
	if err != nil {
		r.fail("completion_unavailable", err)
		return o.fallbackChat(ctx, res, major, queryInterests)
	}

	r.enter(StageValidatingOutput)
	idx := output.NewIndex(candidates)
	reply = strings.TrimSpace(reply)
	if reply == "" {
		err = &advisor.OutputValidationError{Reason: advisor.ReasonEmpty}
	} else if bad := output.UngroundedCodes(reply, idx); len(bad) > 0 {
		err = &advisor.OutputValidationError{Reason: advisor.ReasonUngrounded, Detail: strings.Join(bad, ", ")}
	}
	if err != nil {
		o.outputDrift(r, err, reply)
		r.fail("output_invalid", err)
		return o.fallbackChat(ctx, res, major, queryInterests)
	}

	res.Response = reply
	res.Courses = output.MentionedCodes(reply, idx)
	res.SearchMethod = SearchMethodVector
	return res, nil
}

func (o *Orchestrator) fallbackChat(ctx context.Context, res *ChatResult, major, interests string) (*ChatResult, error) {
	courses, err := o.matcher.Match(ctx, major, interests, o.cfg.FallbackLimit)
	if err != nil {
		return nil, fmt.Errorf("keyword fallback: %w", err)
	}

	res.SearchMethod = SearchMethodFallback
	res.Response = fallbackReply(courses)
	res.Courses = make([]string, len(courses))
	for i, c := range courses {
		res.Courses[i] = c.Code
	}
	return res, nil
}

func fallbackReply(courses []*entity.Course) string {
	if len(courses) == 0 {
		return "I don't have any courses in the catalog to suggest yet."
	}
	var b strings.Builder
	b.WriteString("I can't give a detailed answer right now, but these courses match what you mentioned:\n")
	for _, c := range courses {
		b.WriteString(fmt.Sprintf("- %s: %s\n", c.Code, c.Title))
	}
	return strings.TrimRight(b.String(), "\n")
}
