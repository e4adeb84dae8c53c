package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/pkg/advisor"
	"course-advisor-be/pkg/advisor/metrics"
	"course-advisor-be/pkg/advisor/output"
	"course-advisor-be/pkg/advisor/prompt"
	"course-advisor-be/pkg/advisor/session"
	"course-advisor-be/pkg/events"
	"course-advisor-be/pkg/llm"
)

type RecommendRequest struct {
	SessionId string
	Major     string
	Interests string
}

type Recommendation struct {
	Code       string
	Title      string
	Reason     string
	Confidence string
}

type RecommendResult struct {
	Recommendations []Recommendation
	TotalCandidates int
	SearchMethod    string
	Major           string
	Interests       string
}

// Recommend answers with up to MaxRecommendations grounded courses. Only
// invalid input is returned as an error (*advisor.ValidationError); provider,
// retrieval and output failures are answered by the keyword fallback.
func (o *Orchestrator) Recommend(ctx context.Context, req RecommendRequest) (*RecommendResult, error) {
	ctx, r := o.begin(ctx, ModeRecommend, req.SessionId)

	res, err := o.recommend(ctx, r, req)
	if err != nil {
		r.finish("", err)
		return nil, err
	}
	r.finish(res.SearchMethod, nil)

	codes := codesOf(res.Recommendations)
	o.appendTurns(ctx, req.SessionId,
		fmt.Sprintf("Major: %s. Interests: %s", res.Major, res.Interests),
		"Recommended: "+strings.Join(codes, ", "),
	)
	o.publish(ctx, events.NewRecommendationServed(ModeRecommend, req.SessionId, res.SearchMethod, codes, res.TotalCandidates))
	return res, nil
}

func (o *Orchestrator) recommend(ctx context.Context, r *run, req RecommendRequest) (*RecommendResult, error) {
	major, err := required("major", req.Major, MaxFieldLength)
	if err != nil {
		return nil, err
	}
	interests, err := required("interests", req.Interests, MaxInterestsLength)
	if err != nil {
		return nil, err
	}

	var earlier []string
	if req.SessionId != "" {
		sc, err := o.sessions.Update(ctx, req.SessionId, func(sc *session.Context) error {
			sc.SetMajor(major)
			sc.AddInterests(interests)
			return nil
		})
		var verr *advisor.ValidationError
		switch {
		case errors.As(err, &verr):
			return nil, err
		case err != nil:
			o.logger.Warn("SESSION", "Session update failed, continuing without context", map[string]interface{}{
				"session_id": req.SessionId,
				"error":      err.Error(),
			})
		default:
			earlier = earlierInterests(sc.Interests, interests)
		}
	}

	base := &RecommendResult{Major: major, Interests: interests}

	r.enter(StageRetrieving)
	var candidates []*contract.ScoredCourse
	err = o.withRetry(ctx, "embedding", func(ctx context.Context) error {
		var rerr error
		candidates, rerr = o.retriever.Retrieve(ctx, major, interests)
		return rerr
	})
	if err != nil {
		reason := "retrieval_unavailable"
		if errors.Is(err, advisor.ErrEmptyCorpus) {
			reason = "empty_corpus"
		}
		r.fail(reason, err)
		return o.fallbackRecommend(ctx, base, 0)
	}
	if len(candidates) == 0 {
		r.fail("no_candidates", advisor.ErrEmptyCorpus)
		return o.fallbackRecommend(ctx, base, 0)
	}

	r.enter(StagePrompting)
	p := prompt.BuildRecommendation(prompt.RecommendationInput{
		Major:            major,
		Interests:        interests,
		SessionInterests: earlier,
		Candidates:       candidates,
	})

	r.enter(StageCompleting)
	raw, err := o.complete(ctx, p.Messages())
	o.traceLogger.Info("ADVISOR", "Recommendation completion", map[string]interface{}{
		"session_id":    req.SessionId,
		"query":         major + ": " + interests,
		"system_prompt": p.System,
		"user_prompt":   p.User,
		"raw_response":  raw,
		"candidates":    len(candidates),
	})
	if err != nil {
		r.fail("completion_unavailable", err)
		return o.fallbackRecommend(ctx, base, len(candidates))
	}

	r.enter(StageValidatingOutput)
	parsed, err := output.Parse(raw, output.NewIndex(candidates), o.cfg.MaxRecommendations)
	if err != nil {
		o.outputDrift(r, err, raw)
		r.fail("output_invalid", err)
		return o.fallbackRecommend(ctx, base, len(candidates))
	}

	distances := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		distances[c.Course.Code] = c.Distance
	}

	base.TotalCandidates = len(candidates)
	base.SearchMethod = SearchMethodVector
	base.Recommendations = make([]Recommendation, len(parsed.Items))
	for i, it := range parsed.Items {
		base.Recommendations[i] = Recommendation{
			Code:       it.Code,
			Title:      it.Title,
			Reason:     it.Reason,
			Confidence: confidenceFor(distances[it.Code]),
		}
	}
	return base, nil
}

func (o *Orchestrator) complete(ctx context.Context, messages []llm.Message) (string, error) {
	var raw string
	err := o.withRetry(ctx, o.completer.Name(), func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CompletionTimeout)
		defer cancel()

		start := time.Now()
		var cerr error
		raw, cerr = o.completer.Chat(cctx, messages,
			llm.WithTemperature(o.cfg.Temperature),
			llm.WithMaxTokens(o.cfg.MaxTokens),
		)
		metrics.ObserveStage("completion_call", start)
		return cerr
	})
	return raw, err
}

// outputDrift is logged apart from outages: it points at the prompt or model.
func (o *Orchestrator) outputDrift(r *run, err error, raw string) {
	reason := advisor.ReasonUnparseable
	var ove *advisor.OutputValidationError
	if errors.As(err, &ove) {
		reason = ove.Reason
	}
	metrics.OutputValidationFailures.WithLabelValues(reason).Inc()
	o.logger.Warn("ADVISOR", "output_drift", map[string]interface{}{
		"mode":       r.mode,
		"session_id": r.sessionID,
		"reason":     reason,
		"error":      err.Error(),
		"raw_length": len(raw),
	})
}

func (o *Orchestrator) fallbackRecommend(ctx context.Context, base *RecommendResult, totalCandidates int) (*RecommendResult, error) {
	courses, err := o.matcher.Match(ctx, base.Major, base.Interests, o.cfg.FallbackLimit)
	if err != nil {
		return nil, fmt.Errorf("keyword fallback: %w", err)
	}

	base.TotalCandidates = totalCandidates
	base.SearchMethod = SearchMethodFallback
	base.Recommendations = fallbackRecommendations(courses, base.Interests)
	return base, nil
}

func fallbackRecommendations(courses []*entity.Course, interests string) []Recommendation {
	out := make([]Recommendation, len(courses))
	for i, c := range courses {
		out[i] = Recommendation{
			Code:       c.Code,
			Title:      c.Title,
			Reason:     fmt.Sprintf("Matched on keywords from your interests (%s).", prompt.Truncate(interests, 80)),
			Confidence: ConfidenceLow,
		}
	}
	return out
}

func (o *Orchestrator) appendTurns(ctx context.Context, sessionID, user, assistant string) {
	if sessionID == "" {
		return
	}
	maxTurns := o.sessions.MaxHistory()
	_, err := o.sessions.Update(ctx, sessionID, func(sc *session.Context) error {
		sc.AppendTurn(llm.RoleUser, user, maxTurns)
		sc.AppendTurn(llm.RoleAssistant, assistant, maxTurns)
		return nil
	})
	if err != nil {
		o.logger.Warn("SESSION", "Failed to record turn", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

// confidenceFor buckets cosine distance; smaller is closer.
func confidenceFor(distance float64) string {
	switch {
	case distance <= 0.35:
		return ConfidenceHigh
	case distance <= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func earlierInterests(all []string, current string) []string {
	out := make([]string, 0, len(all))
	for _, in := range all {
		if !strings.EqualFold(in, current) {
			out = append(out, in)
		}
	}
	return out
}

func codesOf(recs []Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Code
	}
	return out
}
