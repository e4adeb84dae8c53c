package orchestrator

import (
	"context"
	"time"

	"course-advisor-be/pkg/advisor/metrics"
	"course-advisor-be/pkg/aihttp"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// run tracks one request through the stage machine.
type run struct {
	o          *Orchestrator
	mode       string
	sessionID  string
	span       trace.Span
	stage      Stage
	stageStart time.Time
}

func (o *Orchestrator) begin(ctx context.Context, mode, sessionID string) (context.Context, *run) {
	ctx, span := o.tracer.Start(ctx, "advisor."+mode, trace.WithAttributes(
		attribute.String("advisor.mode", mode),
		attribute.String("advisor.session_id", sessionID),
	))
	r := &run{
		o:          o,
		mode:       mode,
		sessionID:  sessionID,
		span:       span,
		stage:      StageValidating,
		stageStart: time.Now(),
	}
	span.AddEvent(string(StageValidating))
	return ctx, r
}

func (r *run) enter(next Stage) {
	metrics.ObserveStage(string(r.stage), r.stageStart)
	r.o.logger.Debug("ADVISOR", "Stage transition", map[string]interface{}{
		"mode":       r.mode,
		"session_id": r.sessionID,
		"from":       string(r.stage),
		"to":         string(next),
	})
	r.span.AddEvent(string(next))
	r.stage = next
	r.stageStart = time.Now()
}

// fail moves to the fallback stage, recording which stage gave up and why.
func (r *run) fail(reason string, err error) {
	failed := r.stage
	metrics.FallbacksTotal.WithLabelValues(string(failed), reason).Inc()
	r.span.RecordError(err)
	r.span.SetAttributes(attribute.String("advisor.failed_stage", string(failed)))

	details := map[string]interface{}{
		"mode":       r.mode,
		"session_id": r.sessionID,
		"stage":      string(failed),
		"reason":     reason,
	}
	if err != nil {
		details["error"] = err.Error()
	}
	r.o.logger.Warn("ADVISOR", "Falling back to keyword matching", details)
	r.enter(StageFallback)
}

func (r *run) finish(searchMethod string, err error) {
	if err != nil {
		r.span.SetStatus(codes.Error, err.Error())
	} else {
		r.enter(StageDone)
		metrics.RecommendationsTotal.WithLabelValues(r.mode, searchMethod).Inc()
		r.span.SetAttributes(attribute.String("advisor.search_method", searchMethod))
	}
	r.span.End()
}

// withRetry calls fn and, when it fails with a transient provider error,
// waits a jittered delay and calls it exactly once more.
func (o *Orchestrator) withRetry(ctx context.Context, provider string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || !aihttp.IsTransient(err) || ctx.Err() != nil {
		return err
	}

	delay := o.backoff()
	metrics.ProviderRetries.WithLabelValues(provider).Inc()
	o.logger.Warn("ADVISOR", "Transient provider error, retrying once", map[string]interface{}{
		"provider": provider,
		"delay_ms": delay.Milliseconds(),
		"error":    err.Error(),
	})

	if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
		return err
	}
	return fn(ctx)
}

// backoff is the base delay with ±20% jitter.
func (o *Orchestrator) backoff() time.Duration {
	base := float64(o.cfg.RetryBaseDelay)
	return time.Duration(base * (0.8 + 0.4*o.jitter()))
}
