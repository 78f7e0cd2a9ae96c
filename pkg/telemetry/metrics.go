package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Instruments are the application counters. They are created against the
// global meter provider, so they pick up the Prometheus exporter once Init
// has run and are no-ops before that.
type Instruments struct {
	VotesApplied       otelmetric.Int64Counter
	VoteConflicts      otelmetric.Int64Counter
	InteractionDrops   otelmetric.Int64Counter
	NotificationDrops  otelmetric.Int64Counter
	JobRuns            otelmetric.Int64Counter
	JobDuration        otelmetric.Float64Histogram
	RecommendServed    otelmetric.Int64Counter
	RecommendFallbacks otelmetric.Int64Counter
}

var (
	instruments     *Instruments
	instrumentsOnce sync.Once
)

// Metrics returns the lazily created instrument set.
func Metrics() *Instruments {
	instrumentsOnce.Do(func() {
		meter := otel.Meter("github.com/agora-forum/agora")
		instruments = &Instruments{}
		instruments.VotesApplied, _ = meter.Int64Counter("agora_votes_applied_total",
			otelmetric.WithDescription("Votes committed, by target and action"))
		instruments.VoteConflicts, _ = meter.Int64Counter("agora_vote_conflicts_total",
			otelmetric.WithDescription("Optimistic tally write conflicts"))
		instruments.InteractionDrops, _ = meter.Int64Counter("agora_interaction_log_dropped_total",
			otelmetric.WithDescription("Interaction log records that could not be written"))
		instruments.NotificationDrops, _ = meter.Int64Counter("agora_notifications_dropped_total",
			otelmetric.WithDescription("Vote notifications that could not be written"))
		instruments.JobRuns, _ = meter.Int64Counter("agora_job_runs_total",
			otelmetric.WithDescription("Nightly sub-job runs, by type and status"))
		instruments.JobDuration, _ = meter.Float64Histogram("agora_job_duration_seconds",
			otelmetric.WithDescription("Nightly sub-job duration"), otelmetric.WithUnit("s"))
		instruments.RecommendServed, _ = meter.Int64Counter("agora_recommendations_served_total",
			otelmetric.WithDescription("Recommendation responses, by kind and source"))
		instruments.RecommendFallbacks, _ = meter.Int64Counter("agora_recommendation_fallbacks_total",
			otelmetric.WithDescription("Remote recommendation failures that fell back to the local strategy"))
	})
	return instruments
}

// RecordVote counts a committed vote.
func RecordVote(ctx context.Context, target, action string) {
	if c := Metrics().VotesApplied; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("target", target),
			attribute.String("action", action),
		))
	}
}

// RecordVoteConflict counts a lost compare-and-swap round.
func RecordVoteConflict(ctx context.Context, target string) {
	if c := Metrics().VoteConflicts; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("target", target)))
	}
}

// RecordInteractionDrop counts an interaction record that was not persisted.
func RecordInteractionDrop(ctx context.Context, reason string) {
	if c := Metrics().InteractionDrops; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
	}
}

// RecordNotificationDrop counts a vote notification that was not persisted.
func RecordNotificationDrop(ctx context.Context, reason string) {
	if c := Metrics().NotificationDrops; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
	}
}

// RecordJobRun counts a finished sub-job and its duration.
func RecordJobRun(ctx context.Context, jobType, status string, elapsed time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("job_type", jobType),
		attribute.String("status", status),
	)
	m := Metrics()
	if m.JobRuns != nil {
		m.JobRuns.Add(ctx, 1, attrs)
	}
	if m.JobDuration != nil {
		m.JobDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// RecordRecommendation counts a served recommendation response.
func RecordRecommendation(ctx context.Context, kind, source string) {
	if c := Metrics().RecommendServed; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("source", source),
		))
	}
}

// RecordRecommendFallback counts a remote failure that fell back locally.
func RecordRecommendFallback(ctx context.Context, reason string) {
	if c := Metrics().RecommendFallbacks; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
	}
}
