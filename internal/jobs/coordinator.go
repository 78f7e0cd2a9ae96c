// Package jobs runs the nightly batch: interest aggregation, trending
// communities, post re-ranking and precomputed recommendations.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agora-forum/agora/internal/interactions"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/ranking"
	"github.com/agora-forum/agora/pkg/config"
	"github.com/agora-forum/agora/pkg/logging"
	"github.com/agora-forum/agora/pkg/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// UserStore is the user side of the batch.
type UserStore interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
	SetCalculatedInterests(ctx context.Context, userID int64, interests, topics []string, at time.Time) error
	ListRecommendationUsers(ctx context.Context) ([]models.User, error)
}

// ActionCounts counts log records per action for one target.
type ActionCounts map[models.Action]int64

// InteractionStore reads the interaction log.
type InteractionStore interface {
	ListUserInteractionsSince(ctx context.Context, userID int64, since time.Time) ([]models.Interaction, error)
	ListTargetInteractionsSince(ctx context.Context, targetType models.TargetType, since time.Time) ([]models.Interaction, error)
	CountPostActionsSince(ctx context.Context, since time.Time) (map[int64]ActionCounts, error)
}

// CommunityStore writes trending figures.
type CommunityStore interface {
	// ApplyTrending stores trends and resets every community not listed.
	ApplyTrending(ctx context.Context, trends []CommunityTrend, at time.Time) error
}

// RankingUpdate is the derived state written back to one post.
type RankingUpdate struct {
	PostID          int64
	ExpectedVersion int64
	// Score is set when the stored score disagrees with the voter sets.
	Score *int64
	// CommentCount and ViewCount are set when the interaction log counts
	// more than the stored counter; counters are only ever raised.
	CommentCount *int64
	ViewCount    *int64
	Scores       ranking.Scores
}

// PostStore reads rankable posts and writes their derived scores.
type PostStore interface {
	ListRankablePosts(ctx context.Context, createdSince time.Time) ([]models.Post, error)
	// SaveRanking writes only if the post's vote version is unchanged and
	// reports whether it did.
	SaveRanking(ctx context.Context, update RankingUpdate) (bool, error)
	FindRankedPostIDsByKeys(ctx context.Context, keys []string, excludeAuthor int64, limit int) ([]int64, error)
}

// RunStore persists JobRun records.
type RunStore interface {
	CreateJobRun(ctx context.Context, run *models.JobRun) error
	FinishJobRun(ctx context.Context, run *models.JobRun) error
	PurgeJobRuns(ctx context.Context, before time.Time) (int64, error)
	ListJobRuns(ctx context.Context, jobType models.JobType, limit int) ([]models.JobRun, error)
}

// SnapshotCache receives the per-user recommendation lists.
type SnapshotCache interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Stores groups the collaborators of the coordinator.
type Stores struct {
	Users        UserStore
	Interactions InteractionStore
	Communities  CommunityStore
	Posts        PostStore
	Runs         RunStore
}

// Score sources for the post ranking sub-job.
const (
	ScoreFromVotes        = "votes"
	ScoreFromInteractions = "interactions"
)

// Options tune the batch.
type Options struct {
	InterestWindow    time.Duration
	TrendingWindow    time.Duration
	RecommendationCap int
	Retention         time.Duration
	ScoreSource       string
	Weights           interactions.Weights
	SnapshotTTL       time.Duration
}

// DefaultOptions returns the reference batch settings.
func DefaultOptions() Options {
	return Options{
		InterestWindow:    30 * 24 * time.Hour,
		TrendingWindow:    7 * 24 * time.Hour,
		RecommendationCap: 50,
		Retention:         30 * 24 * time.Hour,
		ScoreSource:       ScoreFromVotes,
		Weights:           interactions.DefaultWeights(),
		SnapshotTTL:       26 * time.Hour,
	}
}

// OptionsFromConfig builds Options from configuration.
func OptionsFromConfig(jobs *config.JobsConfig, rank *config.RankingConfig) (Options, error) {
	table, err := config.ParseActionWeights(jobs.ActionWeights)
	if err != nil {
		return Options{}, err
	}
	opts := DefaultOptions()
	opts.InterestWindow = time.Duration(jobs.InterestWindowDays) * 24 * time.Hour
	opts.TrendingWindow = time.Duration(jobs.TrendingWindowDays) * 24 * time.Hour
	opts.RecommendationCap = jobs.RecommendationCap
	opts.Retention = jobs.Retention
	opts.ScoreSource = rank.ScoreSource
	opts.Weights = NewWeightsOrDefault(table)
	return opts, nil
}

// NewWeightsOrDefault falls back to the reference table when table is empty.
func NewWeightsOrDefault(table map[string]float64) interactions.Weights {
	if len(table) == 0 {
		return interactions.DefaultWeights()
	}
	return interactions.NewWeights(table)
}

// Summary describes one nightly invocation.
type Summary struct {
	RunID  uuid.UUID       `json:"runId"`
	Runs   []models.JobRun `json:"runs"`
	Purged int64           `json:"purged"`
}

// Failed returns the job types that did not complete.
func (s *Summary) Failed() []models.JobType {
	var failed []models.JobType
	for _, r := range s.Runs {
		if r.Status != models.JobStatusCompleted {
			failed = append(failed, r.JobType)
		}
	}
	return failed
}

// result is what a sub-job hands back for its JobRun.
type result struct {
	data      interface{}
	processed int
	failed    int
}

type subJob struct {
	kind models.JobType
	run  func(ctx context.Context, log *zap.Logger) (*result, error)
}

// Coordinator runs the nightly sub-jobs in sequence.
type Coordinator struct {
	stores Stores
	engine *ranking.Engine
	cache  SnapshotCache
	opts   Options
	now    func() time.Time
	newID  func() uuid.UUID
}

// NewCoordinator creates a coordinator. cache may be nil.
func NewCoordinator(stores Stores, engine *ranking.Engine, cache SnapshotCache, opts Options) *Coordinator {
	if opts.Weights == nil {
		opts.Weights = interactions.DefaultWeights()
	}
	return &Coordinator{
		stores: stores,
		engine: engine,
		cache:  cache,
		opts:   opts,
		now:    time.Now,
		newID:  uuid.New,
	}
}

func (c *Coordinator) subJobs() []subJob {
	return []subJob{
		{models.JobUserInterests, c.aggregateInterests},
		{models.JobCommunityTrending, c.computeTrending},
		{models.JobPostRanking, c.rankPosts},
		{models.JobRecommendations, c.generateRecommendations},
	}
}

// RunNightly runs every sub-job once, recording a JobRun for each. A
// failing sub-job does not stop the ones after it. The returned error
// joins the sub-job failures; the summary is always returned.
func (c *Coordinator) RunNightly(ctx context.Context) (*Summary, error) {
	runID := c.newID()
	log := logging.WithRun("jobs", runID.String())
	log.Info("Nightly batch starting")
	started := c.now()

	summary := &Summary{RunID: runID}
	var failures []error
	for _, job := range c.subJobs() {
		run := c.runSubJob(ctx, runID, job, log)
		summary.Runs = append(summary.Runs, run)
		if run.Status == models.JobStatusFailed {
			failures = append(failures, fmt.Errorf("%s: %s", job.kind, run.Metadata.Data().Error))
		}
	}

	if c.opts.Retention > 0 {
		purged, err := c.stores.Runs.PurgeJobRuns(ctx, c.now().Add(-c.opts.Retention))
		if err != nil {
			log.Warn("Failed to purge old job runs", zap.Error(err))
		} else {
			summary.Purged = purged
		}
	}

	log.Info("Nightly batch finished",
		zap.Duration("elapsed", c.now().Sub(started)),
		zap.Int("failed", len(failures)),
		zap.Int64("purged", summary.Purged),
	)
	return summary, errors.Join(failures...)
}

// Runs lists recent JobRuns, optionally of one type.
func (c *Coordinator) Runs(ctx context.Context, jobType models.JobType, limit int) ([]models.JobRun, error) {
	return c.stores.Runs.ListJobRuns(ctx, jobType, limit)
}

func (c *Coordinator) runSubJob(ctx context.Context, runID uuid.UUID, job subJob, parent *zap.Logger) models.JobRun {
	ctx, span := telemetry.StartSpan(ctx, "jobs."+string(job.kind))
	defer span.End()

	log := parent.With(zap.String("job_type", string(job.kind)))
	start := c.now().UTC()
	meta := models.JobRunMetadata{StartTime: start}
	run := &models.JobRun{
		ID:       c.newID(),
		RunID:    runID,
		JobType:  job.kind,
		Date:     time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		Status:   models.JobStatusRunning,
		Metadata: datatypes.NewJSONType(meta),
	}
	if err := c.stores.Runs.CreateJobRun(ctx, run); err != nil {
		log.Warn("Failed to record job start", zap.Error(err))
	}

	res, err := c.safeRun(ctx, job, log)

	end := c.now().UTC()
	meta.EndTime = &end
	meta.DurationMs = end.Sub(start).Milliseconds()
	if res != nil {
		meta.ProcessedCount = res.processed
		meta.FailedCount = res.failed
	}

	if err == nil && res != nil {
		data, mErr := json.Marshal(res.data)
		if mErr != nil {
			err = fmt.Errorf("failed to encode result snapshot: %w", mErr)
		} else {
			run.Data = datatypes.JSON(data)
		}
	}

	if err != nil {
		run.Status = models.JobStatusFailed
		meta.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Nightly sub-job failed", zap.Error(err), zap.Duration("elapsed", end.Sub(start)))
	} else {
		run.Status = models.JobStatusCompleted
		log.Info("Nightly sub-job completed",
			zap.Int("processed", meta.ProcessedCount),
			zap.Int("failed", meta.FailedCount),
			zap.Duration("elapsed", end.Sub(start)),
		)
	}
	span.SetAttributes(
		attribute.String("status", string(run.Status)),
		attribute.Int("processed", meta.ProcessedCount),
	)
	run.Metadata = datatypes.NewJSONType(meta)

	if err := c.stores.Runs.FinishJobRun(ctx, run); err != nil {
		log.Warn("Failed to record job result", zap.Error(err))
	}
	telemetry.RecordJobRun(ctx, string(job.kind), string(run.Status), end.Sub(start))
	return *run
}

func (c *Coordinator) safeRun(ctx context.Context, job subJob, log *zap.Logger) (res *result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return job.run(ctx, log)
}
