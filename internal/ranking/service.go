package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/agora-forum/agora/internal/errs"
	"github.com/agora-forum/agora/internal/interactions"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/pkg/logging"
	"go.uber.org/zap"
)

// Ranked list orderings
const (
	SortHot      = "hot"
	SortTrending = "trending"
	SortNew      = "new"
)

// ValidSort reports whether sort names a ranked list ordering.
func ValidSort(sort string) bool {
	return sort == SortHot || sort == SortTrending || sort == SortNew
}

// PostSignals are a post's ranking inputs plus what the interaction log
// needs to describe it.
type PostSignals struct {
	Signals
	PostID   int64
	AuthorID int64
	Category string
	Tags     []string
}

// PostStore reads and writes the ranking columns of posts. Get returns
// nil, nil when the post does not exist.
type PostStore interface {
	GetPostSignals(ctx context.Context, postID int64) (*PostSignals, error)
	IncrementViewCount(ctx context.Context, postID int64) (*PostSignals, error)
	UpdatePostScores(ctx context.Context, postID int64, scores Scores) error
}

// View is a post's ranking as returned to clients.
type View struct {
	PostID       int64     `json:"postId"`
	Score        int64     `json:"score"`
	CommentCount int64     `json:"commentCount"`
	ViewCount    int64     `json:"viewCount"`
	HotScore     float64   `json:"hotScore"`
	RankingScore float64   `json:"rankingScore"`
	ComputedAt   time.Time `json:"computedAt"`
}

// Service applies the engine to stored posts on request paths.
type Service struct {
	engine   *Engine
	store    PostStore
	recorder interactions.Recorder
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a ranking service.
func NewService(engine *Engine, store PostStore, recorder interactions.Recorder) *Service {
	if recorder == nil {
		recorder = interactions.Discard{}
	}
	return &Service{
		engine:   engine,
		store:    store,
		recorder: recorder,
		now:      time.Now,
		logger:   logging.GetLogger().With(zap.String("component", "ranking")),
	}
}

// Ranking recomputes a post's scores from its current counters without
// writing them back.
func (s *Service) Ranking(ctx context.Context, postID int64) (*View, error) {
	sig, err := s.store.GetPostSignals(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load post %d: %w", postID, err)
	}
	if sig == nil {
		return nil, errs.NotFound("post %d not found", postID)
	}
	return s.view(sig), nil
}

// TrackView increments a post's view count, soft re-ranks it and logs the
// view. Failing to store the new scores or to log is not an error.
func (s *Service) TrackView(ctx context.Context, userID, postID int64) (*View, error) {
	sig, err := s.store.IncrementViewCount(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to count view on post %d: %w", postID, err)
	}
	if sig == nil {
		return nil, errs.NotFound("post %d not found", postID)
	}

	v := s.view(sig)
	if err := s.store.UpdatePostScores(ctx, postID, Scores{Hot: v.HotScore, Ranking: v.RankingScore}); err != nil {
		s.logger.Warn("Failed to store soft re-rank", zap.Int64("post_id", postID), zap.Error(err))
	}

	if userID != 0 {
		target := postID
		s.recorder.Record(ctx, models.Interaction{
			UserID:     userID,
			Action:     models.ActionViewPost,
			TargetType: models.TargetPost,
			TargetID:   &target,
			Metadata:   interactions.PostMetadata(sig.Category, sig.Tags),
		})
	}

	return v, nil
}

func (s *Service) view(sig *PostSignals) *View {
	now := s.now()
	scores := s.engine.Compute(sig.Signals, now)
	return &View{
		PostID:       sig.PostID,
		Score:        sig.Score,
		CommentCount: sig.CommentCount,
		ViewCount:    sig.ViewCount,
		HotScore:     scores.Hot,
		RankingScore: scores.Ranking,
		ComputedAt:   now,
	}
}
