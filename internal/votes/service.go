package votes

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/agora-forum/agora/internal/errs"
	"github.com/agora-forum/agora/internal/interactions"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/ranking"
	"github.com/agora-forum/agora/pkg/logging"
	"github.com/agora-forum/agora/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Subject is a votable entity as loaded for a vote.
type Subject struct {
	Kind     models.TargetType
	ID       int64
	AuthorID int64
	// PostID is the post a comment belongs to; for posts it equals ID.
	PostID   int64
	Category string
	Tags     []string
	Tally    models.VoteTally
	// Signals is set for posts and feeds the soft re-rank.
	Signals *ranking.Signals
}

// Store loads tallies and writes them back conditionally.
type Store interface {
	// LoadVoteSubject returns nil, nil when the entity does not exist.
	LoadVoteSubject(ctx context.Context, kind models.TargetType, id int64) (*Subject, error)
	// SwapVoteTally stores next (and scores, when non-nil) only if the
	// stored version still equals expected. It reports whether it wrote.
	SwapVoteTally(ctx context.Context, kind models.TargetType, id, expected int64, next models.VoteTally, scores *ranking.Scores) (bool, error)
}

// Event describes a committed vote.
type Event struct {
	VoterID int64
	Subject Subject
	Outcome Outcome
}

// Notifier is told about committed votes. It must not block.
type Notifier interface {
	NotifyVote(ctx context.Context, ev Event)
}

// Result is the client-visible outcome of a vote.
type Result struct {
	ID           int64     `json:"id"`
	Action       Action    `json:"action"`
	Direction    Direction `json:"direction"`
	Switched     bool      `json:"switched"`
	Score        int64     `json:"score"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`
	HotScore     *float64  `json:"hotScore,omitempty"`
	RankingScore *float64  `json:"rankingScore,omitempty"`
}

// Service applies votes with an optimistic compare-and-swap on the tally
// version, retrying lost races up to maxRetries times.
type Service struct {
	store      Store
	engine     *ranking.Engine
	recorder   interactions.Recorder
	notifier   Notifier
	maxRetries int
	now        func() time.Time
	logger     *zap.Logger
}

// NewService creates a vote service. recorder and notifier may be nil.
func NewService(store Store, engine *ranking.Engine, recorder interactions.Recorder, notifier Notifier, maxRetries int) *Service {
	if recorder == nil {
		recorder = interactions.Discard{}
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Service{
		store:      store,
		engine:     engine,
		recorder:   recorder,
		notifier:   notifier,
		maxRetries: maxRetries,
		now:        time.Now,
		logger:     logging.GetLogger().With(zap.String("component", "votes")),
	}
}

// VotePost applies voterID's vote on a post.
func (s *Service) VotePost(ctx context.Context, voterID, postID int64, direction string) (*Result, error) {
	return s.vote(ctx, models.TargetPost, voterID, postID, direction)
}

// VoteComment applies voterID's vote on a comment.
func (s *Service) VoteComment(ctx context.Context, voterID, commentID int64, direction string) (*Result, error) {
	return s.vote(ctx, models.TargetComment, voterID, commentID, direction)
}

func (s *Service) vote(ctx context.Context, kind models.TargetType, voterID, id int64, direction string) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "votes.apply")
	defer span.End()
	span.SetAttributes(attribute.String("target", string(kind)), attribute.Int64("id", id))

	d, err := ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	if voterID == 0 {
		return nil, errs.Forbidden("voting requires an authenticated user")
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		subj, err := s.store.LoadVoteSubject(ctx, kind, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s %d: %w", kind, id, err)
		}
		if subj == nil {
			return nil, errs.NotFound("%s %d not found", kind, id)
		}

		out := Apply(subj.Tally, voterID, d)
		out.Tally.Version = subj.Tally.Version + 1

		var scores *ranking.Scores
		if subj.Signals != nil && s.engine != nil {
			sig := *subj.Signals
			sig.Score = out.Tally.Score
			sc := s.engine.Compute(sig, s.now())
			scores = &sc
		}

		ok, err := s.store.SwapVoteTally(ctx, kind, id, subj.Tally.Version, out.Tally, scores)
		if err != nil {
			return nil, fmt.Errorf("failed to store vote on %s %d: %w", kind, id, err)
		}
		if ok {
			s.afterCommit(ctx, voterID, *subj, out)
			return newResult(id, out, scores), nil
		}

		telemetry.RecordVoteConflict(ctx, string(kind))
		s.logger.Debug("Vote lost a concurrent update, retrying",
			zap.String("target", string(kind)),
			zap.Int64("id", id),
			zap.Int("attempt", attempt+1),
		)
		if err := sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}

	s.logger.Warn("Vote gave up after repeated conflicts",
		zap.String("target", string(kind)),
		zap.Int64("id", id),
		zap.Int("attempts", s.maxRetries),
	)
	return nil, errs.Conflict("too many concurrent votes on %s %d, try again", kind, id)
}

func (s *Service) afterCommit(ctx context.Context, voterID int64, subj Subject, out Outcome) {
	telemetry.RecordVote(ctx, string(subj.Kind), string(out.Action))

	target := subj.ID
	meta := interactions.PostMetadata(subj.Category, subj.Tags)
	meta["direction"] = string(out.Direction)
	if out.Switched {
		meta["switched"] = true
	}
	if subj.Kind == models.TargetComment {
		meta["postId"] = subj.PostID
	}
	s.recorder.Record(ctx, models.Interaction{
		UserID:     voterID,
		Action:     logAction(subj.Kind, out),
		TargetType: subj.Kind,
		TargetID:   &target,
		Metadata:   meta,
	})

	if s.notifier != nil && out.Action == ActionVote && out.Direction == Up && subj.AuthorID != voterID {
		s.notifier.NotifyVote(ctx, Event{VoterID: voterID, Subject: subj, Outcome: out})
	}
}

func logAction(kind models.TargetType, out Outcome) models.Action {
	if kind == models.TargetComment {
		switch {
		case out.Action == ActionUnvote:
			return models.ActionRemoveVoteComment
		case out.Direction == Up:
			return models.ActionVoteCommentUp
		default:
			return models.ActionVoteCommentDown
		}
	}
	switch {
	case out.Action == ActionUnvote:
		return models.ActionRemoveVotePost
	case out.Direction == Up:
		return models.ActionVotePostUp
	default:
		return models.ActionVotePostDown
	}
}

func newResult(id int64, out Outcome, scores *ranking.Scores) *Result {
	r := &Result{
		ID:        id,
		Action:    out.Action,
		Direction: out.Direction,
		Switched:  out.Switched,
		Score:     out.Tally.Score,
		Upvotes:   len(out.Tally.Upvoters),
		Downvotes: len(out.Tally.Downvoters),
	}
	if scores != nil {
		hot, rank := scores.Hot, scores.Ranking
		r.HotScore = &hot
		r.RankingScore = &rank
	}
	return r
}

// sleepBackoff waits a short, growing, jittered interval between retries.
func sleepBackoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt+1)*2*time.Millisecond + rand.N(3*time.Millisecond)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
