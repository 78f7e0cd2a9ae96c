package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/ranking"
	"go.uber.org/zap"
)

// RankedPost is one entry of the post ranking snapshot.
type RankedPost struct {
	PostID       int64   `json:"postId"`
	Score        int64   `json:"score"`
	CommentCount int64   `json:"commentCount"`
	ViewCount    int64   `json:"viewCount"`
	HotScore     float64 `json:"hotScore"`
	RankingScore float64 `json:"rankingScore"`
	// LoggedScore is the net vote count read from the interaction log,
	// reported when the score source is the log.
	LoggedScore *int64 `json:"loggedScore,omitempty"`
	// Skipped marks posts voted on while the pass ran; their stored
	// scores come from the live re-rank instead.
	Skipped bool `json:"skipped,omitempty"`
}

// RankingSnapshot is the stored result of the post ranking sub-job.
type RankingSnapshot struct {
	ScoreSource string       `json:"scoreSource"`
	Posts       []RankedPost `json:"posts"`
	// LogDrift counts posts whose log-derived net votes differ from
	// their voter sets.
	LogDrift int `json:"logDrift"`
	// Realigned counts posts whose stored score was rewritten from their
	// voter sets.
	Realigned int `json:"realigned"`
	// Recounted counts posts whose comment or view counter was raised to
	// the logged count.
	Recounted int `json:"recounted"`
	Skipped   int `json:"skipped"`
}

// raised returns logged when it exceeds stored, or nil.
func raised(stored, logged int64) *int64 {
	if logged > stored {
		return &logged
	}
	return nil
}

func (c *Coordinator) rankPosts(ctx context.Context, log *zap.Logger) (*result, error) {
	now := c.now().UTC()
	since := c.engine.WindowStart(now)

	posts, err := c.stores.Posts.ListRankablePosts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	counts, err := c.stores.Interactions.CountPostActionsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count post interactions: %w", err)
	}

	snapshot := RankingSnapshot{ScoreSource: c.opts.ScoreSource, Posts: make([]RankedPost, 0, len(posts))}
	res := &result{}

	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logged := counts[p.ID]
		voteScore := int64(len(p.Upvoters) - len(p.Downvoters))
		logScore := logged[models.ActionVotePostUp] - logged[models.ActionVotePostDown]
		if logScore != voteScore {
			snapshot.LogDrift++
		}

		update := RankingUpdate{
			PostID:          p.ID,
			ExpectedVersion: p.Version,
			CommentCount:    raised(p.CommentCount, logged[models.ActionCommentPost]),
			ViewCount:       raised(p.ViewCount, logged[models.ActionViewPost]),
		}
		if p.Score != voteScore {
			update.Score = &voteScore
		}

		// Scores are a pure function of the columns as they will be
		// stored, so a recompute on read agrees with them.
		sig := ranking.Signals{
			Score:        voteScore,
			CommentCount: p.CommentCount,
			ViewCount:    p.ViewCount,
			CreatedAt:    p.CreatedAt,
		}
		if update.CommentCount != nil {
			sig.CommentCount = *update.CommentCount
		}
		if update.ViewCount != nil {
			sig.ViewCount = *update.ViewCount
		}
		update.Scores = c.engine.Compute(sig, now)

		entry := RankedPost{
			PostID:       p.ID,
			Score:        voteScore,
			CommentCount: sig.CommentCount,
			ViewCount:    sig.ViewCount,
			HotScore:     update.Scores.Hot,
			RankingScore: update.Scores.Ranking,
		}
		if c.opts.ScoreSource == ScoreFromInteractions {
			entry.LoggedScore = &logScore
		}

		saved, err := c.stores.Posts.SaveRanking(ctx, update)
		if err != nil {
			res.failed++
			log.Warn("Failed to store post ranking", zap.Int64("post_id", p.ID), zap.Error(err))
			continue
		}
		if !saved {
			snapshot.Skipped++
			entry.Skipped = true
			snapshot.Posts = append(snapshot.Posts, entry)
			continue
		}
		if update.Score != nil {
			snapshot.Realigned++
		}
		if update.CommentCount != nil || update.ViewCount != nil {
			snapshot.Recounted++
		}

		res.processed++
		snapshot.Posts = append(snapshot.Posts, entry)
	}

	sort.SliceStable(snapshot.Posts, func(i, j int) bool {
		return snapshot.Posts[i].RankingScore > snapshot.Posts[j].RankingScore
	})
	if snapshot.LogDrift > 0 {
		log.Info("Interaction log disagrees with voter sets",
			zap.Int("posts", snapshot.LogDrift),
			zap.String("score_source", c.opts.ScoreSource),
		)
	}

	res.data = snapshot
	return res, nil
}
