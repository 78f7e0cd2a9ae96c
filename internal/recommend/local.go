package recommend

import (
	"context"
	"time"

	"github.com/agora-forum/agora/internal/cache"
	"github.com/agora-forum/agora/internal/interactions"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/pkg/logging"
	"go.uber.org/zap"
)

var (
	historyActions = []models.Action{
		models.ActionLikePost,
		models.ActionSavePost,
		models.ActionCommentPost,
		models.ActionViewPost,
	}
	engagedActions = []models.Action{
		models.ActionLikePost,
		models.ActionSavePost,
	}
)

// LocalStrategy recommends posts sharing keys with the user's recent
// history and interests, then backfills with trending posts. Each step
// degrades independently: a failing query is logged and skipped.
type LocalStrategy struct {
	posts          PostCatalog
	precomputed    PageCache
	historySize    int
	trendingWindow time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// NewLocalStrategy creates the local heuristic. precomputed may be nil.
func NewLocalStrategy(posts PostCatalog, precomputed PageCache, historySize int, trendingWindow time.Duration) *LocalStrategy {
	return &LocalStrategy{
		posts:          posts,
		precomputed:    precomputed,
		historySize:    historySize,
		trendingWindow: trendingWindow,
		now:            time.Now,
		logger:         logging.WithComponent("recommend_local"),
	}
}

// Name implements Strategy.
func (s *LocalStrategy) Name() string { return "local" }

// RecommendPosts implements Strategy.
func (s *LocalStrategy) RecommendPosts(ctx context.Context, user *models.User, limit, offset int) (*Page, error) {
	need := offset + limit
	log := s.logger.With(zap.Int64("user_id", user.ID))

	engaged, err := s.posts.EngagedPostIDs(ctx, user.ID, engagedActions)
	if err != nil {
		log.Warn("Failed to load engaged posts", zap.Error(err))
	}
	skip := make(map[int64]bool, len(engaged))
	for _, id := range engaged {
		skip[id] = true
	}
	exclude := Exclusion{AuthorID: user.ID, PostIDs: engaged}

	var out []models.Post
	add := func(posts []models.Post) {
		for _, p := range posts {
			if len(out) >= need {
				return
			}
			if skip[p.ID] || p.AuthorID == user.ID {
				continue
			}
			skip[p.ID] = true
			out = append(out, p)
		}
	}
	strategy := "tag_overlap"

	if ids := s.nightlyList(ctx, user.ID); len(ids) > 0 {
		posts, err := s.posts.GetPostsByIDs(ctx, ids)
		if err != nil {
			log.Warn("Failed to load precomputed recommendations", zap.Error(err))
		} else {
			add(orderByIDs(posts, ids))
			strategy = "nightly"
		}
	}

	if len(out) < need {
		if keys := s.interestKeys(ctx, user, log); len(keys) > 0 {
			posts, err := s.posts.FindPostsByKeys(ctx, keys, exclude, need+len(out))
			if err != nil {
				log.Warn("Failed to match posts by interest", zap.Error(err))
			} else {
				add(posts)
			}
		}
	}

	if len(out) < need {
		posts, err := s.posts.TrendingPosts(ctx, s.now().Add(-s.trendingWindow), exclude, need+len(out))
		if err != nil {
			log.Warn("Failed to load trending posts", zap.Error(err))
		} else {
			if len(out) == 0 {
				strategy = "trending"
			}
			add(posts)
		}
	}

	return &Page{Posts: paginate(out, limit, offset), Strategy: strategy}, nil
}

func (s *LocalStrategy) nightlyList(ctx context.Context, userID int64) []int64 {
	if s.precomputed == nil {
		return nil
	}
	var ids []int64
	if err := s.precomputed.GetJSON(ctx, cache.NightlyRecommendationsKey(userID), &ids); err != nil {
		return nil
	}
	return ids
}

// interestKeys collects keys from recent post interactions, most recent
// first, followed by the user's explicit and derived interests.
func (s *LocalStrategy) interestKeys(ctx context.Context, user *models.User, log *zap.Logger) []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		k = interactions.NormalizeKey(k)
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	history, err := s.posts.RecentPostInteractions(ctx, user.ID, historyActions, s.historySize)
	if err != nil {
		log.Warn("Failed to load interaction history", zap.Error(err))
	}
	for _, ev := range history {
		add(interactions.Category(ev.Metadata))
		for _, t := range interactions.Topics(ev.Metadata) {
			add(t)
		}
	}
	for _, k := range user.InterestKeys() {
		add(k)
	}
	return keys
}
