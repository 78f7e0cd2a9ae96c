package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/agora-forum/agora/internal/cache"
	"go.uber.org/zap"
)

// generateRecommendations matches each user's derived interests against
// post keys and keeps the best ranked matches as the user's nightly list.
func (c *Coordinator) generateRecommendations(ctx context.Context, log *zap.Logger) (*result, error) {
	users, err := c.stores.Users.ListRecommendationUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	snapshot := make(map[int64][]int64, len(users))
	res := &result{}

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if u.RecommendationsOptOut {
			continue
		}

		keys := make([]string, 0, len(u.CalculatedInterests)+len(u.CalculatedTopics))
		keys = append(keys, u.CalculatedInterests...)
		keys = append(keys, u.CalculatedTopics...)
		if len(keys) == 0 {
			res.processed++
			continue
		}

		ids, err := c.stores.Posts.FindRankedPostIDsByKeys(ctx, keys, u.ID, c.opts.RecommendationCap)
		if err != nil {
			res.failed++
			log.Warn("Failed to build recommendations", zap.Int64("user_id", u.ID), zap.Error(err))
			continue
		}

		res.processed++
		snapshot[u.ID] = ids
		if c.cache != nil && len(ids) > 0 {
			if err := c.cache.SetJSON(ctx, cache.NightlyRecommendationsKey(u.ID), ids, c.opts.SnapshotTTL); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
				log.Debug("Failed to cache recommendations", zap.Int64("user_id", u.ID), zap.Error(err))
			}
		}
	}

	res.data = snapshot
	return res, nil
}
