package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/agora-forum/agora/internal/interactions"
	"github.com/agora-forum/agora/internal/models"
	"go.uber.org/zap"
)

// snapshotKeys is how many keys per user the interests snapshot keeps.
const snapshotKeys = 10

// ScoredKey is an interest key with its accumulated weight.
type ScoredKey struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// ScoreInterests accumulates action weights per category and per topic
// over events. Keys whose total is not positive are dropped; the rest are
// ordered by score, highest first, then alphabetically.
func ScoreInterests(events []models.Interaction, weights interactions.Weights) (categories, topics []ScoredKey) {
	cat := make(map[string]float64)
	top := make(map[string]float64)

	for _, ev := range events {
		w := weights.Weight(ev.Action)
		if c := interactions.Category(ev.Metadata); c != "" {
			cat[c] += w
		}
		for _, t := range interactions.Topics(ev.Metadata) {
			top[t] += w
		}
	}

	return rankKeys(cat), rankKeys(top)
}

func rankKeys(scores map[string]float64) []ScoredKey {
	out := make([]ScoredKey, 0, len(scores))
	for k, s := range scores {
		if s > 0 {
			out = append(out, ScoredKey{Key: k, Score: s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func keysOf(scored []ScoredKey) []string {
	keys := make([]string, len(scored))
	for i, s := range scored {
		keys[i] = s.Key
	}
	return keys
}

type interestSnapshot struct {
	Interests []ScoredKey `json:"interests"`
	Topics    []ScoredKey `json:"topics"`
}

func truncate(keys []ScoredKey, n int) []ScoredKey {
	if len(keys) > n {
		return keys[:n]
	}
	return keys
}

// aggregateInterests replaces every user's calculated interests and topics
// with the ranking of their interactions in the interest window.
func (c *Coordinator) aggregateInterests(ctx context.Context, log *zap.Logger) (*result, error) {
	userIDs, err := c.stores.Users.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	now := c.now().UTC()
	since := now.Add(-c.opts.InterestWindow)
	snapshot := make(map[int64]interestSnapshot, len(userIDs))
	res := &result{}

	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		events, err := c.stores.Interactions.ListUserInteractionsSince(ctx, userID, since)
		if err != nil {
			res.failed++
			log.Warn("Failed to read interactions", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}

		categories, topics := ScoreInterests(events, c.opts.Weights)
		if err := c.stores.Users.SetCalculatedInterests(ctx, userID, keysOf(categories), keysOf(topics), now); err != nil {
			res.failed++
			log.Warn("Failed to store interests", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}

		res.processed++
		if len(categories) > 0 || len(topics) > 0 {
			snapshot[userID] = interestSnapshot{
				Interests: truncate(categories, snapshotKeys),
				Topics:    truncate(topics, snapshotKeys),
			}
		}
	}

	res.data = snapshot
	return res, nil
}
