package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/agora-forum/agora/internal/models"
	"go.uber.org/zap"
)

// CommunityTrend is one community's engagement over the trending window.
type CommunityTrend struct {
	CommunityID int64 `json:"communityId"`
	Joins       int64 `json:"joins"`
	Views       int64 `json:"views"`
	Engagement  int64 `json:"engagement"`
}

// TrendingScore is the value stored as the community's trending score.
func (t CommunityTrend) TrendingScore() int64 { return t.Engagement }

// WeeklyGrowth is the value stored as the community's weekly growth.
func (t CommunityTrend) WeeklyGrowth() int64 { return t.Joins }

// TrendsFromEvents groups community events by target and orders them by
// engagement, highest first, then by id.
func TrendsFromEvents(events []models.Interaction) []CommunityTrend {
	byID := make(map[int64]*CommunityTrend)
	for _, ev := range events {
		if ev.TargetType != models.TargetCommunity || ev.TargetID == nil {
			continue
		}
		t, ok := byID[*ev.TargetID]
		if !ok {
			t = &CommunityTrend{CommunityID: *ev.TargetID}
			byID[*ev.TargetID] = t
		}
		t.Engagement++
		switch ev.Action {
		case models.ActionJoinCommunity:
			t.Joins++
		case models.ActionViewCommunity:
			t.Views++
		}
	}

	trends := make([]CommunityTrend, 0, len(byID))
	for _, t := range byID {
		trends = append(trends, *t)
	}
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].Engagement != trends[j].Engagement {
			return trends[i].Engagement > trends[j].Engagement
		}
		return trends[i].CommunityID < trends[j].CommunityID
	})
	return trends
}

func (c *Coordinator) computeTrending(ctx context.Context, log *zap.Logger) (*result, error) {
	now := c.now().UTC()
	events, err := c.stores.Interactions.ListTargetInteractionsSince(ctx, models.TargetCommunity, now.Add(-c.opts.TrendingWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to read community interactions: %w", err)
	}

	trends := TrendsFromEvents(events)
	if err := c.stores.Communities.ApplyTrending(ctx, trends, now); err != nil {
		return nil, fmt.Errorf("failed to store trending scores: %w", err)
	}

	log.Debug("Trending communities computed", zap.Int("communities", len(trends)), zap.Int("events", len(events)))
	return &result{data: trends, processed: len(trends)}, nil
}
