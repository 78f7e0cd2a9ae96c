package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/agora-forum/agora/internal/cache"
	"github.com/agora-forum/agora/internal/errs"
	"github.com/agora-forum/agora/internal/interactions"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/pkg/logging"
	"github.com/agora-forum/agora/pkg/telemetry"
	"go.uber.org/zap"
)

const (
	maxLimit = 100

	optOutMessage = "Personalized recommendations are disabled for this account"
)

// PostRecommendations is a served page of recommended posts.
type PostRecommendations struct {
	Posts    []models.Post `json:"posts"`
	Source   string        `json:"source"`
	Strategy string        `json:"strategy"`
	Message  string        `json:"message,omitempty"`
}

// CommunityRecommendation is a community with its tag overlap score.
type CommunityRecommendation struct {
	models.Community
	RecommendationScore int `json:"recommendationScore"`
}

// Selector chooses between recommendation strategies and answers the
// community and user recommendation queries.
type Selector struct {
	users       UserCatalog
	communities CommunityCatalog
	primary     Strategy
	fallback    Strategy
	pages       PageCache
	pageTTL     time.Duration
	logger      *zap.Logger
}

// NewSelector creates a selector. primary and pages may be nil.
func NewSelector(users UserCatalog, communities CommunityCatalog, primary, fallback Strategy, pages PageCache, pageTTL time.Duration) *Selector {
	return &Selector{
		users:       users,
		communities: communities,
		primary:     primary,
		fallback:    fallback,
		pages:       pages,
		pageTTL:     pageTTL,
		logger:      logging.WithComponent("recommend"),
	}
}

func (s *Selector) loadUser(ctx context.Context, userID int64) (*models.User, error) {
	if userID <= 0 {
		return nil, errs.Invalid("user id is required")
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, errs.NotFound("user %d not found", userID)
	}
	return user, nil
}

func checkPage(limit, offset int) error {
	if limit < 1 || limit > maxLimit {
		return errs.Invalid("limit must be between 1 and %d", maxLimit)
	}
	if offset < 0 {
		return errs.Invalid("offset must not be negative")
	}
	return nil
}

// RecommendPosts returns a page of posts for userID. The remote strategy
// is tried first; any failure or empty answer falls back to the local one.
func (s *Selector) RecommendPosts(ctx context.Context, userID int64, limit, offset int) (*PostRecommendations, error) {
	if err := checkPage(limit, offset); err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.RecommendationsOptOut {
		return &PostRecommendations{Posts: []models.Post{}, Source: "none", Strategy: "opt_out", Message: optOutMessage}, nil
	}

	key := cache.RecommendationsKey(userID, limit, offset)
	if s.pages != nil {
		var cached PostRecommendations
		if err := s.pages.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	result, err := s.selectPosts(ctx, user, limit, offset)
	if err != nil {
		return nil, err
	}
	telemetry.RecordRecommendation(ctx, "posts", result.Source)

	if s.pages != nil && len(result.Posts) > 0 {
		if err := s.pages.SetJSON(ctx, key, result, s.pageTTL); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			s.logger.Warn("Failed to cache recommendations", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return result, nil
}

func (s *Selector) selectPosts(ctx context.Context, user *models.User, limit, offset int) (*PostRecommendations, error) {
	if s.primary != nil {
		page, err := s.primary.RecommendPosts(ctx, user, limit, offset)
		if err == nil {
			return &PostRecommendations{Posts: page.Posts, Source: s.primary.Name(), Strategy: page.Strategy}, nil
		}
		reason := "error"
		if errors.Is(err, ErrNoResults) {
			reason = "empty"
		} else if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		telemetry.RecordRecommendFallback(ctx, reason)
		s.logger.Info("Falling back to local recommendations",
			zap.Int64("user_id", user.ID),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}

	page, err := s.fallback.RecommendPosts(ctx, user, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("local recommendations failed: %w", err)
	}
	return &PostRecommendations{Posts: page.Posts, Source: s.fallback.Name(), Strategy: page.Strategy}, nil
}

// RecommendCommunities returns public communities the user has not joined,
// scored by how many tags they share with communities the user interacted
// with or joined and with the user's interests.
func (s *Selector) RecommendCommunities(ctx context.Context, userID int64, limit int) ([]CommunityRecommendation, error) {
	if err := checkPage(limit, 0); err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.Int64("user_id", userID))

	joined, err := s.communities.MemberCommunityIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	interacted, err := s.communities.InteractedCommunityIDs(ctx, userID)
	if err != nil {
		log.Warn("Failed to load community interactions", zap.Error(err))
	}

	tags := newKeySet()
	if ids := unionIDs(joined, interacted); len(ids) > 0 {
		base, err := s.communities.GetCommunitiesByIDs(ctx, ids)
		if err != nil {
			log.Warn("Failed to load seed communities", zap.Error(err))
		}
		for _, c := range base {
			tags.add(c.Tags...)
		}
	}
	tags.add(user.InterestKeys()...)

	var out []CommunityRecommendation
	exclude := append([]int64(nil), joined...)
	if len(tags.keys) > 0 {
		candidates, err := s.communities.FindCommunitiesByTags(ctx, tags.keys, exclude, maxLimit)
		if err != nil {
			log.Warn("Failed to match communities by tag", zap.Error(err))
		}
		for _, c := range candidates {
			if c.IsPrivate {
				continue
			}
			score := 0
			for _, t := range c.Tags {
				if tags.has(t) {
					score++
				}
			}
			if score > 0 {
				out = append(out, CommunityRecommendation{Community: c, RecommendationScore: score})
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].RecommendationScore != out[j].RecommendationScore {
				return out[i].RecommendationScore > out[j].RecommendationScore
			}
			if out[i].MemberCount != out[j].MemberCount {
				return out[i].MemberCount > out[j].MemberCount
			}
			return out[i].ID < out[j].ID
		})
		if len(out) > limit {
			out = out[:limit]
		}
	}

	if len(out) < limit {
		for _, c := range out {
			exclude = append(exclude, c.ID)
		}
		popular, err := s.communities.PopularCommunities(ctx, exclude, limit-len(out))
		if err != nil {
			log.Warn("Failed to load popular communities", zap.Error(err))
		}
		for _, c := range popular {
			if !c.IsPrivate && len(out) < limit {
				out = append(out, CommunityRecommendation{Community: c})
			}
		}
	}

	telemetry.RecordRecommendation(ctx, "communities", "local")
	if out == nil {
		out = []CommunityRecommendation{}
	}
	return out, nil
}

// RecommendUsers returns users sharing an interest with userID that it
// does not already follow, backfilled with active users.
func (s *Selector) RecommendUsers(ctx context.Context, userID int64, limit int) ([]models.User, error) {
	if err := checkPage(limit, 0); err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.Int64("user_id", userID))

	following, err := s.users.FollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load follows: %w", err)
	}
	skip := make(map[int64]bool, len(following)+1)
	skip[userID] = true
	for _, id := range following {
		skip[id] = true
	}
	excluded := func() []int64 {
		ids := make([]int64, 0, len(skip))
		for id := range skip {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return ids
	}

	out := make([]models.User, 0, limit)
	add := func(users []models.User) {
		for _, u := range users {
			if len(out) < limit && !skip[u.ID] {
				skip[u.ID] = true
				out = append(out, u)
			}
		}
	}

	if interests := user.InterestKeys(); len(interests) > 0 {
		similar, err := s.users.FindUsersByInterests(ctx, interests, excluded(), limit)
		if err != nil {
			log.Warn("Failed to match users by interest", zap.Error(err))
		}
		add(similar)
	}
	if len(out) < limit {
		active, err := s.users.ActiveUsers(ctx, excluded(), limit-len(out))
		if err != nil {
			log.Warn("Failed to load active users", zap.Error(err))
		}
		add(active)
	}

	telemetry.RecordRecommendation(ctx, "users", "local")
	return out, nil
}

type keySet struct {
	keys []string
	seen map[string]bool
}

func newKeySet() *keySet { return &keySet{seen: make(map[string]bool)} }

func (k *keySet) add(keys ...string) {
	for _, key := range keys {
		key = interactions.NormalizeKey(key)
		if key != "" && !k.seen[key] {
			k.seen[key] = true
			k.keys = append(k.keys, key)
		}
	}
}

func (k *keySet) has(key string) bool { return k.seen[interactions.NormalizeKey(key)] }

func unionIDs(lists ...[]int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, list := range lists {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
