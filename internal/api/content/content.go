// Package content serves voting, view tracking, ranked listings and
// notifications over JSON-RPC.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agora-forum/agora/internal/api/reqctx"
	"github.com/agora-forum/agora/internal/cache"
	"github.com/agora-forum/agora/internal/errs"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/notify"
	"github.com/agora-forum/agora/internal/ranking"
	"github.com/agora-forum/agora/internal/votes"
	"github.com/agora-forum/agora/pkg/logging"
)

// Voter applies votes.
type Voter interface {
	VotePost(ctx context.Context, voterID, postID int64, direction string) (*votes.Result, error)
	VoteComment(ctx context.Context, voterID, commentID int64, direction string) (*votes.Result, error)
}

// Ranker recomputes post scores.
type Ranker interface {
	Ranking(ctx context.Context, postID int64) (*ranking.View, error)
	TrackView(ctx context.Context, userID, postID int64) (*ranking.View, error)
}

// RankedLister pages through posts under a sort.
type RankedLister interface {
	ListRanked(ctx context.Context, sort string, communityID int64, limit, offset int) ([]models.Post, error)
}

// Inbox reads a user's notifications.
type Inbox interface {
	List(ctx context.Context, userID int64, minScore int16, lastID int64, limit int) ([]notify.Item, error)
	Unread(ctx context.Context, userID int64, minScore int16) (*notify.Unread, error)
	MarkRead(ctx context.Context, userID int64) (time.Time, error)
}

// ListCache caches ranked pages.
type ListCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// API provides content API methods
type API struct {
	voter  Voter
	ranker Ranker
	posts  RankedLister
	inbox  Inbox
	cache  ListCache
	logger *zap.Logger
}

// NewAPI creates the content API. listCache may be nil.
func NewAPI(voter Voter, ranker Ranker, posts RankedLister, inbox Inbox, listCache ListCache) *API {
	return &API{
		voter:  voter,
		ranker: ranker,
		posts:  posts,
		inbox:  inbox,
		cache:  listCache,
		logger: logging.WithComponent("content-api"),
	}
}

func voteArgs(ctx *gin.Context, params json.RawMessage) (int64, int64, string, error) {
	voterID, err := reqctx.RequireUser(ctx.Request.Context())
	if err != nil {
		return 0, 0, "", err
	}
	p, err := reqctx.ParseParams(params)
	if err != nil {
		return 0, 0, "", err
	}
	id, err := p.ID("id")
	if err != nil {
		return 0, 0, "", err
	}
	direction, err := p.String("direction", "")
	if err != nil {
		return 0, 0, "", err
	}
	return voterID, id, direction, nil
}

// VotePost handles posts.vote
func (a *API) VotePost(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	voterID, id, direction, err := voteArgs(ctx, params)
	if err != nil {
		return nil, err
	}
	return a.voter.VotePost(ctx.Request.Context(), voterID, id, direction)
}

// VoteComment handles comments.vote
func (a *API) VoteComment(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	voterID, id, direction, err := voteArgs(ctx, params)
	if err != nil {
		return nil, err
	}
	return a.voter.VoteComment(ctx.Request.Context(), voterID, id, direction)
}

// TrackView handles posts.track_view. Anonymous views count but are not
// attributed to a user.
func (a *API) TrackView(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	p, err := reqctx.ParseParams(params)
	if err != nil {
		return nil, err
	}
	id, err := p.ID("id")
	if err != nil {
		return nil, err
	}
	userID := reqctx.FromContext(ctx.Request.Context()).UserID
	return a.ranker.TrackView(ctx.Request.Context(), userID, id)
}

// GetRanking handles posts.get_ranking
func (a *API) GetRanking(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	p, err := reqctx.ParseParams(params)
	if err != nil {
		return nil, err
	}
	id, err := p.ID("id")
	if err != nil {
		return nil, err
	}
	return a.ranker.Ranking(ctx.Request.Context(), id)
}

// GetRanked handles posts.get_ranked
func (a *API) GetRanked(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	p, err := reqctx.ParseParams(params)
	if err != nil {
		return nil, err
	}
	sort, err := p.String("sort", ranking.SortHot)
	if err != nil {
		return nil, err
	}
	if !ranking.ValidSort(sort) {
		return nil, errs.Invalid("invalid sort type: %s", sort)
	}
	communityID, _, err := p.Int64("community_id")
	if err != nil {
		return nil, err
	}
	limit, err := p.Int("limit", 20, 1, 100)
	if err != nil {
		return nil, err
	}
	offset, err := p.Int("offset", 0, 0, 10000)
	if err != nil {
		return nil, err
	}

	rctx := ctx.Request.Context()
	key := cache.RankedKey(sort, communityID, limit, offset)
	if a.cache != nil {
		var cached []models.Post
		if err := a.cache.GetJSON(rctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	posts, err := a.posts.ListRanked(rctx, sort, communityID, limit, offset)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []models.Post{}
	}

	if a.cache != nil {
		if err := a.cache.SetJSON(rctx, key, posts, rankedTTL(sort)); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			a.logger.Warn("Failed to cache ranked posts", zap.String("sort", sort), zap.Error(err))
		}
	}
	return posts, nil
}

// defaultMinScore hides low-value notifications unless asked for.
const defaultMinScore = 25

// rankedTTL returns how long a ranked page may be served from cache.
// Votes re-rank posts immediately, so hot pages expire quickly.
func rankedTTL(sort string) time.Duration {
	switch sort {
	case ranking.SortNew:
		return 3 * time.Second
	case ranking.SortHot:
		return 30 * time.Second
	default:
		return 300 * time.Second
	}
}

func inboxArgs(ctx *gin.Context, params json.RawMessage) (int64, reqctx.Params, int16, error) {
	userID, err := reqctx.RequireUser(ctx.Request.Context())
	if err != nil {
		return 0, nil, 0, err
	}
	p, err := reqctx.ParseParams(params)
	if err != nil {
		return 0, nil, 0, err
	}
	minScore, err := p.Int("min_score", defaultMinScore, 0, 100)
	if err != nil {
		return 0, nil, 0, err
	}
	return userID, p, int16(minScore), nil
}

// ListNotifications handles notifications.list
func (a *API) ListNotifications(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	userID, p, minScore, err := inboxArgs(ctx, params)
	if err != nil {
		return nil, err
	}
	lastID, _, err := p.Int64("last_id")
	if err != nil {
		return nil, err
	}
	limit, err := p.Int("limit", 100, 1, 100)
	if err != nil {
		return nil, err
	}
	return a.inbox.List(ctx.Request.Context(), userID, minScore, lastID, limit)
}

// UnreadNotifications handles notifications.unread
func (a *API) UnreadNotifications(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	userID, _, minScore, err := inboxArgs(ctx, params)
	if err != nil {
		return nil, err
	}
	return a.inbox.Unread(ctx.Request.Context(), userID, minScore)
}

// MarkRead handles notifications.mark_read
func (a *API) MarkRead(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	userID, err := reqctx.RequireUser(ctx.Request.Context())
	if err != nil {
		return nil, err
	}
	at, err := a.inbox.MarkRead(ctx.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return gin.H{"lastRead": at}, nil
}
