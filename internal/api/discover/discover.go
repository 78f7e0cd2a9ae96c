// Package discover serves recommendation queries over JSON-RPC.
package discover

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/agora-forum/agora/internal/api/reqctx"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/recommend"
)

// Recommender answers recommendation queries.
type Recommender interface {
	RecommendPosts(ctx context.Context, userID int64, limit, offset int) (*recommend.PostRecommendations, error)
	RecommendCommunities(ctx context.Context, userID int64, limit int) ([]recommend.CommunityRecommendation, error)
	RecommendUsers(ctx context.Context, userID int64, limit int) ([]models.User, error)
}

// API provides recommendation API methods
type API struct {
	recommender Recommender
}

// NewAPI creates a new discover API
func NewAPI(recommender Recommender) *API {
	return &API{recommender: recommender}
}

func args(ctx *gin.Context, params json.RawMessage, defLimit int) (int64, reqctx.Params, int, error) {
	userID, err := reqctx.RequireUser(ctx.Request.Context())
	if err != nil {
		return 0, nil, 0, err
	}
	p, err := reqctx.ParseParams(params)
	if err != nil {
		return 0, nil, 0, err
	}
	limit, err := p.Int("limit", defLimit, 1, 100)
	if err != nil {
		return 0, nil, 0, err
	}
	return userID, p, limit, nil
}

// Posts handles recommend.posts
func (a *API) Posts(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	userID, p, limit, err := args(ctx, params, 20)
	if err != nil {
		return nil, err
	}
	offset, err := p.Int("offset", 0, 0, 1000)
	if err != nil {
		return nil, err
	}
	return a.recommender.RecommendPosts(ctx.Request.Context(), userID, limit, offset)
}

// Communities handles recommend.communities
func (a *API) Communities(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	userID, _, limit, err := args(ctx, params, 10)
	if err != nil {
		return nil, err
	}
	return a.recommender.RecommendCommunities(ctx.Request.Context(), userID, limit)
}

// Users handles recommend.users
func (a *API) Users(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	userID, _, limit, err := args(ctx, params, 10)
	if err != nil {
		return nil, err
	}
	return a.recommender.RecommendUsers(ctx.Request.Context(), userID, limit)
}
