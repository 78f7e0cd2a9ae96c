// Package recommend answers post, community and user recommendation
// queries, preferring the remote recommender for posts and falling back
// to local tag-overlap heuristics.
package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/agora-forum/agora/internal/models"
)

// ErrNoResults is returned by a strategy that has nothing to offer, which
// makes the selector try the next one.
var ErrNoResults = errors.New("no recommendations")

// Page is one page of recommended posts.
type Page struct {
	Posts    []models.Post
	Strategy string
}

// Strategy produces post recommendations for a user.
type Strategy interface {
	// Name is reported to clients as the recommendation source.
	Name() string
	RecommendPosts(ctx context.Context, user *models.User, limit, offset int) (*Page, error)
}

// Exclusion removes posts from candidate queries.
type Exclusion struct {
	AuthorID int64
	PostIDs  []int64
}

// PostCatalog is the post side of the entity store.
type PostCatalog interface {
	// GetPostsByIDs returns the active posts among ids, in any order.
	GetPostsByIDs(ctx context.Context, ids []int64) ([]models.Post, error)
	RecentPostInteractions(ctx context.Context, userID int64, actions []models.Action, limit int) ([]models.Interaction, error)
	EngagedPostIDs(ctx context.Context, userID int64, actions []models.Action) ([]int64, error)
	// FindPostsByKeys matches category, tags or topics against keys,
	// ordered by score then creation time, newest first.
	FindPostsByKeys(ctx context.Context, keys []string, exclude Exclusion, limit int) ([]models.Post, error)
	// TrendingPosts returns posts created since, ordered by score then views.
	TrendingPosts(ctx context.Context, since time.Time, exclude Exclusion, limit int) ([]models.Post, error)
}

// CommunityCatalog is the community side of the entity store.
type CommunityCatalog interface {
	InteractedCommunityIDs(ctx context.Context, userID int64) ([]int64, error)
	MemberCommunityIDs(ctx context.Context, userID int64) ([]int64, error)
	GetCommunitiesByIDs(ctx context.Context, ids []int64) ([]models.Community, error)
	// FindCommunitiesByTags returns public communities sharing a tag.
	FindCommunitiesByTags(ctx context.Context, tags []string, excludeIDs []int64, limit int) ([]models.Community, error)
	// PopularCommunities returns public communities by member count.
	PopularCommunities(ctx context.Context, excludeIDs []int64, limit int) ([]models.Community, error)
}

// UserCatalog is the user side of the entity store.
type UserCatalog interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	FollowingIDs(ctx context.Context, userID int64) ([]int64, error)
	// FindUsersByInterests returns users sharing an interest, ordered by
	// likes received then post count.
	FindUsersByInterests(ctx context.Context, interests []string, excludeIDs []int64, limit int) ([]models.User, error)
	// ActiveUsers returns recently active users under the same order.
	ActiveUsers(ctx context.Context, excludeIDs []int64, limit int) ([]models.User, error)
}

// PageCache stores served pages.
type PageCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

func paginate(posts []models.Post, limit, offset int) []models.Post {
	if offset >= len(posts) {
		return []models.Post{}
	}
	end := offset + limit
	if end > len(posts) {
		end = len(posts)
	}
	return posts[offset:end]
}

// orderByIDs returns posts in the order of ids, dropping ids with no post.
func orderByIDs(posts []models.Post, ids []int64) []models.Post {
	byID := make(map[int64]models.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	out := make([]models.Post, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	return out
}
