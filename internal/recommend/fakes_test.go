package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/agora-forum/agora/internal/models"
)

// catalog is an in-memory implementation of all three catalogs.
type catalog struct {
	posts        []models.Post
	history      []models.Interaction
	engaged      []int64
	communities  []models.Community
	members      map[int64][]int64
	interactedIn map[int64][]int64
	users        []models.User
	following    map[int64][]int64
}

func newCatalog() *catalog {
	return &catalog{
		members:      map[int64][]int64{},
		interactedIn: map[int64][]int64{},
		following:    map[int64][]int64{},
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func (c *catalog) GetPostsByIDs(_ context.Context, ids []int64) ([]models.Post, error) {
	var out []models.Post
	for i := len(c.posts) - 1; i >= 0; i-- {
		if contains(ids, c.posts[i].ID) {
			out = append(out, c.posts[i])
		}
	}
	return out, nil
}

func (c *catalog) RecentPostInteractions(_ context.Context, _ int64, _ []models.Action, limit int) ([]models.Interaction, error) {
	if len(c.history) > limit {
		return c.history[:limit], nil
	}
	return c.history, nil
}

func (c *catalog) EngagedPostIDs(context.Context, int64, []models.Action) ([]int64, error) {
	return c.engaged, nil
}

func (c *catalog) excluded(p models.Post, ex Exclusion) bool {
	return p.AuthorID == ex.AuthorID || contains(ex.PostIDs, p.ID)
}

func (c *catalog) FindPostsByKeys(_ context.Context, keys []string, ex Exclusion, limit int) ([]models.Post, error) {
	var out []models.Post
	for _, p := range c.posts {
		if !c.excluded(p, ex) && overlaps(p.Keys(), keys) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *catalog) TrendingPosts(_ context.Context, since time.Time, ex Exclusion, limit int) ([]models.Post, error) {
	var out []models.Post
	for _, p := range c.posts {
		if !c.excluded(p, ex) && !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ViewCount > out[j].ViewCount
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *catalog) InteractedCommunityIDs(_ context.Context, userID int64) ([]int64, error) {
	return c.interactedIn[userID], nil
}

func (c *catalog) MemberCommunityIDs(_ context.Context, userID int64) ([]int64, error) {
	return c.members[userID], nil
}

func (c *catalog) GetCommunitiesByIDs(_ context.Context, ids []int64) ([]models.Community, error) {
	var out []models.Community
	for _, cm := range c.communities {
		if contains(ids, cm.ID) {
			out = append(out, cm)
		}
	}
	return out, nil
}

func (c *catalog) FindCommunitiesByTags(_ context.Context, tags []string, excludeIDs []int64, limit int) ([]models.Community, error) {
	var out []models.Community
	for _, cm := range c.communities {
		if !cm.IsPrivate && !contains(excludeIDs, cm.ID) && overlaps(cm.Tags, tags) {
			out = append(out, cm)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *catalog) PopularCommunities(_ context.Context, excludeIDs []int64, limit int) ([]models.Community, error) {
	var out []models.Community
	for _, cm := range c.communities {
		if !cm.IsPrivate && !contains(excludeIDs, cm.ID) {
			out = append(out, cm)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MemberCount > out[j].MemberCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *catalog) GetUser(_ context.Context, id int64) (*models.User, error) {
	for i := range c.users {
		if c.users[i].ID == id {
			u := c.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (c *catalog) FollowingIDs(_ context.Context, userID int64) ([]int64, error) {
	return c.following[userID], nil
}

func sortByReputation(users []models.User) {
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].TotalLikesReceived != users[j].TotalLikesReceived {
			return users[i].TotalLikesReceived > users[j].TotalLikesReceived
		}
		return users[i].TotalPosts > users[j].TotalPosts
	})
}

func (c *catalog) FindUsersByInterests(_ context.Context, interests []string, excludeIDs []int64, limit int) ([]models.User, error) {
	var out []models.User
	for _, u := range c.users {
		if !contains(excludeIDs, u.ID) && overlaps(u.InterestKeys(), interests) {
			out = append(out, u)
		}
	}
	sortByReputation(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *catalog) ActiveUsers(_ context.Context, excludeIDs []int64, limit int) ([]models.User, error) {
	var out []models.User
	for _, u := range c.users {
		if u.ActiveAt != nil && !contains(excludeIDs, u.ID) {
			out = append(out, u)
		}
	}
	sortByReputation(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memoryPages is a map-backed PageCache.
type memoryPages struct {
	data map[string]interface{}
	sets int
}

func newMemoryPages() *memoryPages { return &memoryPages{data: map[string]interface{}{}} }

func (m *memoryPages) GetJSON(_ context.Context, key string, dest interface{}) error {
	v, ok := m.data[key]
	if !ok {
		return errMiss
	}
	switch d := dest.(type) {
	case *[]int64:
		*d = v.([]int64)
	case *PostRecommendations:
		*d = *(v.(*PostRecommendations))
	}
	return nil
}

func (m *memoryPages) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.sets++
	m.data[key] = value
	return nil
}

// failingStrategy always errors.
type failingStrategy struct {
	err   error
	calls int
}

func (f *failingStrategy) Name() string { return "remote" }

func (f *failingStrategy) RecommendPosts(context.Context, *models.User, int, int) (*Page, error) {
	f.calls++
	return nil, f.err
}
