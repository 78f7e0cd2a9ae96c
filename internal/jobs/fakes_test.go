package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agora-forum/agora/internal/models"
	"github.com/lib/pq"
)

type fakeStore struct {
	mu sync.Mutex

	users        map[int64]*models.User
	interactions []models.Interaction
	posts        map[int64]*models.Post
	communities  map[int64]*models.Community
	runs         map[string]*models.JobRun
	cached       map[string]interface{}

	trendingErr   error
	panicTrending bool
	userReadErr   map[int64]error
	// bumpVersion simulates a live vote landing during the pass.
	bumpVersion map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[int64]*models.User{},
		posts:       map[int64]*models.Post{},
		communities: map[int64]*models.Community{},
		runs:        map[string]*models.JobRun{},
		cached:      map[string]interface{}{},
		userReadErr: map[int64]error{},
		bumpVersion: map[int64]bool{},
	}
}

func (f *fakeStore) stores() Stores {
	return Stores{Users: f, Interactions: f, Communities: f, Posts: f, Runs: f}
}

func (f *fakeStore) ListUserIDs(context.Context) ([]int64, error) {
	var ids []int64
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeStore) SetCalculatedInterests(_ context.Context, userID int64, interests, topics []string, at time.Time) error {
	u := f.users[userID]
	u.CalculatedInterests = pq.StringArray(interests)
	u.CalculatedTopics = pq.StringArray(topics)
	u.InterestsUpdatedAt = &at
	return nil
}

func (f *fakeStore) ListRecommendationUsers(context.Context) ([]models.User, error) {
	ids, _ := f.ListUserIDs(context.Background())
	var out []models.User
	for _, id := range ids {
		if !f.users[id].RecommendationsOptOut {
			out = append(out, *f.users[id])
		}
	}
	return out, nil
}

func (f *fakeStore) ListUserInteractionsSince(_ context.Context, userID int64, since time.Time) ([]models.Interaction, error) {
	if err := f.userReadErr[userID]; err != nil {
		return nil, err
	}
	var out []models.Interaction
	for _, ev := range f.interactions {
		if ev.UserID == userID && !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTargetInteractionsSince(_ context.Context, tt models.TargetType, since time.Time) ([]models.Interaction, error) {
	if f.panicTrending {
		panic("corrupt index")
	}
	var out []models.Interaction
	for _, ev := range f.interactions {
		if ev.TargetType == tt && !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) CountPostActionsSince(_ context.Context, since time.Time) (map[int64]ActionCounts, error) {
	out := map[int64]ActionCounts{}
	for _, ev := range f.interactions {
		if ev.TargetType != models.TargetPost || ev.TargetID == nil || ev.CreatedAt.Before(since) {
			continue
		}
		if out[*ev.TargetID] == nil {
			out[*ev.TargetID] = ActionCounts{}
		}
		out[*ev.TargetID][ev.Action]++
	}
	return out, nil
}

func (f *fakeStore) ApplyTrending(_ context.Context, trends []CommunityTrend, at time.Time) error {
	if f.trendingErr != nil {
		return f.trendingErr
	}
	seen := map[int64]bool{}
	for _, t := range trends {
		if c, ok := f.communities[t.CommunityID]; ok {
			c.TrendingScore = t.TrendingScore()
			c.WeeklyGrowth = t.WeeklyGrowth()
			c.TrendingUpdatedAt = &at
			seen[t.CommunityID] = true
		}
	}
	for id, c := range f.communities {
		if !seen[id] {
			c.TrendingScore = 0
			c.WeeklyGrowth = 0
		}
	}
	return nil
}

func (f *fakeStore) ListRankablePosts(_ context.Context, since time.Time) ([]models.Post, error) {
	var out []models.Post
	for _, p := range f.posts {
		if p.Status == models.PostStatusActive && !p.CreatedAt.Before(since) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SaveRanking(_ context.Context, u RankingUpdate) (bool, error) {
	p := f.posts[u.PostID]
	if f.bumpVersion[u.PostID] {
		p.Version++
	}
	if p.Version != u.ExpectedVersion {
		return false, nil
	}
	if u.Score != nil {
		p.Score = *u.Score
	}
	if u.CommentCount != nil && *u.CommentCount > p.CommentCount {
		p.CommentCount = *u.CommentCount
	}
	if u.ViewCount != nil && *u.ViewCount > p.ViewCount {
		p.ViewCount = *u.ViewCount
	}
	p.HotScore = u.Scores.Hot
	p.RankingScore = u.Scores.Ranking
	return true, nil
}

func (f *fakeStore) FindRankedPostIDsByKeys(_ context.Context, keys []string, excludeAuthor int64, limit int) ([]int64, error) {
	want := map[string]bool{}
	for _, k := range keys {
		want[k] = true
	}
	var matches []*models.Post
	for _, p := range f.posts {
		if p.AuthorID == excludeAuthor || p.Status != models.PostStatusActive {
			continue
		}
		for _, k := range p.Keys() {
			if want[k] {
				matches = append(matches, p)
				break
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].RankingScore > matches[j].RankingScore })
	var ids []int64
	for _, p := range matches {
		if len(ids) == limit {
			break
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (f *fakeStore) CreateJobRun(_ context.Context, run *models.JobRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID.String()] = &cp
	return nil
}

func (f *fakeStore) FinishJobRun(_ context.Context, run *models.JobRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID.String()] = &cp
	return nil
}

func (f *fakeStore) PurgeJobRuns(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.runs {
		if r.CreatedAt.Before(before) && !r.CreatedAt.IsZero() {
			delete(f.runs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListJobRuns(_ context.Context, jobType models.JobType, limit int) ([]models.JobRun, error) {
	var out []models.JobRun
	for _, r := range f.runs {
		if jobType == "" || r.JobType == jobType {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.cached[key] = value
	return nil
}
