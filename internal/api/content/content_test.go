package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agora-forum/agora/internal/api/reqctx"
	"github.com/agora-forum/agora/internal/errs"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/notify"
	"github.com/agora-forum/agora/internal/ranking"
	"github.com/agora-forum/agora/internal/votes"
)

type mockVoter struct{ mock.Mock }

func (m *mockVoter) VotePost(ctx context.Context, voterID, postID int64, direction string) (*votes.Result, error) {
	args := m.Called(voterID, postID, direction)
	res, _ := args.Get(0).(*votes.Result)
	return res, args.Error(1)
}

func (m *mockVoter) VoteComment(ctx context.Context, voterID, commentID int64, direction string) (*votes.Result, error) {
	args := m.Called(voterID, commentID, direction)
	res, _ := args.Get(0).(*votes.Result)
	return res, args.Error(1)
}

type fakeRanker struct {
	viewer int64
}

func (f *fakeRanker) Ranking(_ context.Context, postID int64) (*ranking.View, error) {
	return &ranking.View{PostID: postID, HotScore: 17}, nil
}

func (f *fakeRanker) TrackView(_ context.Context, userID, postID int64) (*ranking.View, error) {
	f.viewer = userID
	return &ranking.View{PostID: postID, ViewCount: 1}, nil
}

type fakeLister struct {
	calls int
	sort  string
}

func (f *fakeLister) ListRanked(_ context.Context, sort string, _ int64, limit, _ int) ([]models.Post, error) {
	f.calls++
	f.sort = sort
	return []models.Post{{ID: 1}, {ID: 2}}[:min(limit, 2)], nil
}

type fakeInbox struct {
	minScore int16
	lastID   int64
}

func (f *fakeInbox) List(_ context.Context, _ int64, minScore int16, lastID int64, _ int) ([]notify.Item, error) {
	f.minScore, f.lastID = minScore, lastID
	return []notify.Item{{ID: 3, Type: "vote_post"}}, nil
}

func (f *fakeInbox) Unread(_ context.Context, _ int64, minScore int16) (*notify.Unread, error) {
	f.minScore = minScore
	return &notify.Unread{Count: 2}, nil
}

func (f *fakeInbox) MarkRead(context.Context, int64) (time.Time, error) {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

type mapCache struct {
	data map[string][]models.Post
	ttl  time.Duration
}

func (m *mapCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	v, ok := m.data[key]
	if !ok {
		return errors.New("miss")
	}
	*(dest.(*[]models.Post)) = v
	return nil
}

func (m *mapCache) SetJSON(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.data[key] = value.([]models.Post)
	m.ttl = ttl
	return nil
}

func testContext(userID int64) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request = req.WithContext(reqctx.WithIdentity(req.Context(), reqctx.Identity{UserID: userID}))
	return c
}

func TestVotePost(t *testing.T) {
	voter := &mockVoter{}
	voter.On("VotePost", int64(9), int64(4), "up").Return(&votes.Result{ID: 4, Score: 1}, nil)
	api := NewAPI(voter, &fakeRanker{}, &fakeLister{}, &fakeInbox{}, nil)

	res, err := api.VotePost(testContext(9), json.RawMessage(`{"id": 4, "direction": "up"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.(*votes.Result).Score)
	voter.AssertExpectations(t)
}

func TestVoteRequiresIdentityAndID(t *testing.T) {
	voter := &mockVoter{}
	api := NewAPI(voter, &fakeRanker{}, &fakeLister{}, &fakeInbox{}, nil)

	_, err := api.VoteComment(testContext(0), json.RawMessage(`{"id": 4, "direction": "up"}`))
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = api.VoteComment(testContext(9), json.RawMessage(`{"direction": "up"}`))
	assert.Equal(t, errs.KindInvalid, errs.KindOf(err))

	voter.AssertNotCalled(t, "VoteComment", mock.Anything, mock.Anything, mock.Anything)
}

func TestTrackViewAllowsAnonymous(t *testing.T) {
	ranker := &fakeRanker{viewer: -1}
	api := NewAPI(&mockVoter{}, ranker, &fakeLister{}, &fakeInbox{}, nil)

	res, err := api.TrackView(testContext(0), json.RawMessage(`{"id": 8}`))
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.(*ranking.View).PostID)
	assert.Zero(t, ranker.viewer)
}

func TestGetRankedCachesPerSort(t *testing.T) {
	lister := &fakeLister{}
	pages := &mapCache{data: map[string][]models.Post{}}
	api := NewAPI(&mockVoter{}, &fakeRanker{}, lister, &fakeInbox{}, pages)

	for i := 0; i < 2; i++ {
		res, err := api.GetRanked(testContext(0), json.RawMessage(`{"sort": "new", "limit": 2}`))
		require.NoError(t, err)
		assert.Len(t, res.([]models.Post), 2)
	}
	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, "new", lister.sort)
	assert.Equal(t, 3*time.Second, pages.ttl)

	_, err := api.GetRanked(testContext(0), json.RawMessage(`{"sort": "payout"}`))
	assert.Equal(t, errs.KindInvalid, errs.KindOf(err))

	_, err = api.GetRanked(testContext(0), json.RawMessage(`{"limit": 500}`))
	assert.Equal(t, errs.KindInvalid, errs.KindOf(err))
}

func TestRankedTTL(t *testing.T) {
	assert.Equal(t, 3*time.Second, rankedTTL(ranking.SortNew))
	assert.Equal(t, 30*time.Second, rankedTTL(ranking.SortHot))
	assert.Equal(t, 300*time.Second, rankedTTL(ranking.SortTrending))
}

func TestNotifications(t *testing.T) {
	inbox := &fakeInbox{}
	api := NewAPI(&mockVoter{}, &fakeRanker{}, &fakeLister{}, inbox, nil)

	res, err := api.ListNotifications(testContext(3), json.RawMessage(`{"last_id": 10}`))
	require.NoError(t, err)
	assert.Len(t, res.([]notify.Item), 1)
	assert.Equal(t, int16(defaultMinScore), inbox.minScore)
	assert.Equal(t, int64(10), inbox.lastID)

	res, err = api.UnreadNotifications(testContext(3), json.RawMessage(`{"min_score": 50}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.(*notify.Unread).Count)
	assert.Equal(t, int16(50), inbox.minScore)

	_, err = api.MarkRead(testContext(0), nil)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = api.MarkRead(testContext(3), nil)
	assert.NoError(t, err)
}
