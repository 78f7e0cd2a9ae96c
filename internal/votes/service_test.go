package votes

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/agora-forum/agora/internal/errs"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/ranking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memoryStore is a versioned tally store with compare-and-swap writes.
type memoryStore struct {
	mu       sync.Mutex
	subjects map[int64]*Subject
	scores   map[int64]ranking.Scores
	swaps    int
	loads    int
	// yield widens the window between load and swap to force races.
	yield bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{subjects: map[int64]*Subject{}, scores: map[int64]ranking.Scores{}}
}

func (m *memoryStore) LoadVoteSubject(_ context.Context, kind models.TargetType, id int64) (*Subject, error) {
	m.mu.Lock()
	m.loads++
	s, ok := m.subjects[id]
	if !ok || s.Kind != kind {
		m.mu.Unlock()
		return nil, nil
	}
	cp := *s
	cp.Tally.Upvoters = append([]int64(nil), s.Tally.Upvoters...)
	cp.Tally.Downvoters = append([]int64(nil), s.Tally.Downvoters...)
	m.mu.Unlock()

	if m.yield {
		runtime.Gosched()
	}
	return &cp, nil
}

func (m *memoryStore) SwapVoteTally(_ context.Context, kind models.TargetType, id, expected int64, next models.VoteTally, scores *ranking.Scores) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.subjects[id]
	if s.Tally.Version != expected {
		return false, nil
	}
	m.swaps++
	s.Tally = next
	if scores != nil {
		m.scores[id] = *scores
	}
	return true, nil
}

func (m *memoryStore) tally(id int64) models.VoteTally {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subjects[id].Tally
}

// conflictStore never wins the swap.
type conflictStore struct {
	*memoryStore
}

func (c *conflictStore) SwapVoteTally(context.Context, models.TargetType, int64, int64, models.VoteTally, *ranking.Scores) (bool, error) {
	return false, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyVote(ctx context.Context, ev Event) {
	m.Called(ctx, ev)
}

type captureRecorder struct {
	mu     sync.Mutex
	events []models.Interaction
}

func (c *captureRecorder) Record(_ context.Context, e models.Interaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func newEngine(t *testing.T) *ranking.Engine {
	t.Helper()
	e, err := ranking.NewEngine()
	require.NoError(t, err)
	return e
}

func addPost(m *memoryStore, id, author int64, created time.Time) {
	m.subjects[id] = &Subject{
		Kind:     models.TargetPost,
		ID:       id,
		AuthorID: author,
		PostID:   id,
		Category: "tech",
		Signals:  &ranking.Signals{CommentCount: 4, ViewCount: 50, CreatedAt: created},
	}
}

func TestVotePostAppliesAndReranks(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	addPost(store, 1, 99, now.Add(-3*time.Hour))
	rec := &captureRecorder{}
	notifier := &mockNotifier{}
	notifier.On("NotifyVote", mock.Anything, mock.MatchedBy(func(ev Event) bool {
		return ev.VoterID == 7 && ev.Subject.AuthorID == 99
	})).Once()

	svc := NewService(store, newEngine(t), rec, notifier, 8)
	svc.now = func() time.Time { return now }

	res, err := svc.VotePost(context.Background(), 7, 1, "up")
	require.NoError(t, err)

	assert.Equal(t, ActionVote, res.Action)
	assert.Equal(t, int64(1), res.Score)
	require.NotNil(t, res.HotScore)
	assert.InDelta(t, 8.0, *res.HotScore, 1e-9)
	assert.Equal(t, *res.RankingScore, store.scores[1].Ranking)
	assert.Equal(t, int64(1), store.tally(1).Version)

	require.Len(t, rec.events, 1)
	assert.Equal(t, models.ActionVotePostUp, rec.events[0].Action)
	notifier.AssertExpectations(t)
}

func TestVotePostToggleLogsRemoval(t *testing.T) {
	store := newMemoryStore()
	addPost(store, 1, 99, time.Now())
	rec := &captureRecorder{}
	notifier := &mockNotifier{}
	notifier.On("NotifyVote", mock.Anything, mock.Anything).Once()
	svc := NewService(store, newEngine(t), rec, notifier, 8)

	_, err := svc.VotePost(context.Background(), 7, 1, "up")
	require.NoError(t, err)
	res, err := svc.VotePost(context.Background(), 7, 1, "up")
	require.NoError(t, err)

	assert.Equal(t, ActionUnvote, res.Action)
	assert.Equal(t, int64(0), res.Score)
	require.Len(t, rec.events, 2)
	assert.Equal(t, models.ActionRemoveVotePost, rec.events[1].Action)
	notifier.AssertNumberOfCalls(t, "NotifyVote", 1)
}

func TestSelfVoteSkipsNotification(t *testing.T) {
	store := newMemoryStore()
	addPost(store, 1, 7, time.Now())
	notifier := &mockNotifier{}
	svc := NewService(store, newEngine(t), nil, notifier, 8)

	_, err := svc.VotePost(context.Background(), 7, 1, "down")
	require.NoError(t, err)
	notifier.AssertNotCalled(t, "NotifyVote", mock.Anything, mock.Anything)
}

func TestVoteCommentHasNoScores(t *testing.T) {
	store := newMemoryStore()
	store.subjects[5] = &Subject{Kind: models.TargetComment, ID: 5, AuthorID: 3, PostID: 1}
	rec := &captureRecorder{}
	svc := NewService(store, newEngine(t), rec, nil, 8)

	res, err := svc.VoteComment(context.Background(), 8, 5, "down")
	require.NoError(t, err)

	assert.Equal(t, int64(-1), res.Score)
	assert.Nil(t, res.HotScore)
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.ActionVoteCommentDown, rec.events[0].Action)
	assert.Equal(t, int64(1), rec.events[0].Metadata["postId"])
}

func TestVoteErrors(t *testing.T) {
	store := newMemoryStore()
	addPost(store, 1, 99, time.Now())
	svc := NewService(store, newEngine(t), nil, nil, 8)

	tests := []struct {
		name     string
		voter    int64
		id       int64
		dir      string
		wantKind errs.Kind
	}{
		{"bad direction", 7, 1, "sideways", errs.KindInvalid},
		{"missing post", 7, 404, "up", errs.KindNotFound},
		{"anonymous", 0, 1, "up", errs.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.VotePost(context.Background(), tt.voter, tt.id, tt.dir)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errs.KindOf(err))
		})
	}
}

func TestVoteGivesUpAfterMaxRetries(t *testing.T) {
	store := &conflictStore{memoryStore: newMemoryStore()}
	addPost(store.memoryStore, 1, 99, time.Now())
	svc := NewService(store, newEngine(t), nil, nil, 3)

	_, err := svc.VotePost(context.Background(), 7, 1, "up")

	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	assert.Equal(t, 3, store.loads)
}

func TestConcurrentVotesFromTwoUsers(t *testing.T) {
	store := newMemoryStore()
	store.yield = true
	addPost(store, 1, 99, time.Now())
	svc := NewService(store, newEngine(t), nil, nil, 8)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	for _, voter := range []int64{10, 11} {
		wg.Add(1)
		go func(voter int64) {
			defer wg.Done()
			_, err := svc.VotePost(context.Background(), voter, 1, "up")
			errCh <- err
		}(voter)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	final := store.tally(1)
	assert.Equal(t, int64(2), final.Score)
	assert.ElementsMatch(t, []int64{10, 11}, []int64(final.Upvoters))
}

func TestConcurrentVotesNoLostUpdates(t *testing.T) {
	const voters = 40
	store := newMemoryStore()
	store.yield = true
	addPost(store, 1, 99, time.Now())
	svc := NewService(store, newEngine(t), nil, nil, 1000)

	var wg sync.WaitGroup
	for i := int64(1); i <= voters; i++ {
		wg.Add(1)
		go func(voter int64) {
			defer wg.Done()
			dir := "up"
			if voter%4 == 0 {
				dir = "down"
			}
			_, err := svc.VotePost(context.Background(), voter, 1, dir)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final := store.tally(1)
	assert.Equal(t, int64(voters/4*3-voters/4), final.Score)
	assert.Len(t, final.Upvoters, voters/4*3)
	assert.Len(t, final.Downvoters, voters/4)
	assert.Equal(t, int64(store.swaps), final.Version)
}
