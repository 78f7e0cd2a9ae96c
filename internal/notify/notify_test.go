package notify

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agora-forum/agora/internal/errs"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/votes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu       sync.Mutex
	notifs   []models.Notification
	users    map[int64]*models.User
	lastRead map[int64]time.Time
	err      error
	block    chan struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[int64]*models.User{}, lastRead: map[int64]time.Time{}}
}

func (m *memoryStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = int64(len(m.notifs) + 1)
	m.notifs = append(m.notifs, *n)
	return nil
}

func (m *memoryStore) ListNotifications(_ context.Context, dst int64, minScore int16, lastID int64, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for i := len(m.notifs) - 1; i >= 0 && len(out) < limit; i-- {
		n := m.notifs[i]
		if n.DstID.Int64 != dst || n.Score < minScore || (lastID > 0 && n.ID >= lastID) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memoryStore) CountUnreadNotifications(_ context.Context, dst int64, minScore int16, since *time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notifs {
		if n.DstID.Int64 == dst && n.Score >= minScore && (since == nil || n.CreatedAt.After(*since)) {
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	return m.users[id], nil
}

func (m *memoryStore) UserNames(_ context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u.Name
		}
	}
	return out, nil
}

func (m *memoryStore) SetLastRead(_ context.Context, id int64, at time.Time) error {
	m.lastRead[id] = at
	if u, ok := m.users[id]; ok {
		u.LastReadAt = &at
	}
	return nil
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		name     string
		typeID   int16
		expected string
	}{
		{"vote_post", models.NotifyTypeVotePost, "vote_post"},
		{"vote_comment", models.NotifyTypeVoteComment, "vote_comment"},
		{"unused type id", 3, "unknown"},
		{"unknown", 999, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TypeName(tt.typeID))
		})
	}
}

func TestWriteRequiresRecipient(t *testing.T) {
	w := NewWriter(newMemoryStore(), time.Second, 8)
	err := w.Write(context.Background(), Message{Type: models.NotifyTypeVotePost})
	assert.Error(t, err)
}

func TestWriteDefaultsScore(t *testing.T) {
	store := newMemoryStore()
	w := NewWriter(store, time.Second, 8)
	dst := int64(2)

	require.NoError(t, w.Write(context.Background(), Message{Type: models.NotifyTypeVoteComment, DstID: &dst}))

	require.Len(t, store.notifs, 1)
	assert.Equal(t, DefaultScore, store.notifs[0].Score)
	assert.False(t, store.notifs[0].CreatedAt.IsZero())
}

func TestNotifyVoteOnComment(t *testing.T) {
	store := newMemoryStore()
	w := NewWriter(store, time.Second, 8)

	w.NotifyVote(context.Background(), votes.Event{
		VoterID: 7,
		Subject: votes.Subject{Kind: models.TargetComment, ID: 30, PostID: 3, AuthorID: 9},
		Outcome: votes.Outcome{Action: votes.ActionVote, Direction: votes.Up},
	})
	require.NoError(t, w.Close(context.Background()))

	require.Len(t, store.notifs, 1)
	n := store.notifs[0]
	assert.Equal(t, models.NotifyTypeVoteComment, n.Type)
	assert.Equal(t, sql.NullInt64{Int64: 9, Valid: true}, n.DstID)
	assert.Equal(t, sql.NullInt64{Int64: 30, Valid: true}, n.CommentID)
	assert.Equal(t, sql.NullInt64{Int64: 3, Valid: true}, n.PostID)
}

func TestNotifyVoteSwallowsErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("insert failed")
	w := NewWriter(store, time.Second, 8)

	w.NotifyVote(context.Background(), votes.Event{
		VoterID: 7,
		Subject: votes.Subject{Kind: models.TargetPost, ID: 3, PostID: 3, AuthorID: 9},
	})
	assert.NoError(t, w.Close(context.Background()))
}

func TestNotifyVoteDropsWhenBacklogFull(t *testing.T) {
	store := newMemoryStore()
	store.block = make(chan struct{})
	w := NewWriter(store, time.Second, 2)

	ev := votes.Event{
		VoterID: 7,
		Subject: votes.Subject{Kind: models.TargetPost, ID: 3, PostID: 3, AuthorID: 9},
		Outcome: votes.Outcome{Action: votes.ActionVote, Direction: votes.Up},
	}
	for i := 0; i < 50; i++ {
		w.NotifyVote(context.Background(), ev)
	}
	assert.Len(t, w.slots, 2)

	close(store.block)
	require.NoError(t, w.Close(context.Background()))
	assert.Len(t, store.notifs, 2)
	assert.Empty(t, w.slots)
}

func TestReaderListAndUnread(t *testing.T) {
	store := newMemoryStore()
	store.users[9] = &models.User{ID: 9, Name: "author"}
	store.users[7] = &models.User{ID: 7, Name: "voter"}
	w := NewWriter(store, time.Second, 8)
	r := NewReader(store)

	for i := 0; i < 3; i++ {
		w.NotifyVote(context.Background(), votes.Event{
			VoterID: 7,
			Subject: votes.Subject{Kind: models.TargetPost, ID: int64(i + 1), PostID: int64(i + 1), AuthorID: 9},
			Outcome: votes.Outcome{Action: votes.ActionVote, Direction: votes.Up},
		})
	}
	require.NoError(t, w.Close(context.Background()))

	items, err := r.List(context.Background(), 9, 0, 0, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "@voter upvoted your post", items[0].Message)
	assert.Greater(t, items[0].ID, items[1].ID)

	unread, err := r.Unread(context.Background(), 9, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread.Count)

	r.now = func() time.Time { return time.Now().Add(time.Minute) }
	_, err = r.MarkRead(context.Background(), 9)
	require.NoError(t, err)

	unread, err = r.Unread(context.Background(), 9, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread.Count)
}

func TestReaderErrors(t *testing.T) {
	r := NewReader(newMemoryStore())

	_, err := r.List(context.Background(), 1, 0, 0, 0)
	assert.Equal(t, errs.KindInvalid, errs.KindOf(err))

	_, err = r.Unread(context.Background(), 404, 0)
	assert.True(t, errs.IsNotFound(err))
}
