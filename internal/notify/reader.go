package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agora-forum/agora/internal/errs"
	"github.com/agora-forum/agora/internal/models"
)

// Item is a rendered notification.
type Item struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Score     int16     `json:"score"`
	Date      time.Time `json:"date"`
	Message   string    `json:"msg"`
	SrcID     *int64    `json:"srcId,omitempty"`
	PostID    *int64    `json:"postId,omitempty"`
	CommentID *int64    `json:"commentId,omitempty"`
}

// Unread is a user's unread notification count.
type Unread struct {
	LastRead *time.Time `json:"lastread"`
	Count    int64      `json:"unread"`
}

// Reader renders notifications for their recipient.
type Reader struct {
	store Store
	now   func() time.Time
}

// NewReader creates a notification reader.
func NewReader(store Store) *Reader {
	return &Reader{store: store, now: time.Now}
}

// List returns up to limit notifications for userID with score at least
// minScore, newest first, starting below lastID when it is non-zero.
func (r *Reader) List(ctx context.Context, userID int64, minScore int16, lastID int64, limit int) ([]Item, error) {
	if limit <= 0 || limit > 100 {
		return nil, errs.Invalid("limit must be between 1 and 100")
	}

	rows, err := r.store.ListNotifications(ctx, userID, minScore, lastID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	var srcIDs []int64
	for _, n := range rows {
		if n.SrcID.Valid {
			srcIDs = append(srcIDs, n.SrcID.Int64)
		}
	}
	names := map[int64]string{}
	if len(srcIDs) > 0 {
		if names, err = r.store.UserNames(ctx, srcIDs); err != nil {
			return nil, fmt.Errorf("failed to load notification sources: %w", err)
		}
	}

	items := make([]Item, 0, len(rows))
	for _, n := range rows {
		items = append(items, render(n, names))
	}
	return items, nil
}

// Unread counts notifications newer than the user's last read marker.
func (r *Reader) Unread(ctx context.Context, userID int64, minScore int16) (*Unread, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if user == nil {
		return nil, errs.NotFound("user %d not found", userID)
	}

	count, err := r.store.CountUnreadNotifications(ctx, userID, minScore, user.LastReadAt)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	return &Unread{LastRead: user.LastReadAt, Count: count}, nil
}

// MarkRead moves the user's last read marker to now.
func (r *Reader) MarkRead(ctx context.Context, userID int64) (time.Time, error) {
	now := r.now().UTC()
	if err := r.store.SetLastRead(ctx, userID, now); err != nil {
		return time.Time{}, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return now, nil
}

func render(n models.Notification, names map[int64]string) Item {
	item := Item{
		ID:    n.ID,
		Type:  TypeName(n.Type),
		Score: n.Score,
		Date:  n.CreatedAt,
	}
	src := "someone"
	if n.SrcID.Valid {
		id := n.SrcID.Int64
		item.SrcID = &id
		if name, ok := names[id]; ok {
			src = "@" + name
		}
	}
	if n.PostID.Valid {
		id := n.PostID.Int64
		item.PostID = &id
	}
	if n.CommentID.Valid {
		id := n.CommentID.Int64
		item.CommentID = &id
	}

	var payload votePayload
	if n.Payload.Valid {
		_ = json.Unmarshal([]byte(n.Payload.String), &payload)
	}
	verb := "upvoted"
	if payload.Direction == "down" {
		verb = "downvoted"
	}

	switch n.Type {
	case models.NotifyTypeVotePost:
		item.Message = fmt.Sprintf("%s %s your post", src, verb)
	case models.NotifyTypeVoteComment:
		item.Message = fmt.Sprintf("%s %s your comment", src, verb)
	default:
		item.Message = n.Payload.String
	}
	return item
}
