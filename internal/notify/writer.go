// Package notify writes and reads user notifications.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/votes"
	"github.com/agora-forum/agora/pkg/logging"
	"github.com/agora-forum/agora/pkg/telemetry"
	"go.uber.org/zap"
)

// DefaultScore is the default notification score
const DefaultScore int16 = 35

// Store persists and queries notifications.
type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, dstID int64, minScore int16, lastID int64, limit int) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, dstID int64, minScore int16, since *time.Time) (int64, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UserNames(ctx context.Context, ids []int64) (map[int64]string, error)
	SetLastRead(ctx context.Context, userID int64, at time.Time) error
}

// Message is a notification to be written.
type Message struct {
	Type        int16
	When        time.Time
	SrcID       *int64
	DstID       *int64
	CommunityID *int64
	PostID      *int64
	CommentID   *int64
	Payload     *string
	Score       *int16
}

// Writer creates notifications. Vote notifications are written in the
// background with at most backlog writes in flight; the rest are dropped.
type Writer struct {
	store   Store
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewWriter creates a notification writer. timeout bounds each background
// write started by NotifyVote.
func NewWriter(store Store, timeout time.Duration, backlog int) *Writer {
	if backlog <= 0 {
		backlog = 1
	}
	return &Writer{
		store:   store,
		timeout: timeout,
		slots:   make(chan struct{}, backlog),
		logger:  logging.GetLogger().With(zap.String("component", "notify")),
	}
}

// Write creates a new notification
func (w *Writer) Write(ctx context.Context, msg Message) error {
	if msg.DstID == nil {
		return fmt.Errorf("notification type %d has no recipient", msg.Type)
	}
	when := msg.When
	if when.IsZero() {
		when = time.Now().UTC()
	}

	notif := &models.Notification{
		Type:      msg.Type,
		CreatedAt: when,
		Score:     DefaultScore,
	}
	if msg.Score != nil {
		notif.Score = *msg.Score
	}
	notif.SrcID = nullInt64(msg.SrcID)
	notif.DstID = nullInt64(msg.DstID)
	notif.CommunityID = nullInt64(msg.CommunityID)
	notif.PostID = nullInt64(msg.PostID)
	notif.CommentID = nullInt64(msg.CommentID)
	if msg.Payload != nil {
		notif.Payload = sql.NullString{String: *msg.Payload, Valid: true}
	}

	w.logger.Debug("[NOTIFY]",
		zap.String("type", TypeName(msg.Type)),
		zap.Int64("src_id", getInt64(msg.SrcID)),
		zap.Int64("dst_id", getInt64(msg.DstID)),
		zap.Int64("post_id", getInt64(msg.PostID)),
		zap.String("payload", getString(msg.Payload)),
		zap.Int16("score", notif.Score))

	return w.store.CreateNotification(ctx, notif)
}

// NotifyVote tells the author of a voted entity about a vote. It writes
// in the background and only logs failures.
func (w *Writer) NotifyVote(ctx context.Context, ev votes.Event) {
	msg := voteMessage(ev)

	select {
	case w.slots <- struct{}{}:
	default:
		w.logger.Debug("Notification backlog full, dropping vote notification", zap.Int64("target_id", ev.Subject.ID))
		telemetry.RecordNotificationDrop(ctx, "backlog")
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.slots }()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
		defer cancel()
		if err := w.Write(writeCtx, msg); err != nil {
			w.logger.Warn("Failed to write vote notification",
				zap.Error(err),
				zap.Int64("voter_id", ev.VoterID),
				zap.Int64("target_id", ev.Subject.ID),
			)
			telemetry.RecordNotificationDrop(writeCtx, "write_failed")
		}
	}()
}

// Close waits for background writes.
func (w *Writer) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification flush: %w", ctx.Err())
	}
}

type votePayload struct {
	Direction string `json:"direction"`
	Score     int64  `json:"score"`
}

func voteMessage(ev votes.Event) Message {
	src := ev.VoterID
	dst := ev.Subject.AuthorID
	postID := ev.Subject.PostID
	msg := Message{
		Type:   models.NotifyTypeVotePost,
		SrcID:  &src,
		DstID:  &dst,
		PostID: &postID,
	}
	if ev.Subject.Kind == models.TargetComment {
		commentID := ev.Subject.ID
		msg.Type = models.NotifyTypeVoteComment
		msg.CommentID = &commentID
	}
	if data, err := json.Marshal(votePayload{Direction: string(ev.Outcome.Direction), Score: ev.Outcome.Tally.Score}); err == nil {
		payload := string(data)
		msg.Payload = &payload
	}
	return msg
}

func nullInt64(ptr *int64) sql.NullInt64 {
	if ptr == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ptr, Valid: true}
}

func getInt64(ptr *int64) int64 {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func getString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

// TypeName returns the wire name of a notification type.
func TypeName(typeID int16) string {
	names := map[int16]string{
		models.NotifyTypeVotePost:    "vote_post",
		models.NotifyTypeVoteComment: "vote_comment",
	}
	if name, ok := names[typeID]; ok {
		return name
	}
	return "unknown"
}
