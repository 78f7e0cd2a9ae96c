package models

import (
	"database/sql"
	"time"
)

// Notification represents a notification delivered to a user
type Notification struct {
	ID          int64          `gorm:"primaryKey;autoIncrement;column:id"`
	Type        int16          `gorm:"type:smallint;not null;column:type_id"`
	Score       int16          `gorm:"type:smallint;not null;default:0;column:score"`
	CreatedAt   time.Time      `gorm:"not null;column:created_at"`
	SrcID       sql.NullInt64  `gorm:"column:src_id"`
	DstID       sql.NullInt64  `gorm:"index:forum_notifications_ix_dst;column:dst_id"`
	CommunityID sql.NullInt64  `gorm:"column:community_id"`
	PostID      sql.NullInt64  `gorm:"column:post_id"`
	CommentID   sql.NullInt64  `gorm:"column:comment_id"`
	Payload     sql.NullString `gorm:"type:text;column:payload"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "forum_notifications"
}

// Notification type constants
const (
	NotifyTypeVotePost    int16 = 1
	NotifyTypeVoteComment int16 = 2
)
