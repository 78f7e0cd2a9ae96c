package models

import (
	"time"
)

// Follow represents a follow relationship between users
type Follow struct {
	FollowerID  int64     `gorm:"primaryKey;column:follower_id"`
	FollowingID int64     `gorm:"primaryKey;index:forum_follows_ix_following;column:following_id"`
	CreatedAt   time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Follow
func (Follow) TableName() string {
	return "forum_follows"
}
