package models

import (
	"time"

	"github.com/lib/pq"
)

// Community represents a community
type Community struct {
	ID                int64          `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Name              string         `gorm:"type:varchar(64);not null;uniqueIndex:forum_communities_ux_name;column:name" json:"name"`
	Title             string         `gorm:"type:varchar(128);not null;default:'';column:title" json:"title"`
	Tags              pq.StringArray `gorm:"type:text[];not null;default:'{}';column:tags" json:"tags"`
	IsPrivate         bool           `gorm:"not null;default:false;column:is_private" json:"isPrivate"`
	MemberCount       int64          `gorm:"not null;default:0;column:member_count" json:"memberCount"`
	TrendingScore     int64          `gorm:"not null;default:0;column:trending_score" json:"trendingScore"`
	WeeklyGrowth      int64          `gorm:"not null;default:0;column:weekly_growth" json:"weeklyGrowth"`
	TrendingUpdatedAt *time.Time     `gorm:"column:trending_updated_at" json:"trendingUpdatedAt,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;column:created_at" json:"createdAt"`
}

// TableName specifies the table name for Community
func (Community) TableName() string {
	return "forum_communities"
}

// Membership records a user following a community
type Membership struct {
	CommunityID int64     `gorm:"primaryKey;column:community_id"`
	UserID      int64     `gorm:"primaryKey;index:forum_memberships_ix_user;column:user_id"`
	CreatedAt   time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Membership
func (Membership) TableName() string {
	return "forum_memberships"
}
