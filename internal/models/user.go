package models

import (
	"time"

	"github.com/lib/pq"
)

// User is the part of a forum account the scoring core reads and writes
type User struct {
	ID                    int64          `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Name                  string         `gorm:"type:varchar(64);not null;uniqueIndex:forum_users_ux_name;column:name" json:"name"`
	Interests             pq.StringArray `gorm:"type:text[];not null;default:'{}';column:interests" json:"interests"`
	CalculatedInterests   pq.StringArray `gorm:"type:text[];not null;default:'{}';column:calculated_interests" json:"calculatedInterests"`
	CalculatedTopics      pq.StringArray `gorm:"type:text[];not null;default:'{}';column:calculated_topics" json:"calculatedTopics"`
	InterestsUpdatedAt    *time.Time     `gorm:"column:interests_updated_at" json:"interestsUpdatedAt,omitempty"`
	RecommendationsOptOut bool           `gorm:"not null;default:false;column:recommendations_opt_out" json:"-"`
	TotalPosts            int64          `gorm:"not null;default:0;column:total_posts" json:"totalPosts"`
	TotalLikesReceived    int64          `gorm:"not null;default:0;column:total_likes_received" json:"totalLikesReceived"`
	ActiveAt              *time.Time     `gorm:"column:active_at" json:"activeAt,omitempty"`
	LastReadAt            *time.Time     `gorm:"column:lastread_at" json:"-"`
	CreatedAt             time.Time      `gorm:"not null;column:created_at" json:"createdAt"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "forum_users"
}

// InterestKeys returns explicit interests followed by the derived
// categories and topics, without duplicates.
func (u *User) InterestKeys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, list := range [][]string{u.Interests, u.CalculatedInterests, u.CalculatedTopics} {
		for _, k := range list {
			if k == "" {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}
