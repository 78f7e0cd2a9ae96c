package models

import (
	"time"

	"github.com/lib/pq"
)

// PostStatus is the lifecycle state of a post
type PostStatus string

const (
	PostStatusActive   PostStatus = "active"
	PostStatusRemoved  PostStatus = "removed"
	PostStatusArchived PostStatus = "archived"
)

// VoteTally is the voter set embedded in votable entities. Score always
// equals len(Upvoters) - len(Downvoters); Version is bumped on every write.
type VoteTally struct {
	Upvoters   pq.Int64Array `gorm:"type:bigint[];not null;default:'{}';column:upvoters" json:"-"`
	Downvoters pq.Int64Array `gorm:"type:bigint[];not null;default:'{}';column:downvoters" json:"-"`
	Score      int64         `gorm:"not null;default:0;column:score" json:"score"`
	Version    int64         `gorm:"not null;default:0;column:vote_version" json:"-"`
}

// Post represents a forum post
type Post struct {
	ID           int64          `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	AuthorID     int64          `gorm:"not null;index:forum_posts_ix_author;column:author_id" json:"authorId"`
	CommunityID  *int64         `gorm:"index:forum_posts_ix_community;column:community_id" json:"communityId,omitempty"`
	Title        string         `gorm:"type:varchar(255);not null;default:'';column:title" json:"title"`
	Category     string         `gorm:"type:varchar(64);not null;default:'';column:category" json:"category"`
	Tags         pq.StringArray `gorm:"type:text[];not null;default:'{}';column:tags" json:"tags"`
	Topics       pq.StringArray `gorm:"type:text[];not null;default:'{}';column:topics" json:"topics"`
	Status       PostStatus     `gorm:"type:varchar(16);not null;default:'active';column:status" json:"status"`
	CommentCount int64          `gorm:"not null;default:0;column:comment_count" json:"commentCount"`
	ViewCount    int64          `gorm:"not null;default:0;column:view_count" json:"viewCount"`
	VoteTally    `gorm:"embedded"`
	HotScore     float64   `gorm:"not null;default:0;column:hot_score" json:"hotScore"`
	RankingScore float64   `gorm:"not null;default:0;index:forum_posts_ix_ranking;column:ranking_score" json:"rankingScore"`
	CreatedAt    time.Time `gorm:"not null;index:forum_posts_ix_created;column:created_at" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"not null;column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "forum_posts"
}

// Keys returns the category, tags and topics of the post, in that order,
// as the keys recommendation and interest matching work with.
func (p *Post) Keys() []string {
	keys := make([]string, 0, 1+len(p.Tags)+len(p.Topics))
	if p.Category != "" {
		keys = append(keys, p.Category)
	}
	keys = append(keys, p.Tags...)
	keys = append(keys, p.Topics...)
	return keys
}

// Comment represents a comment on a post
type Comment struct {
	ID        int64 `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PostID    int64 `gorm:"not null;index:forum_comments_ix_post;column:post_id" json:"postId"`
	AuthorID  int64 `gorm:"not null;column:author_id" json:"authorId"`
	VoteTally `gorm:"embedded"`
	CreatedAt time.Time `gorm:"not null;column:created_at" json:"createdAt"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "forum_comments"
}
