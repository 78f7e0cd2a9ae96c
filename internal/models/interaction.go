package models

import (
	"time"

	"gorm.io/datatypes"
)

// Action is the kind of user action recorded in the interaction log
type Action string

const (
	ActionViewPost          Action = "view_post"
	ActionLikePost          Action = "like_post"
	ActionUnlikePost        Action = "unlike_post"
	ActionSavePost          Action = "save_post"
	ActionUnsavePost        Action = "unsave_post"
	ActionCommentPost       Action = "comment_post"
	ActionVotePostUp        Action = "vote_post_up"
	ActionVotePostDown      Action = "vote_post_down"
	ActionRemoveVotePost    Action = "remove_vote_post"
	ActionVoteCommentUp     Action = "vote_comment_up"
	ActionVoteCommentDown   Action = "vote_comment_down"
	ActionRemoveVoteComment Action = "remove_vote_comment"
	ActionViewCommunity     Action = "view_community"
	ActionJoinCommunity     Action = "join_community"
	ActionLeaveCommunity    Action = "leave_community"
	ActionFollowUser        Action = "follow_user"
	ActionUnfollowUser      Action = "unfollow_user"
	ActionSearch            Action = "search"
)

// TargetType is the kind of entity an interaction refers to
type TargetType string

const (
	TargetPost      TargetType = "post"
	TargetComment   TargetType = "comment"
	TargetUser      TargetType = "user"
	TargetCommunity TargetType = "community"
	TargetSearch    TargetType = "search"
)

// Interaction is one append-only interaction log record
type Interaction struct {
	ID         int64             `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID     int64             `gorm:"not null;index:forum_interactions_ix_user_created,priority:1;column:user_id" json:"userId"`
	Action     Action            `gorm:"type:varchar(32);not null;column:action" json:"action"`
	TargetType TargetType        `gorm:"type:varchar(16);not null;index:forum_interactions_ix_target,priority:1;column:target_type" json:"targetType"`
	TargetID   *int64            `gorm:"index:forum_interactions_ix_target,priority:2;column:target_id" json:"targetId,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:forum_interactions_ix_user_created,priority:2;index:forum_interactions_ix_created;column:created_at" json:"createdAt"`
}

// TableName specifies the table name for Interaction
func (Interaction) TableName() string {
	return "forum_interactions"
}
