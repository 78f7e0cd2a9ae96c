package db

import (
	"context"
	"fmt"

	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/ranking"
	"github.com/agora-forum/agora/internal/votes"
)

// VoteRepository loads and swaps the voter sets embedded in posts and comments
type VoteRepository struct {
	*Repository
}

// NewVoteRepository creates a new vote repository
func NewVoteRepository(repo *Repository) *VoteRepository {
	return &VoteRepository{Repository: repo}
}

// LoadVoteSubject returns the votable entity with its current tally
func (r *VoteRepository) LoadVoteSubject(ctx context.Context, kind models.TargetType, id int64) (*votes.Subject, error) {
	switch kind {
	case models.TargetPost:
		var post models.Post
		err := r.db.WithContext(ctx).
			Where("id = ? AND status = ?", id, models.PostStatusActive).
			First(&post).Error
		if err != nil {
			if notFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return &votes.Subject{
			Kind:     kind,
			ID:       post.ID,
			AuthorID: post.AuthorID,
			PostID:   post.ID,
			Category: post.Category,
			Tags:     post.Tags,
			Tally:    post.VoteTally,
			Signals: &ranking.Signals{
				Score:        post.Score,
				CommentCount: post.CommentCount,
				ViewCount:    post.ViewCount,
				CreatedAt:    post.CreatedAt,
			},
		}, nil

	case models.TargetComment:
		var comment models.Comment
		if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
			if notFound(err) {
				return nil, nil
			}
			return nil, err
		}
		var post models.Post
		err := r.db.WithContext(ctx).
			Select("id", "category", "tags").
			Where("id = ? AND status = ?", comment.PostID, models.PostStatusActive).
			First(&post).Error
		if err != nil {
			if notFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return &votes.Subject{
			Kind:     kind,
			ID:       comment.ID,
			AuthorID: comment.AuthorID,
			PostID:   comment.PostID,
			Category: post.Category,
			Tags:     post.Tags,
			Tally:    comment.VoteTally,
		}, nil
	}
	return nil, fmt.Errorf("unsupported vote target %q", kind)
}

// SwapVoteTally writes next only while the stored vote_version equals expected
func (r *VoteRepository) SwapVoteTally(ctx context.Context, kind models.TargetType, id, expected int64, next models.VoteTally, scores *ranking.Scores) (bool, error) {
	cols := map[string]interface{}{
		"upvoters":     next.Upvoters,
		"downvoters":   next.Downvoters,
		"score":        next.Score,
		"vote_version": next.Version,
	}

	var model interface{}
	switch kind {
	case models.TargetPost:
		model = &models.Post{}
		if scores != nil {
			cols["hot_score"] = scores.Hot
			cols["ranking_score"] = scores.Ranking
		}
	case models.TargetComment:
		model = &models.Comment{}
	default:
		return false, fmt.Errorf("unsupported vote target %q", kind)
	}

	res := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND vote_version = ?", id, expected).
		UpdateColumns(cols)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
