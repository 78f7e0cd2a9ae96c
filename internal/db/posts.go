package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agora-forum/agora/internal/jobs"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/ranking"
	"github.com/agora-forum/agora/internal/recommend"
)

// PostRepository provides post-related database operations
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

func (r *PostRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Post{}).Where("status = ?", models.PostStatusActive)
}

func signalsOf(p *models.Post) *ranking.PostSignals {
	return &ranking.PostSignals{
		Signals: ranking.Signals{
			Score:        p.Score,
			CommentCount: p.CommentCount,
			ViewCount:    p.ViewCount,
			CreatedAt:    p.CreatedAt,
		},
		PostID:   p.ID,
		AuthorID: p.AuthorID,
		Category: p.Category,
		Tags:     p.Tags,
	}
}

// GetByID retrieves a post by ID
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// GetPostSignals returns the ranking inputs of an active post
func (r *PostRepository) GetPostSignals(ctx context.Context, postID int64) (*ranking.PostSignals, error) {
	var post models.Post
	if err := r.active(ctx).Where("id = ?", postID).First(&post).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return signalsOf(&post), nil
}

// IncrementViewCount bumps view_count in a single statement and returns
// the post as written.
func (r *PostRepository) IncrementViewCount(ctx context.Context, postID int64) (*ranking.PostSignals, error) {
	var post models.Post
	res := r.db.WithContext(ctx).
		Model(&post).
		Clauses(clause.Returning{}).
		Where("id = ? AND status = ?", postID, models.PostStatusActive).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return signalsOf(&post), nil
}

// UpdatePostScores stores freshly computed hot and ranking scores
func (r *PostRepository) UpdatePostScores(ctx context.Context, postID int64, scores ranking.Scores) error {
	return r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumns(map[string]interface{}{
			"hot_score":     scores.Hot,
			"ranking_score": scores.Ranking,
		}).Error
}

// ListRankablePosts returns active posts created since the given time
func (r *PostRepository) ListRankablePosts(ctx context.Context, createdSince time.Time) ([]models.Post, error) {
	var posts []models.Post
	err := r.active(ctx).
		Where("created_at >= ?", createdSince).
		Order("id").
		Find(&posts).Error
	return posts, err
}

// SaveRanking writes derived scores guarded by the vote version
func (r *PostRepository) SaveRanking(ctx context.Context, update jobs.RankingUpdate) (bool, error) {
	cols := map[string]interface{}{
		"hot_score":     update.Scores.Hot,
		"ranking_score": update.Scores.Ranking,
	}
	if update.Score != nil {
		cols["score"] = *update.Score
	}
	if update.CommentCount != nil {
		cols["comment_count"] = gorm.Expr("GREATEST(comment_count, ?)", *update.CommentCount)
	}
	if update.ViewCount != nil {
		cols["view_count"] = gorm.Expr("GREATEST(view_count, ?)", *update.ViewCount)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ? AND vote_version = ?", update.PostID, update.ExpectedVersion).
		UpdateColumns(cols)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// keysMatch matches category, tags or topics against keys.
func keysMatch(q *gorm.DB, keys []string) *gorm.DB {
	arr := pq.StringArray(keys)
	return q.Where("(category IN ? OR tags && ? OR topics && ?)", keys, arr, arr)
}

// FindRankedPostIDsByKeys returns the best ranked posts matching keys
func (r *PostRepository) FindRankedPostIDsByKeys(ctx context.Context, keys []string, excludeAuthor int64, limit int) ([]int64, error) {
	var ids []int64
	err := keysMatch(r.active(ctx), keys).
		Where("author_id <> ?", excludeAuthor).
		Order("ranking_score DESC, id DESC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// GetPostsByIDs returns the active posts among ids
func (r *PostRepository) GetPostsByIDs(ctx context.Context, ids []int64) ([]models.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var posts []models.Post
	err := r.active(ctx).Where("id IN ?", ids).Find(&posts).Error
	return posts, err
}

// RecentPostInteractions returns the user's latest post interactions
func (r *PostRepository) RecentPostInteractions(ctx context.Context, userID int64, actions []models.Action, limit int) ([]models.Interaction, error) {
	var events []models.Interaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND action IN ?", userID, models.TargetPost, actions).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// EngagedPostIDs returns posts the user acted on with any of actions
func (r *PostRepository) EngagedPostIDs(ctx context.Context, userID int64, actions []models.Action) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.Interaction{}).
		Distinct("target_id").
		Where("user_id = ? AND target_type = ? AND action IN ? AND target_id IS NOT NULL", userID, models.TargetPost, actions).
		Pluck("target_id", &ids).Error
	return ids, err
}

func (r *PostRepository) candidates(ctx context.Context, exclude recommend.Exclusion) *gorm.DB {
	q := r.active(ctx).Where("author_id <> ?", exclude.AuthorID)
	return excludeIDs(q, "id", exclude.PostIDs)
}

// FindPostsByKeys returns posts matching keys, best scored and newest first
func (r *PostRepository) FindPostsByKeys(ctx context.Context, keys []string, exclude recommend.Exclusion, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := keysMatch(r.candidates(ctx, exclude), keys).
		Order("score DESC, created_at DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// TrendingPosts returns posts created since the given time by score then views
func (r *PostRepository) TrendingPosts(ctx context.Context, since time.Time, exclude recommend.Exclusion, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := r.candidates(ctx, exclude).
		Where("created_at >= ?", since).
		Order("score DESC, view_count DESC, id DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// rankedOrder returns the ORDER BY clause for a ranked list sort.
func rankedOrder(sort string) (string, error) {
	switch sort {
	case ranking.SortHot:
		return "hot_score DESC, id DESC", nil
	case ranking.SortTrending:
		return "ranking_score DESC, id DESC", nil
	case ranking.SortNew:
		return "created_at DESC, id DESC", nil
	default:
		return "", fmt.Errorf("unknown sort %q", sort)
	}
}

// ListRanked returns a page of active posts under the given sort,
// optionally limited to one community.
func (r *PostRepository) ListRanked(ctx context.Context, sort string, communityID int64, limit, offset int) ([]models.Post, error) {
	order, err := rankedOrder(sort)
	if err != nil {
		return nil, err
	}
	q := r.active(ctx)
	if communityID > 0 {
		q = q.Where("community_id = ?", communityID)
	}
	var posts []models.Post
	err = q.Order(order).Limit(limit).Offset(offset).Find(&posts).Error
	return posts, err
}
