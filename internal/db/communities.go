package db

import (
	"context"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/agora-forum/agora/internal/jobs"
	"github.com/agora-forum/agora/internal/models"
)

// CommunityRepository provides community-related database operations
type CommunityRepository struct {
	*Repository
}

// NewCommunityRepository creates a new community repository
func NewCommunityRepository(repo *Repository) *CommunityRepository {
	return &CommunityRepository{Repository: repo}
}

// ApplyTrending stores trends and resets every community not listed, in
// one transaction.
func (r *CommunityRepository) ApplyTrending(ctx context.Context, trends []jobs.CommunityTrend, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]int64, 0, len(trends))
		for _, t := range trends {
			ids = append(ids, t.CommunityID)
		}

		reset := tx.Model(&models.Community{})
		if len(ids) > 0 {
			reset = reset.Where("id NOT IN ?", ids)
		} else {
			reset = reset.Session(&gorm.Session{AllowGlobalUpdate: true})
		}
		if err := reset.UpdateColumns(map[string]interface{}{
			"trending_score":      0,
			"weekly_growth":       0,
			"trending_updated_at": at,
		}).Error; err != nil {
			return err
		}

		for _, t := range trends {
			if err := tx.Model(&models.Community{}).
				Where("id = ?", t.CommunityID).
				UpdateColumns(map[string]interface{}{
					"trending_score":      t.Engagement,
					"weekly_growth":       t.Joins,
					"trending_updated_at": at,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// InteractedCommunityIDs returns communities the user has any logged event on
func (r *CommunityRepository) InteractedCommunityIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.Interaction{}).
		Distinct("target_id").
		Where("user_id = ? AND target_type = ? AND target_id IS NOT NULL", userID, models.TargetCommunity).
		Pluck("target_id", &ids).Error
	return ids, err
}

// MemberCommunityIDs returns the communities the user follows
func (r *CommunityRepository) MemberCommunityIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("user_id = ?", userID).
		Pluck("community_id", &ids).Error
	return ids, err
}

// GetCommunitiesByIDs retrieves communities by ID
func (r *CommunityRepository) GetCommunitiesByIDs(ctx context.Context, ids []int64) ([]models.Community, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var communities []models.Community
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&communities).Error
	return communities, err
}

func (r *CommunityRepository) public(ctx context.Context, exclude []int64) *gorm.DB {
	return excludeIDs(r.db.WithContext(ctx).Where("is_private = ?", false), "id", exclude)
}

// FindCommunitiesByTags returns public communities sharing a tag
func (r *CommunityRepository) FindCommunitiesByTags(ctx context.Context, tags []string, exclude []int64, limit int) ([]models.Community, error) {
	var communities []models.Community
	err := r.public(ctx, exclude).
		Where("tags && ?", pq.StringArray(tags)).
		Order("member_count DESC, id").
		Limit(limit).
		Find(&communities).Error
	return communities, err
}

// PopularCommunities returns public communities by member count
func (r *CommunityRepository) PopularCommunities(ctx context.Context, exclude []int64, limit int) ([]models.Community, error) {
	var communities []models.Community
	err := r.public(ctx, exclude).
		Order("member_count DESC, id").
		Limit(limit).
		Find(&communities).Error
	return communities, err
}
