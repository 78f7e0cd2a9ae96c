package db

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/agora-forum/agora/internal/models"
)

// UserRepository provides user-related database operations
type UserRepository struct {
	*Repository
}

// NewUserRepository creates a new user repository
func NewUserRepository(repo *Repository) *UserRepository {
	return &UserRepository{Repository: repo}
}

// GetUser retrieves a user by ID
func (r *UserRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// ListUserIDs returns every user id in ascending order
func (r *UserRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// SetCalculatedInterests stores the derived interest and topic lists
func (r *UserRepository) SetCalculatedInterests(ctx context.Context, userID int64, interests, topics []string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"calculated_interests": pq.StringArray(interests),
			"calculated_topics":    pq.StringArray(topics),
			"interests_updated_at": at,
		}).Error
}

// ListRecommendationUsers returns users who have not opted out
func (r *UserRepository) ListRecommendationUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("recommendations_opt_out = ?", false).
		Order("id").
		Find(&users).Error
	return users, err
}

// FollowingIDs returns the users followed by userID
func (r *UserRepository) FollowingIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("following_id", &ids).Error
	return ids, err
}

const reputationOrder = "total_likes_received DESC, total_posts DESC, id"

// FindUsersByInterests returns users sharing at least one interest
func (r *UserRepository) FindUsersByInterests(ctx context.Context, interests []string, exclude []int64, limit int) ([]models.User, error) {
	arr := pq.StringArray(interests)
	q := r.db.WithContext(ctx).
		Where("(interests && ? OR calculated_interests && ? OR calculated_topics && ?)", arr, arr, arr)
	var users []models.User
	err := excludeIDs(q, "id", exclude).
		Order(reputationOrder).
		Limit(limit).
		Find(&users).Error
	return users, err
}

// ActiveUsers returns users seen recently, by reputation
func (r *UserRepository) ActiveUsers(ctx context.Context, exclude []int64, limit int) ([]models.User, error) {
	since := time.Now().UTC().AddDate(0, 0, -30)
	q := r.db.WithContext(ctx).Where("active_at >= ?", since)
	var users []models.User
	err := excludeIDs(q, "id", exclude).
		Order(reputationOrder).
		Limit(limit).
		Find(&users).Error
	return users, err
}

// UserNames maps ids to user names
func (r *UserRepository) UserNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

// SetLastRead stores the time the user last read notifications
func (r *UserRepository) SetLastRead(ctx context.Context, userID int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("lastread_at", at).Error
}
