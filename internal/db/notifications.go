package db

import (
	"context"
	"time"

	"github.com/agora-forum/agora/internal/models"
)

// NotificationRepository stores notifications. It embeds the user
// repository for the name and read-marker lookups notifications need.
type NotificationRepository struct {
	*UserRepository
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(repo *Repository) *NotificationRepository {
	return &NotificationRepository{UserRepository: NewUserRepository(repo)}
}

// CreateNotification inserts a notification
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// ListNotifications returns a user's notifications newest first, starting
// below lastID when it is set.
func (r *NotificationRepository) ListNotifications(ctx context.Context, dstID int64, minScore int16, lastID int64, limit int) ([]models.Notification, error) {
	q := r.db.WithContext(ctx).Where("dst_id = ? AND score >= ?", dstID, minScore)
	if lastID > 0 {
		q = q.Where("id < ?", lastID)
	}
	var items []models.Notification
	err := q.Order("id DESC").Limit(limit).Find(&items).Error
	return items, err
}

// CountUnreadNotifications counts notifications newer than since
func (r *NotificationRepository) CountUnreadNotifications(ctx context.Context, dstID int64, minScore int16, since *time.Time) (int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("dst_id = ? AND score >= ?", dstID, minScore)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}
