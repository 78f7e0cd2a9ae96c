package db

import (
	"context"
	"time"

	"github.com/agora-forum/agora/internal/jobs"
	"github.com/agora-forum/agora/internal/models"
)

// InteractionRepository appends to and reads the interaction log
type InteractionRepository struct {
	*Repository
}

// NewInteractionRepository creates a new interaction repository
func NewInteractionRepository(repo *Repository) *InteractionRepository {
	return &InteractionRepository{Repository: repo}
}

// CreateInteraction appends one event
func (r *InteractionRepository) CreateInteraction(ctx context.Context, event *models.Interaction) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListUserInteractionsSince returns a user's events in time order
func (r *InteractionRepository) ListUserInteractionsSince(ctx context.Context, userID int64, since time.Time) ([]models.Interaction, error) {
	var events []models.Interaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at, id").
		Find(&events).Error
	return events, err
}

// ListTargetInteractionsSince returns all events on one kind of target
func (r *InteractionRepository) ListTargetInteractionsSince(ctx context.Context, targetType models.TargetType, since time.Time) ([]models.Interaction, error) {
	var events []models.Interaction
	err := r.db.WithContext(ctx).
		Where("target_type = ? AND created_at >= ?", targetType, since).
		Order("created_at, id").
		Find(&events).Error
	return events, err
}

type actionCount struct {
	TargetID int64
	Action   models.Action
	Total    int64
}

// CountPostActionsSince counts post events per post and action
func (r *InteractionRepository) CountPostActionsSince(ctx context.Context, since time.Time) (map[int64]jobs.ActionCounts, error) {
	var rows []actionCount
	err := r.db.WithContext(ctx).
		Model(&models.Interaction{}).
		Select("target_id, action, COUNT(*) AS total").
		Where("target_type = ? AND target_id IS NOT NULL AND created_at >= ?", models.TargetPost, since).
		Group("target_id, action").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]jobs.ActionCounts)
	for _, row := range rows {
		c, ok := counts[row.TargetID]
		if !ok {
			c = jobs.ActionCounts{}
			counts[row.TargetID] = c
		}
		c[row.Action] = row.Total
	}
	return counts, nil
}
