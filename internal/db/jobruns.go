package db

import (
	"context"
	"time"

	"github.com/agora-forum/agora/internal/models"
)

// JobRunRepository stores nightly sub-job runs
type JobRunRepository struct {
	*Repository
}

// NewJobRunRepository creates a new job run repository
func NewJobRunRepository(repo *Repository) *JobRunRepository {
	return &JobRunRepository{Repository: repo}
}

// CreateJobRun inserts a run in its initial state
func (r *JobRunRepository) CreateJobRun(ctx context.Context, run *models.JobRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// FinishJobRun stores the final status, result and metadata of a run
func (r *JobRunRepository) FinishJobRun(ctx context.Context, run *models.JobRun) error {
	return r.db.WithContext(ctx).
		Model(run).
		Select("status", "data", "metadata", "updated_at").
		Updates(run).Error
}

// PurgeJobRuns deletes runs created before the cutoff
func (r *JobRunRepository) PurgeJobRuns(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.JobRun{})
	return res.RowsAffected, res.Error
}

// ListJobRuns returns the latest runs, optionally of one type
func (r *JobRunRepository) ListJobRuns(ctx context.Context, jobType models.JobType, limit int) ([]models.JobRun, error) {
	q := r.db.WithContext(ctx)
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	var runs []models.JobRun
	err := q.Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
