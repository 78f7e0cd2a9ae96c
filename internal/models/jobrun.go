package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobType identifies a nightly sub-job
type JobType string

const (
	JobUserInterests     JobType = "user_interests"
	JobCommunityTrending JobType = "community_trending"
	JobPostRanking       JobType = "post_ranking"
	JobRecommendations   JobType = "recommendations"
)

// JobStatus is the state of a JobRun
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobRunMetadata is the bookkeeping stored alongside a run's result
type JobRunMetadata struct {
	ProcessedCount int        `json:"processedCount"`
	FailedCount    int        `json:"failedCount"`
	DurationMs     int64      `json:"duration"`
	Error          string     `json:"error,omitempty"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
}

// JobRun records one execution of one nightly sub-job
type JobRun struct {
	ID        uuid.UUID                          `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	RunID     uuid.UUID                          `gorm:"type:uuid;not null;index:forum_job_runs_ix_run;column:run_id" json:"runId"`
	JobType   JobType                            `gorm:"type:varchar(32);not null;index:forum_job_runs_ix_type_date,priority:1;column:job_type" json:"jobType"`
	Date      time.Time                          `gorm:"type:date;not null;index:forum_job_runs_ix_type_date,priority:2;column:date" json:"date"`
	Status    JobStatus                          `gorm:"type:varchar(16);not null;column:status" json:"status"`
	Data      datatypes.JSON                     `gorm:"type:jsonb;column:data" json:"data,omitempty"`
	Metadata  datatypes.JSONType[JobRunMetadata] `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt time.Time                          `gorm:"not null;index:forum_job_runs_ix_created;column:created_at" json:"createdAt"`
	UpdatedAt time.Time                          `gorm:"not null;column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name for JobRun
func (JobRun) TableName() string {
	return "forum_job_runs"
}
