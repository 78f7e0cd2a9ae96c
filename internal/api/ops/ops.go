// Package ops serves administrative batch operations over JSON-RPC.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agora-forum/agora/internal/api/reqctx"
	"github.com/agora-forum/agora/internal/errs"
	"github.com/agora-forum/agora/internal/jobs"
	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/internal/scheduler"
	"github.com/agora-forum/agora/pkg/logging"
)

// RunLister lists recorded job runs.
type RunLister interface {
	Runs(ctx context.Context, jobType models.JobType, limit int) ([]models.JobRun, error)
}

// Trigger starts a nightly batch on demand.
type Trigger interface {
	RunNow(ctx context.Context) (*jobs.Summary, error)
	Running() bool
}

var jobTypes = map[models.JobType]bool{
	models.JobUserInterests:     true,
	models.JobCommunityTrending: true,
	models.JobPostRanking:       true,
	models.JobRecommendations:   true,
}

// API provides batch administration methods
type API struct {
	runs       RunLister
	trigger    Trigger
	runTimeout time.Duration
	wg         sync.WaitGroup
	logger     *zap.Logger
}

// NewAPI creates a new ops API. Triggered runs are bounded by runTimeout.
func NewAPI(runs RunLister, trigger Trigger, runTimeout time.Duration) *API {
	return &API{
		runs:       runs,
		trigger:    trigger,
		runTimeout: runTimeout,
		logger:     logging.WithComponent("ops-api"),
	}
}

// ListRuns handles jobs.list_runs
func (a *API) ListRuns(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	if err := reqctx.RequireAdmin(ctx.Request.Context()); err != nil {
		return nil, err
	}
	p, err := reqctx.ParseParams(params)
	if err != nil {
		return nil, err
	}
	jobType, err := p.String("job_type", "")
	if err != nil {
		return nil, err
	}
	if jobType != "" && !jobTypes[models.JobType(jobType)] {
		return nil, errs.Invalid("unknown job type: %s", jobType)
	}
	limit, err := p.Int("limit", 20, 1, 100)
	if err != nil {
		return nil, err
	}
	return a.runs.Runs(ctx.Request.Context(), models.JobType(jobType), limit)
}

// RunNightly handles jobs.run_nightly. The batch runs in the background;
// the call returns once it has been started.
func (a *API) RunNightly(ctx *gin.Context, _ json.RawMessage) (interface{}, error) {
	if err := reqctx.RequireAdmin(ctx.Request.Context()); err != nil {
		return nil, err
	}
	if a.trigger.Running() {
		return nil, errs.Conflict("nightly batch already running")
	}

	requestedBy := reqctx.FromContext(ctx.Request.Context()).UserID
	runCtx := context.WithoutCancel(ctx.Request.Context())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		runCtx, cancel := context.WithTimeout(runCtx, a.runTimeout)
		defer cancel()

		summary, err := a.trigger.RunNow(runCtx)
		switch {
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			a.logger.Info("Manual nightly run skipped, another run is active", zap.Int64("requested_by", requestedBy))
		case err != nil:
			a.logger.Error("Manual nightly run failed", zap.Int64("requested_by", requestedBy), zap.Error(err))
		default:
			a.logger.Info("Manual nightly run completed",
				zap.Int64("requested_by", requestedBy),
				zap.String("run_id", summary.RunID.String()),
			)
		}
	}()

	return gin.H{"accepted": true}, nil
}

// Wait blocks until triggered runs have finished or ctx is done.
func (a *API) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
