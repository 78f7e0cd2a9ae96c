// Package interactions records the append-only interaction log and
// provides the helpers used to read interest signals back out of it.
package interactions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/pkg/logging"
	"github.com/agora-forum/agora/pkg/telemetry"
	"go.uber.org/zap"
)

// Store persists interaction records.
type Store interface {
	CreateInteraction(ctx context.Context, event *models.Interaction) error
}

// Recorder accepts interaction events without blocking the caller or
// reporting failure.
type Recorder interface {
	Record(ctx context.Context, event models.Interaction)
}

// Discard is a Recorder that drops every event.
type Discard struct{}

// Record implements Recorder.
func (Discard) Record(context.Context, models.Interaction) {}

// Logger writes interaction events in the background. Delivery is
// at-most-once: events are dropped when the backlog is full or the write
// fails, and neither case is reported to the caller.
type Logger struct {
	store   Store
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
	logger  *zap.Logger
}

// NewLogger creates a Logger allowing up to backlog writes in flight,
// each bounded by timeout.
func NewLogger(store Store, timeout time.Duration, backlog int) *Logger {
	if backlog <= 0 {
		backlog = 1
	}
	return &Logger{
		store:   store,
		timeout: timeout,
		slots:   make(chan struct{}, backlog),
		now:     time.Now,
		logger:  logging.GetLogger().With(zap.String("component", "interaction_log")),
	}
}

// Record queues event for writing and returns immediately.
func (l *Logger) Record(ctx context.Context, event models.Interaction) {
	if err := validate(&event); err != nil {
		l.logger.Warn("Dropping malformed interaction", zap.Error(err), zap.Int64("user_id", event.UserID))
		telemetry.RecordInteractionDrop(ctx, "invalid")
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = l.now().UTC()
	}

	select {
	case l.slots <- struct{}{}:
	default:
		l.logger.Debug("Interaction backlog full, dropping event", zap.String("action", string(event.Action)))
		telemetry.RecordInteractionDrop(ctx, "backlog")
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() { <-l.slots }()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("Interaction write panicked", zap.Any("panic", r))
			}
		}()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		if err := l.store.CreateInteraction(writeCtx, &event); err != nil {
			l.logger.Warn("Failed to write interaction",
				zap.Error(err),
				zap.Int64("user_id", event.UserID),
				zap.String("action", string(event.Action)),
			)
			telemetry.RecordInteractionDrop(writeCtx, "write_failed")
		}
	}()
}

// Close waits for in-flight writes to finish or ctx to expire.
func (l *Logger) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("interaction log flush: %w", ctx.Err())
	}
}

func validate(event *models.Interaction) error {
	if event.UserID == 0 {
		return fmt.Errorf("missing user id")
	}
	if event.Action == "" {
		return fmt.Errorf("missing action")
	}
	if event.TargetType != models.TargetSearch && event.TargetID == nil {
		return fmt.Errorf("target id required for %s", event.TargetType)
	}
	return nil
}
