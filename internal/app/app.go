// Package app wires configuration, storage and services into the API
// server and the nightly worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agora-forum/agora/internal/api"
	"github.com/agora-forum/agora/internal/api/content"
	"github.com/agora-forum/agora/internal/api/discover"
	"github.com/agora-forum/agora/internal/api/ops"
	"github.com/agora-forum/agora/internal/cache"
	"github.com/agora-forum/agora/internal/db"
	"github.com/agora-forum/agora/internal/interactions"
	"github.com/agora-forum/agora/internal/jobs"
	"github.com/agora-forum/agora/internal/notify"
	"github.com/agora-forum/agora/internal/ranking"
	"github.com/agora-forum/agora/internal/recommend"
	"github.com/agora-forum/agora/internal/scheduler"
	"github.com/agora-forum/agora/internal/votes"
	"github.com/agora-forum/agora/pkg/config"
	"github.com/agora-forum/agora/pkg/logging"
)

// App holds the wired components shared by both binaries
type App struct {
	cfg    *config.Config
	db     *db.DB
	cache  *cache.Cache
	logger *zap.Logger

	interactionLog *interactions.Logger
	notifier       *notify.Writer
	engine         *ranking.Engine

	Votes       *votes.Service
	Ranking     *ranking.Service
	Coordinator *jobs.Coordinator
	Scheduler   *scheduler.Service
	Selector    *recommend.Selector

	ops    *ops.API
	router *api.Router
}

// NewEngine builds the ranking engine from configuration
func NewEngine(cfg *config.RankingConfig) (*ranking.Engine, error) {
	return ranking.NewEngine(
		ranking.WithWeights(cfg.CommentWeight, cfg.ViewWeight),
		ranking.WithGravity(cfg.Gravity),
		ranking.WithAgeOffset(cfg.AgeOffsetHours),
		ranking.WithWindowDays(cfg.WindowDays),
	)
}

// New connects to the database and cache and wires every service
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	engine, err := NewEngine(&cfg.Ranking)
	if err != nil {
		return nil, fmt.Errorf("invalid ranking configuration: %w", err)
	}
	jobOpts, err := jobs.OptionsFromConfig(&cfg.Jobs, &cfg.Ranking)
	if err != nil {
		return nil, fmt.Errorf("invalid jobs configuration: %w", err)
	}

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, err
		}
	}

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		database.Close()
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		db:     database,
		cache:  redisCache,
		engine: engine,
		logger: logging.WithComponent("app"),
	}
	if err := a.wire(jobOpts); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// cacheOrNil keeps a disabled cache out of interface values, so
// consumers see a plain nil rather than a typed nil pointer.
func cacheOrNil[T any](c *cache.Cache, as func(*cache.Cache) T) T {
	var zero T
	if c == nil {
		return zero
	}
	return as(c)
}

func (a *App) wire(jobOpts jobs.Options) error {
	cfg := a.cfg
	repo := db.NewRepository(a.db.DB)
	posts := db.NewPostRepository(repo)
	users := db.NewUserRepository(repo)
	communities := db.NewCommunityRepository(repo)
	interactionRepo := db.NewInteractionRepository(repo)
	notifications := db.NewNotificationRepository(repo)

	a.interactionLog = interactions.NewLogger(interactionRepo, cfg.Votes.LogTimeout, cfg.Votes.LogBacklog)
	a.notifier = notify.NewWriter(notifications, cfg.Votes.LogTimeout, cfg.Votes.NotifyBacklog)

	a.Votes = votes.NewService(db.NewVoteRepository(repo), a.engine, a.interactionLog, a.notifier, cfg.Votes.MaxRetries)
	a.Ranking = ranking.NewService(a.engine, posts, a.interactionLog)

	snapshots := cacheOrNil(a.cache, func(c *cache.Cache) jobs.SnapshotCache { return c })
	a.Coordinator = jobs.NewCoordinator(jobs.Stores{
		Users:        users,
		Interactions: interactionRepo,
		Communities:  communities,
		Posts:        posts,
		Runs:         db.NewJobRunRepository(repo),
	}, a.engine, snapshots, jobOpts)

	locker := cacheOrNil(a.cache, func(c *cache.Cache) scheduler.Locker { return c })
	sched, err := scheduler.NewService(&cfg.Scheduler, a.Coordinator, locker)
	if err != nil {
		return err
	}
	a.Scheduler = sched

	pages := cacheOrNil(a.cache, func(c *cache.Cache) recommend.PageCache { return c })
	local := recommend.NewLocalStrategy(posts, pages, cfg.Recommend.HistorySize,
		time.Duration(cfg.Recommend.TrendingWindowDays)*24*time.Hour)
	var remote recommend.Strategy
	if cfg.Recommend.ServiceURL != "" {
		remote = recommend.NewRemoteStrategy(recommend.NewRemoteClient(&cfg.Recommend), posts)
	} else {
		a.logger.Info("Remote recommender not configured, serving local recommendations only")
	}
	a.Selector = recommend.NewSelector(users, communities, remote, local, pages, cfg.Recommend.CacheTTL)

	a.ops = ops.NewAPI(a.Coordinator, a.Scheduler, cfg.Scheduler.LockTTL)

	checks := map[string]api.HealthChecker{"database": a.db}
	if a.cache != nil {
		checks["cache"] = a.cache
	}
	a.router = api.NewRouter(api.Services{
		Content: content.NewAPI(a.Votes, a.Ranking, posts, notify.NewReader(notifications),
			cacheOrNil(a.cache, func(c *cache.Cache) content.ListCache { return c })),
		Discover: discover.NewAPI(a.Selector),
		Ops:      a.ops,
	}, checks)
	return nil
}

// Handler builds the HTTP handler serving the API
func (a *App) Handler() http.Handler {
	if a.cfg.Logging.Level == "DEBUG" || a.cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	a.router.SetupRoutes(engine)
	return engine
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// RunWorker runs the nightly batch once or on schedule until ctx is cancelled
func (a *App) RunWorker(ctx context.Context) error {
	if a.cfg.Scheduler.RunOnce {
		summary, err := a.Scheduler.RunNow(ctx)
		if summary != nil {
			a.logger.Info("Nightly batch finished",
				zap.String("run_id", summary.RunID.String()),
				zap.Int64("purged_runs", summary.Purged),
				zap.Int("failed_jobs", len(summary.Failed())),
			)
		}
		return err
	}
	if !a.cfg.Scheduler.Enabled {
		return errors.New("scheduler is disabled; set AGORA_SCHEDULER_ENABLED or AGORA_WORKER_RUN_ONCE")
	}

	a.Scheduler.Start()
	a.logger.Info("Worker waiting for the next nightly run", zap.Time("next", a.Scheduler.Next()))
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Scheduler.Stop(stopCtx)
}

// Close drains background writers and releases connections
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.ops != nil {
		if err := a.ops.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("manual runs: %w", err))
		}
	}
	if a.interactionLog != nil {
		if err := a.interactionLog.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("interaction log: %w", err))
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("notifications: %w", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}
