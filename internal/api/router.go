package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agora-forum/agora/internal/api/content"
	"github.com/agora-forum/agora/internal/api/discover"
	"github.com/agora-forum/agora/internal/api/ops"
	"github.com/agora-forum/agora/internal/api/reqctx"
	"github.com/agora-forum/agora/pkg/logging"
)

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Services are the method groups served by the router
type Services struct {
	Content  *content.API
	Discover *discover.API
	Ops      *ops.API
}

// Router sets up API routes
type Router struct {
	handler  *JSONRPCHandler
	services Services
	checks   map[string]HealthChecker
	logger   *zap.Logger
}

// NewRouter creates a new API router. checks are reported by the
// detailed health endpoint, keyed by name; nil checkers are skipped.
func NewRouter(services Services, checks map[string]HealthChecker) *Router {
	router := &Router{
		handler:  NewJSONRPCHandler(),
		services: services,
		checks:   checks,
		logger:   logging.WithComponent("api-router"),
	}

	router.registerMethods()

	return router
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(reqctx.Middleware())

	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.readinessHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.POST("/", r.handler.Handle)
}

// registerMethods registers all API methods
func (r *Router) registerMethods() {
	if c := r.services.Content; c != nil {
		r.handler.RegisterMethod("posts.vote", c.VotePost)
		r.handler.RegisterMethod("comments.vote", c.VoteComment)
		r.handler.RegisterMethod("posts.track_view", c.TrackView)
		r.handler.RegisterMethod("posts.get_ranking", c.GetRanking)
		r.handler.RegisterMethod("posts.get_ranked", c.GetRanked)
		r.handler.RegisterMethod("notifications.list", c.ListNotifications)
		r.handler.RegisterMethod("notifications.unread", c.UnreadNotifications)
		r.handler.RegisterMethod("notifications.mark_read", c.MarkRead)
	}

	if d := r.services.Discover; d != nil {
		r.handler.RegisterMethod("recommend.posts", d.Posts)
		r.handler.RegisterMethod("recommend.communities", d.Communities)
		r.handler.RegisterMethod("recommend.users", d.Users)
	}

	if o := r.services.Ops; o != nil {
		r.handler.RegisterMethod("jobs.list_runs", o.ListRuns)
		r.handler.RegisterMethod("jobs.run_nightly", o.RunNightly)
	}

	r.logger.Debug("Registered JSON-RPC methods", zap.Int("count", r.handler.Methods()))
}

// healthHandler handles liveness checks
func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "agora-api",
	})
}

// readinessHandler checks every backing service
func (r *Router) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := gin.H{}
	for name, check := range r.checks {
		if check == nil {
			continue
		}
		if err := check.Health(ctx); err != nil {
			r.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "OK"
	if status != http.StatusOK {
		overall = "DEGRADED"
	}
	c.JSON(status, gin.H{
		"status":  overall,
		"service": "agora-api",
		"checks":  results,
	})
}
