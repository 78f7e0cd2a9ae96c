package recommend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/agora-forum/agora/internal/models"
	"github.com/agora-forum/agora/pkg/config"
	"github.com/agora-forum/agora/pkg/logging"
	"github.com/agora-forum/agora/pkg/telemetry"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RemoteItem is one entry of the remote recommender's response.
type RemoteItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// RemoteResponse is the remote recommender's response body.
type RemoteResponse struct {
	Recommendations []RemoteItem `json:"recommendations"`
	Source          string       `json:"source"`
	Strategy        string       `json:"strategy"`
}

// RemoteClient calls the remote recommender with a hard timeout behind a
// circuit breaker.
type RemoteClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*RemoteResponse]
	timeout time.Duration
	logger  *zap.Logger
}

// NewRemoteClient creates a client for cfg.ServiceURL.
func NewRemoteClient(cfg *config.RecommendConfig) *RemoteClient {
	logger := logging.WithComponent("recommend_remote")

	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	failRatio := cfg.BreakerFailRatio
	if failRatio <= 0 {
		failRatio = 0.6
	}

	breaker := gobreaker.NewCircuitBreaker[*RemoteResponse](gobreaker.Settings{
		Name:        "remote-recommender",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= failRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	client := resty.New().
		SetBaseURL(cfg.ServiceURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "agora-recommend/1.0")

	return &RemoteClient{
		http:    client,
		breaker: breaker,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Fetch asks the remote recommender for up to limit items for userID.
func (c *RemoteClient) Fetch(ctx context.Context, userID int64, limit int) (*RemoteResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "recommend.remote")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", userID), attribute.Int("limit", limit))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.breaker.Execute(func() (*RemoteResponse, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetPathParam("userId", strconv.FormatInt(userID, 10)).
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetResult(&RemoteResponse{}).
			Get("/recommendations/{userId}")
		if err != nil {
			return nil, fmt.Errorf("remote recommender request failed: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("remote recommender returned status %d", resp.StatusCode())
		}
		out, ok := resp.Result().(*RemoteResponse)
		if !ok || out == nil {
			return nil, errors.New("remote recommender returned an unreadable body")
		}
		return out, nil
	})
}

// RemoteStrategy serves posts in the order chosen by the remote recommender.
type RemoteStrategy struct {
	client *RemoteClient
	posts  PostCatalog
}

// NewRemoteStrategy creates the remote-scored strategy.
func NewRemoteStrategy(client *RemoteClient, posts PostCatalog) *RemoteStrategy {
	return &RemoteStrategy{client: client, posts: posts}
}

// Name implements Strategy.
func (s *RemoteStrategy) Name() string { return "remote" }

// RecommendPosts implements Strategy.
func (s *RemoteStrategy) RecommendPosts(ctx context.Context, user *models.User, limit, offset int) (*Page, error) {
	resp, err := s.client.Fetch(ctx, user.ID, offset+limit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(resp.Recommendations))
	for _, item := range resp.Recommendations {
		id, err := strconv.ParseInt(item.ItemID, 10, 64)
		if err != nil {
			s.client.logger.Debug("Skipping non-numeric item id", zap.String("item_id", item.ItemID))
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNoResults
	}

	posts, err := s.posts.GetPostsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load recommended posts: %w", err)
	}
	ordered := orderByIDs(posts, ids)
	if len(ordered) == 0 {
		return nil, ErrNoResults
	}

	strategy := resp.Strategy
	if strategy == "" {
		strategy = "remote"
	}
	return &Page{Posts: paginate(ordered, limit, offset), Strategy: strategy}, nil
}
