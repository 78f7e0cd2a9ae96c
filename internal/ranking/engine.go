// Package ranking computes the decay-weighted hot and ranking scores of
// posts and keeps the stored copies of those scores up to date.
package ranking

import (
	"fmt"
	"math"
	"time"
)

// Params are the tunable constants of the ranking formula.
type Params struct {
	CommentWeight  float64
	ViewWeight     float64
	Gravity        float64
	AgeOffsetHours float64
	// WindowDays bounds the nightly recompute to recently created posts.
	WindowDays int
}

// DefaultParams returns the reference constants.
func DefaultParams() Params {
	return Params{
		CommentWeight:  0.5,
		ViewWeight:     0.1,
		Gravity:        1.8,
		AgeOffsetHours: 2,
		WindowDays:     30,
	}
}

// Validate checks that the parameters yield a decaying score.
func (p Params) Validate() error {
	if p.Gravity <= 0 {
		return fmt.Errorf("gravity must be positive, got %v", p.Gravity)
	}
	if p.AgeOffsetHours <= 0 {
		return fmt.Errorf("age offset must be positive, got %v", p.AgeOffsetHours)
	}
	if p.CommentWeight < 0 || p.ViewWeight < 0 {
		return fmt.Errorf("weights must not be negative")
	}
	if p.WindowDays <= 0 {
		return fmt.Errorf("window must be positive, got %d", p.WindowDays)
	}
	return nil
}

// Signals are the inputs the formula reads from a post.
type Signals struct {
	Score        int64
	CommentCount int64
	ViewCount    int64
	CreatedAt    time.Time
}

// Scores are the derived values stored on a post.
type Scores struct {
	Hot     float64 `json:"hotScore"`
	Ranking float64 `json:"rankingScore"`
}

// Option configures an Engine.
type Option func(*Params)

// WithParams replaces all parameters at once.
func WithParams(p Params) Option {
	return func(dst *Params) { *dst = p }
}

// WithGravity sets the decay exponent.
func WithGravity(g float64) Option {
	return func(p *Params) { p.Gravity = g }
}

// WithAgeOffset sets the hours added to a post's age before decay.
func WithAgeOffset(hours float64) Option {
	return func(p *Params) { p.AgeOffsetHours = hours }
}

// WithWeights sets the comment and view weights.
func WithWeights(comment, view float64) Option {
	return func(p *Params) {
		p.CommentWeight = comment
		p.ViewWeight = view
	}
}

// WithWindowDays sets the nightly recompute window.
func WithWindowDays(days int) Option {
	return func(p *Params) { p.WindowDays = days }
}

// Engine evaluates the ranking formula. It is immutable and safe for
// concurrent use.
type Engine struct {
	params Params
}

// NewEngine returns an engine with the default parameters adjusted by opts.
func NewEngine(opts ...Option) (*Engine, error) {
	params := DefaultParams()
	for _, opt := range opts {
		opt(&params)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ranking parameters: %w", err)
	}
	return &Engine{params: params}, nil
}

// Params returns the engine's parameters.
func (e *Engine) Params() Params {
	return e.params
}

// Compute returns the hot and ranking scores of a post at time now.
//
//	hot     = score + comments*CommentWeight + views*ViewWeight
//	ranking = hot / (ageHours + AgeOffsetHours) ^ Gravity
//
// A creation time in the future is treated as age zero.
func (e *Engine) Compute(s Signals, now time.Time) Scores {
	hot := float64(s.Score) +
		float64(s.CommentCount)*e.params.CommentWeight +
		float64(s.ViewCount)*e.params.ViewWeight

	age := now.Sub(s.CreatedAt).Hours()
	if age < 0 {
		age = 0
	}

	return Scores{
		Hot:     hot,
		Ranking: hot / math.Pow(age+e.params.AgeOffsetHours, e.params.Gravity),
	}
}

// WindowStart returns the earliest creation time the nightly recompute covers.
func (e *Engine) WindowStart(now time.Time) time.Time {
	return now.AddDate(0, 0, -e.params.WindowDays)
}
