package db

import (
	"errors"

	"gorm.io/gorm"

	"github.com/agora-forum/agora/internal/interactions"
	"github.com/agora-forum/agora/internal/jobs"
	"github.com/agora-forum/agora/internal/notify"
	"github.com/agora-forum/agora/internal/ranking"
	"github.com/agora-forum/agora/internal/recommend"
	"github.com/agora-forum/agora/internal/votes"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// notFound reports whether err is GORM's missing-row error.
func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// excludeIDs adds an id NOT IN filter. GORM renders an empty list as
// NOT IN (NULL), which matches nothing, so empty lists add no filter.
func excludeIDs(q *gorm.DB, column string, ids []int64) *gorm.DB {
	if len(ids) == 0 {
		return q
	}
	return q.Where(column+" NOT IN ?", ids)
}

var (
	_ votes.Store                = (*VoteRepository)(nil)
	_ ranking.PostStore          = (*PostRepository)(nil)
	_ jobs.PostStore             = (*PostRepository)(nil)
	_ recommend.PostCatalog      = (*PostRepository)(nil)
	_ interactions.Store         = (*InteractionRepository)(nil)
	_ jobs.InteractionStore      = (*InteractionRepository)(nil)
	_ jobs.UserStore             = (*UserRepository)(nil)
	_ recommend.UserCatalog      = (*UserRepository)(nil)
	_ jobs.CommunityStore        = (*CommunityRepository)(nil)
	_ recommend.CommunityCatalog = (*CommunityRepository)(nil)
	_ jobs.RunStore              = (*JobRunRepository)(nil)
	_ notify.Store               = (*NotificationRepository)(nil)
)
