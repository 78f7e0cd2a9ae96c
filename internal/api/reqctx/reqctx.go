// Package reqctx carries the caller identity set by the upstream auth
// layer and decodes JSON-RPC params.
package reqctx

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agora-forum/agora/internal/errs"
)

// Identity headers set by the auth proxy in front of the API
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	RoleAdmin = "admin"
)

type identityKey struct{}

// Identity is the authenticated caller. UserID is zero for anonymous calls.
type Identity struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the caller has the admin role.
func (i Identity) IsAdmin() bool {
	return i.UserID > 0 && i.Role == RoleAdmin
}

// Middleware reads the identity headers into the request context.
// Malformed user ids are treated as anonymous.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var id Identity
		if raw := strings.TrimSpace(c.GetHeader(HeaderUserID)); raw != "" {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
				id.UserID = v
				id.Role = strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
			}
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller identity, anonymous if none was set.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// RequireUser returns the caller's user id or a forbidden error.
func RequireUser(ctx context.Context) (int64, error) {
	id := FromContext(ctx)
	if id.UserID <= 0 {
		return 0, errs.Forbidden("authentication required")
	}
	return id.UserID, nil
}

// RequireAdmin fails unless the caller is an admin.
func RequireAdmin(ctx context.Context) error {
	if !FromContext(ctx).IsAdmin() {
		return errs.Forbidden("admin role required")
	}
	return nil
}
