package reqctx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-forum/agora/internal/errs"
)

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name  string
		id    string
		role  string
		want  Identity
		admin bool
	}{
		{"anonymous", "", "", Identity{}, false},
		{"user", "42", "", Identity{UserID: 42}, false},
		{"admin", "7", "Admin", Identity{UserID: 7, Role: "admin"}, true},
		{"malformed id", "abc", "admin", Identity{}, false},
		{"negative id", "-3", "admin", Identity{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Identity
			engine := gin.New()
			engine.Use(Middleware())
			engine.GET("/", func(c *gin.Context) {
				got = FromContext(c.Request.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.id != "" {
				req.Header.Set(HeaderUserID, tt.id)
			}
			if tt.role != "" {
				req.Header.Set(HeaderUserRole, tt.role)
			}
			engine.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.admin, got.IsAdmin())
		})
	}
}

func TestRequireUserAndAdmin(t *testing.T) {
	ctx := context.Background()
	_, err := RequireUser(ctx)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	ctx = WithIdentity(ctx, Identity{UserID: 5})
	id, err := RequireUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(RequireAdmin(ctx)))

	ctx = WithIdentity(ctx, Identity{UserID: 5, Role: RoleAdmin})
	assert.NoError(t, RequireAdmin(ctx))
}

func TestParams(t *testing.T) {
	p, err := ParseParams(json.RawMessage(`{"id": 12, "limit": 30, "sort": "hot", "bad": 1.5, "name": 3}`))
	require.NoError(t, err)

	id, err := p.ID("id")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	limit, err := p.Int("limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 30, limit)

	offset, err := p.Int("offset", 0, 0, 10000)
	require.NoError(t, err)
	assert.Zero(t, offset)

	sort, err := p.String("sort", "new")
	require.NoError(t, err)
	assert.Equal(t, "hot", sort)

	_, err = p.ID("missing")
	assert.Equal(t, errs.KindInvalid, errs.KindOf(err))
	_, err = p.ID("bad")
	assert.Equal(t, errs.KindInvalid, errs.KindOf(err))
	_, err = p.String("name", "")
	assert.Equal(t, errs.KindInvalid, errs.KindOf(err))
	_, err = p.Int("limit", 20, 1, 10)
	assert.Equal(t, errs.KindInvalid, errs.KindOf(err))

	empty, err := ParseParams(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseParams(json.RawMessage(`[1,2]`))
	assert.Equal(t, errs.KindInvalid, errs.KindOf(err))
}
