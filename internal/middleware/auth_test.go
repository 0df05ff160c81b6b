package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-automation/internal/auth"
	"github.com/ukydev/fleet-automation/internal/models"
)

func tokenFor(t *testing.T, svc *auth.Service, role models.Role) string {
	t.Helper()
	token, err := svc.GenerateToken(&models.User{ID: primitive.NewObjectID(), Username: "op", Role: role})
	require.NoError(t, err)
	return token
}

// serve runs handler behind Authenticate and reports whether the inner
// handler was reached.
func serve(m *AuthMiddleware, inner func(http.Handler) http.Handler, method, path, token string) (*httptest.ResponseRecorder, bool) {
	called := false
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	var h http.Handler = final
	if inner != nil {
		h = inner(final)
	}
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	m.Authenticate(h).ServeHTTP(w, req)
	return w, called
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	m := NewAuthMiddleware(svc)

	t.Run("valid token", func(t *testing.T) {
		token := tokenFor(t, svc, models.RoleDispatcher)
		var seen *models.Claims
		h := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = GetUserFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/api/trips", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, seen)
		assert.Equal(t, models.RoleDispatcher, seen.Role)
	})

	t.Run("missing header", func(t *testing.T) {
		w, called := serve(m, nil, http.MethodGet, "/api/trips", "")
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		w, called := serve(m, nil, http.MethodGet, "/api/trips", "invalid-token")
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("public paths", func(t *testing.T) {
		for _, path := range []string{"/api/auth/login", "/health"} {
			w, called := serve(m, nil, http.MethodPost, path, "")
			assert.True(t, called, path)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	m := NewAuthMiddleware(svc)
	dispatchOnly := m.RequireRole(models.RoleDispatcher)

	tests := []struct {
		role models.Role
		want int
	}{
		{models.RoleAdmin, http.StatusOK},
		{models.RoleDispatcher, http.StatusOK},
		{models.RoleFinancialAnalyst, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			w, called := serve(m, dispatchOnly, http.MethodPost, "/api/trips", tokenFor(t, svc, tt.role))
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.want == http.StatusOK, called)
		})
	}
}

func TestAuthMiddleware_RequirePermission(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	m := NewAuthMiddleware(svc)

	tests := []struct {
		name   string
		role   models.Role
		action string
		want   int
	}{
		{"admin bans", models.RoleAdmin, models.ActionBanDrivers, http.StatusOK},
		{"safety officer manages drivers", models.RoleSafetyOfficer, models.ActionManageDrivers, http.StatusOK},
		{"safety officer cannot ban", models.RoleSafetyOfficer, models.ActionBanDrivers, http.StatusForbidden},
		{"analyst views fleet", models.RoleFinancialAnalyst, models.ActionViewFleet, http.StatusOK},
		{"analyst cannot dispatch", models.RoleFinancialAnalyst, models.ActionManageTrips, http.StatusForbidden},
		{"fleet manager runs checks", models.RoleFleetManager, models.ActionRunChecks, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, called := serve(m, m.RequirePermission(tt.action), http.MethodGet, "/api/x", tokenFor(t, svc, tt.role))
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.want == http.StatusOK, called)
		})
	}

	t.Run("no claims on context", func(t *testing.T) {
		w := httptest.NewRecorder()
		m.RequirePermission(models.ActionViewFleet)(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimitMiddleware()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	h := limiter.RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/trips", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, hit("192.168.1.1:1000"))
	assert.Equal(t, http.StatusOK, hit("192.168.1.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, hit("192.168.1.1:1002"))
	assert.Equal(t, http.StatusOK, hit("192.168.1.2:1000"), "limits are per client")

	now = now.Add(61 * time.Second)
	assert.Equal(t, http.StatusOK, hit("192.168.1.1:1003"), "window slides")
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	limiter := NewRateLimitMiddleware()
	h := limiter.RateLimit(0, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestGetUserFromContext(t *testing.T) {
	claims := &models.Claims{UserID: "test-id", Username: "testuser", Role: models.RoleAdmin}

	got, ok := GetUserFromContext(WithUser(context.Background(), claims))
	assert.True(t, ok)
	assert.Equal(t, claims, got)

	_, ok = GetUserFromContext(context.Background())
	assert.False(t, ok)
}
