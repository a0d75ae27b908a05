package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/barledger/internal/identity"
	"github.com/odyssey-erp/barledger/internal/observability"
	"github.com/odyssey-erp/barledger/internal/platform/httpx"
	"github.com/odyssey-erp/barledger/internal/shared"
	"github.com/odyssey-erp/barledger/internal/workspace"
	workspacehttp "github.com/odyssey-erp/barledger/internal/workspace/http"
	"github.com/odyssey-erp/barledger/jobs"
)

type oneUserRepo struct {
	user identity.User
}

func (r oneUserRepo) FindByEmail(_ context.Context, email string) (identity.User, error) {
	if !strings.EqualFold(email, r.user.Email) {
		return identity.User{}, identity.ErrUserNotFound
	}
	return r.user, nil
}

func (r oneUserRepo) FindIdentity(_ context.Context, userID int64) (identity.Identity, error) {
	if userID != r.user.ID {
		return identity.Identity{}, identity.ErrUserNotFound
	}
	return identity.Identity{UserID: r.user.ID, TenantID: r.user.TenantID, Email: r.user.Email, Role: r.user.Role, SubscriptionActive: true}, nil
}

func (oneUserRepo) ExpireSubscriptions(context.Context, time.Time) ([]int64, error) {
	return nil, nil
}

type noopLifecycle struct{}

func (noopLifecycle) Open(context.Context, string, identity.Identity) error { return nil }
func (noopLifecycle) Close(context.Context, string, int64)                  {}

type unavailableWorkspaces struct{}

func (unavailableWorkspaces) Join(context.Context, string, int64) (*workspace.Workspace, error) {
	return nil, shared.ErrUpstream
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := oneUserRepo{user: identity.User{ID: 7, TenantID: 3, Email: "manager@bar.test", PasswordHash: string(hash), Role: identity.RoleManager, IsActive: true}}

	logger := slog.New(slog.DiscardHandler)
	sessions := shared.NewSessionManager(client, "barledger_session", time.Hour, false)
	csrf := shared.NewCSRFManager("test-secret")
	svc := identity.NewService(repo, identity.NewCache(client, time.Minute), logger)

	return NewRouter(RouterParams{
		Logger:             logger,
		Config:             &Config{AppEnv: "development", RateLimitPerMin: 1000},
		SessionManager:     sessions,
		CSRFManager:        csrf,
		IdentityHandler:    identity.NewHandler(logger, svc, sessions, csrf, noopLifecycle{}),
		IdentityMiddleware: identity.Middleware{Service: svc, Logger: logger},
		WorkspaceHandler:   workspacehttp.NewHandler(logger, unavailableWorkspaces{}),
		JobHandler:         jobs.NewHandler(nil, logger),
		Metrics:            observability.NewMetrics(),
	})
}

func login(t *testing.T, router http.Handler) (*http.Cookie, string) {
	t.Helper()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"manager@bar.test","password":"correct horse"}`)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0], body.CSRFToken
}

func TestHealthzAndSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestLoginIsExemptFromCSRFButLogoutIsNot(t *testing.T) {
	router := newTestRouter(t)
	cookie, token := login(t, router)
	require.NotEmpty(t, token)

	logout := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logout.AddCookie(cookie)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, logout)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	logout = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logout.AddCookie(cookie)
	logout.Header.Set(shared.CSRFHeader, token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, logout)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ledger", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	cookie, _ := login(t, router)
	req := httptest.NewRequest(http.MethodGet, "/ledger", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, httpx.ContentTypeProblem, rr.Header().Get("Content-Type"))

	req = httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpointIsMounted(t *testing.T) {
	router := newTestRouter(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ledger", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "barledger_http_requests_total")
}
