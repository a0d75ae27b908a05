package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/barledger/internal/shared"
)

type recordingLifecycle struct {
	opened   []int64
	closed   []int64
	sessions []string
}

func (l *recordingLifecycle) Open(ctx context.Context, sessionID string, id Identity) error {
	l.opened = append(l.opened, id.TenantID)
	l.sessions = append(l.sessions, sessionID)
	return nil
}

func (l *recordingLifecycle) Close(ctx context.Context, sessionID string, tenantID int64) {
	l.closed = append(l.closed, tenantID)
	l.sessions = append(l.sessions, sessionID)
}

type authFixture struct {
	router    http.Handler
	sessions  *shared.SessionManager
	lifecycle *recordingLifecycle
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	svc := NewService(newStubRepo(t), NewCache(client, time.Minute), nil)
	lifecycle := &recordingLifecycle{}
	h := NewHandler(nil, svc, sessions, shared.NewCSRFManager("csrfsecret"), lifecycle)

	r := chi.NewRouter()
	// minimal session middleware: load before, commit after
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
			require.NoError(t, sessions.Commit(req.Context(), w, sess))
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	r.Route("/auth", h.MountRoutes)
	r.With(Middleware{Service: svc}.Require).Get("/private", func(w http.ResponseWriter, req *http.Request) {
		id, ok := FromContext(req.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id.Email))
	})
	return authFixture{router: r, sessions: sessions, lifecycle: lifecycle}
}

func TestLoginOpensWorkspaceAndSetsSession(t *testing.T) {
	f := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"manager@bar.test","password":"correct horse"}`))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Identity  Identity `json:"identity"`
		CSRFToken string   `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.Identity.UserID)
	assert.NotEmpty(t, body.CSRFToken)
	assert.Equal(t, []int64{3}, f.lifecycle.opened)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)

	private := httptest.NewRequest(http.MethodGet, "/private", nil)
	private.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, private)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "manager@bar.test", rr.Body.String())

	me := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	me.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, me)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"can_write":true`)

	logout := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logout.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, logout)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []int64{3}, f.lifecycle.closed)
	require.Len(t, f.lifecycle.sessions, 2)
	assert.Equal(t, cookies[0].Value, f.lifecycle.sessions[0])
	assert.Equal(t, f.lifecycle.sessions[0], f.lifecycle.sessions[1])
}

func TestLoginRejectsBadInput(t *testing.T) {
	f := newAuthFixture(t)
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"invalid email", `{"email":"nope","password":"correct horse"}`, http.StatusBadRequest},
		{"short password", `{"email":"manager@bar.test","password":"x"}`, http.StatusBadRequest},
		{"wrong password", `{"email":"manager@bar.test","password":"wrong horse"}`, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rr.Code)
		})
	}
	assert.Empty(t, f.lifecycle.opened)
}

func TestRequireRejectsAnonymous(t *testing.T) {
	f := newAuthFixture(t)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
