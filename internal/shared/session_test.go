package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sm := NewSessionManager(client, "bl_session", time.Hour, false)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.Zero(t, sess.User())

	sess.SetPrincipal(11, 4)
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, sess))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	require.Equal(t, int64(11), loaded.User())
	require.Equal(t, int64(4), loaded.Tenant())

	sm.Destroy(loaded)
	rr = httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, loaded))
	require.False(t, mr.Exists("barledger:session:"+loaded.ID))
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "abc"}
	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	again, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, token, again)

	require.NoError(t, m.VerifyToken(context.Background(), sess, token))
	require.ErrorIs(t, m.VerifyToken(context.Background(), sess, "nope"), ErrCSRFTokenMismatch)
	require.ErrorIs(t, m.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
}

func TestCSRFRotateInvalidatesPreviousToken(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "abc"}
	before, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	after, err := m.RotateToken(context.Background(), sess)
	require.NoError(t, err)
	require.NotEqual(t, before, after)
	require.ErrorIs(t, m.VerifyToken(context.Background(), sess, before), ErrCSRFTokenMismatch)
	require.NoError(t, m.VerifyToken(context.Background(), sess, after))
}

func TestCSRFTokenRejectedForOtherSession(t *testing.T) {
	m := NewCSRFManager("secret")
	owner := &Session{ID: "abc"}
	token, err := m.EnsureToken(context.Background(), owner)
	require.NoError(t, err)

	// token planted into a different session still fails the HMAC binding
	thief := &Session{ID: "xyz"}
	thief.Set(CSRFSessionKey, token)
	require.ErrorIs(t, m.VerifyToken(context.Background(), thief, token), ErrCSRFTokenMismatch)
}
