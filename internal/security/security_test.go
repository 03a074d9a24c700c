package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"moviewatch/internal/models"
)

var alice = models.Identity{UserID: "u-alice", Username: "alice", Name: "Alice"}

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)

	ok, err := h.Verify("secret1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("secret1", "not-a-bcrypt-hash")
	assert.Error(t, err)
}

func TestHasherDefaultsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, 12, NewHasher(12).cost)
}

func TestSessionsCreateLoadDestroy(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewSessions(backend, []byte("test-secret"), Options{TTL: time.Hour})

	session, err := s.Create(ctx, alice)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, 1, backend.Len())

	identity, err := s.Load(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, alice, *identity)

	require.NoError(t, s.Destroy(ctx, session.ID))
	require.NoError(t, s.Destroy(ctx, session.ID))

	identity, err = s.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestSessionsIDsAreUnique(t *testing.T) {
	s := NewSessions(NewMemoryBackend(), []byte("test-secret"), Options{})
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		session, err := s.Create(context.Background(), alice)
		require.NoError(t, err)
		assert.False(t, seen[session.ID])
		seen[session.ID] = true
	}
}

func TestSessionsExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := NewMemoryBackend()
	backend.now = func() time.Time { return now }
	s := NewSessions(backend, []byte("test-secret"), Options{TTL: time.Hour})
	s.now = func() time.Time { return now }

	session, err := s.Create(ctx, alice)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	identity, err := s.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, identity)
	assert.Equal(t, 0, backend.Len())
}

type failingBackend struct{ MemoryBackend }

func (*failingBackend) Save(context.Context, *models.Session) error {
	return errors.New("disk full")
}

func TestSessionsCreateReportsBackendFailure(t *testing.T) {
	s := NewSessions(&failingBackend{}, []byte("test-secret"), Options{})
	_, err := s.Create(context.Background(), alice)
	assert.ErrorContains(t, err, "disk full")
}

func TestSessionsCookieRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(NewMemoryBackend(), []byte("test-secret"), Options{TTL: time.Hour})
	session, err := s.Create(ctx, alice)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	require.NoError(t, s.Issue(w, r, session))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotContains(t, cookies[0].Value, "alice")

	next := httptest.NewRequest(http.MethodGet, "/movies", nil)
	next.AddCookie(cookies[0])
	assert.Equal(t, session.ID, s.ID(next))

	other := NewSessions(NewMemoryBackend(), []byte("other-secret"), Options{})
	forged := httptest.NewRequest(http.MethodGet, "/movies", nil)
	forged.AddCookie(cookies[0])
	assert.Equal(t, "", other.ID(forged))

	assert.Equal(t, "", s.ID(httptest.NewRequest(http.MethodGet, "/movies", nil)))
}

func TestSessionsClear(t *testing.T) {
	s := NewSessions(NewMemoryBackend(), []byte("test-secret"), Options{})

	w := httptest.NewRecorder()
	require.NoError(t, s.Clear(w, httptest.NewRequest(http.MethodPost, "/logout", nil)))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].MaxAge < 0)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisBackend(client, "moviewatch-test")
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	mr, b := newTestRedis(t)

	session := &models.Session{ID: "redis-sid", Identity: alice, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, b.Save(ctx, session))
	assert.True(t, mr.Exists("moviewatch-test:redis-sid"))
	ttl := mr.TTL("moviewatch-test:redis-sid")
	assert.True(t, ttl > 0 && ttl <= time.Minute, ttl)

	got, err := b.Load(ctx, "redis-sid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice, got.Identity)

	require.NoError(t, b.Destroy(ctx, "redis-sid"))
	require.NoError(t, b.Destroy(ctx, "redis-sid"))
	got, err = b.Load(ctx, "redis-sid")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, b.Save(ctx, &models.Session{ID: "past", ExpiresAt: time.Now().Add(-time.Second)}))
	assert.False(t, mr.Exists("moviewatch-test:past"))
}

func TestRedisBackendKeyExpires(t *testing.T) {
	ctx := context.Background()
	mr, b := newTestRedis(t)

	require.NoError(t, b.Save(ctx, &models.Session{ID: "short", Identity: alice, ExpiresAt: time.Now().Add(30 * time.Second)}))
	mr.FastForward(31 * time.Second)

	got, err := b.Load(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisBackendThroughSessions(t *testing.T) {
	ctx := context.Background()
	mr, b := newTestRedis(t)
	s := NewSessions(b, []byte("test-secret"), Options{TTL: time.Hour})

	session, err := s.Create(ctx, alice)
	require.NoError(t, err)

	identity, err := s.Load(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, alice, *identity)

	mr.FastForward(time.Hour + time.Second)
	identity, err = s.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestRedisBackendErrors(t *testing.T) {
	ctx := context.Background()
	mr, b := newTestRedis(t)

	require.NoError(t, mr.Set("moviewatch-test:garbled", "{not json"))
	_, err := b.Load(ctx, "garbled")
	assert.Error(t, err)

	mr.Close()
	_, err = b.Load(ctx, "any")
	assert.Error(t, err)
	assert.Error(t, b.Save(ctx, &models.Session{ID: "x", ExpiresAt: time.Now().Add(time.Minute)}))
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
