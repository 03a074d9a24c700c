package security

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"moviewatch/internal/models"
)

const (
	CookieName = "moviewatch_session"
	sidKey     = "sid"
)

// Backend persists sessions outside process memory. Load returns nil
// without error for unknown or expired ids and Destroy is idempotent.
type Backend interface {
	Save(ctx context.Context, session *models.Session) error
	Load(ctx context.Context, id string) (*models.Session, error)
	Destroy(ctx context.Context, id string) error
}

type Options struct {
	TTL    time.Duration
	Secure bool
}

// Sessions issues opaque session ids, stores the identity snapshot in a
// Backend and carries the id in a signed cookie.
type Sessions struct {
	backend Backend
	cookies *sessions.CookieStore
	ttl     time.Duration
	now     func() time.Time
}

func NewSessions(backend Backend, secret []byte, opts Options) *Sessions {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}

	store := sessions.NewCookieStore(secret)
	// MaxAge also bounds how long the signed value is accepted.
	store.MaxAge(int(opts.TTL / time.Second))
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = opts.Secure
	store.Options.SameSite = http.SameSiteLaxMode

	return &Sessions{
		backend: backend,
		cookies: store,
		ttl:     opts.TTL,
		now:     time.Now,
	}
}

// NewSecret returns a random signing key for deployments without one.
func NewSecret() []byte {
	return securecookie.GenerateRandomKey(32)
}

func newSessionID() (string, error) {
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return "", errors.New("security: random source unavailable")
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}

// Create saves a new session for identity. The session is durable in the
// backend when Create returns.
func (s *Sessions) Create(ctx context.Context, identity models.Identity) (*models.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:        id,
		Identity:  identity,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.backend.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// Load returns the identity for id, or nil when the session is gone.
func (s *Sessions) Load(ctx context.Context, id string) (*models.Identity, error) {
	if id == "" {
		return nil, nil
	}
	session, err := s.backend.Load(ctx, id)
	if err != nil || session == nil {
		return nil, err
	}
	if session.IsExpired(s.now()) {
		return nil, nil
	}
	identity := session.Identity
	return &identity, nil
}

func (s *Sessions) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.backend.Destroy(ctx, id)
}

// ID returns the session id carried by the request cookie. Missing or
// tampered cookies yield "".
func (s *Sessions) ID(r *http.Request) string {
	cookie, err := s.cookies.Get(r, CookieName)
	if err != nil {
		return ""
	}
	id, _ := cookie.Values[sidKey].(string)
	return id
}

// Issue writes the cookie for session.
func (s *Sessions) Issue(w http.ResponseWriter, r *http.Request, session *models.Session) error {
	cookie, _ := s.cookies.New(r, CookieName)
	cookie.Values[sidKey] = session.ID
	return cookie.Save(r, w)
}

// Clear expires the cookie in the browser.
func (s *Sessions) Clear(w http.ResponseWriter, r *http.Request) error {
	cookie, _ := s.cookies.New(r, CookieName)
	cookie.Options.MaxAge = -1
	return cookie.Save(r, w)
}
