package db

import (
	"context"
	"errors"
	"time"

	"moviewatch/internal/models"
)

// SessionStore keeps server-side sessions in the sessions table so any
// process sharing the database can resolve them.
type SessionStore struct {
	m   *Manager
	now func() time.Time
}

func NewSessionStore(m *Manager) *SessionStore {
	return &SessionStore{m: m, now: time.Now}
}

func (s *SessionStore) Save(ctx context.Context, session *models.Session) error {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	query := db.rebind("INSERT INTO sessions (id, user_id, username, name, expires_at) VALUES (?, ?, ?, ?, ?)")
	_, err = db.ExecContext(ctx, query,
		session.ID, session.Identity.UserID, session.Identity.Username, session.Identity.Name, session.ExpiresAt.UTC())
	return translate(err)
}

// Load returns nil without error when the session is unknown or expired.
// Expired rows are removed on the way out.
func (s *SessionStore) Load(ctx context.Context, id string) (*models.Session, error) {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	query := db.rebind("SELECT id, user_id, username, name, expires_at FROM sessions WHERE id = ?")
	session := &models.Session{}
	err = db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.Identity.UserID, &session.Identity.Username, &session.Identity.Name, &session.ExpiresAt)
	if err != nil {
		err = translate(err)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if session.IsExpired(s.now()) {
		if err := s.Destroy(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return session, nil
}

// Destroy is idempotent.
func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, db.rebind("DELETE FROM sessions WHERE id = ?"), id)
	return translate(err)
}

// PurgeExpired deletes every expired session and reports how many went.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, db.rebind("DELETE FROM sessions WHERE expires_at <= ?"), s.now().UTC())
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}
