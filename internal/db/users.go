package db

import (
	"context"

	"moviewatch/internal/models"
)

const userColumns = "id, username, name, email, password_hash, role, created_at"

type UserStore struct {
	m *Manager
}

func NewUserStore(m *Manager) *UserStore {
	return &UserStore{m: m}
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	var role string
	err := row.Scan(&user.ID, &user.Username, &user.Name, &user.Email, &user.PasswordHash, &role, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	if !user.Role.Valid() {
		user.Role = models.RoleViewer
	}
	return user, nil
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	query := db.rebind("INSERT INTO users (" + userColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
	_, err = db.ExecContext(ctx, query,
		user.ID, user.Username, user.Name, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt.UTC())
	return translate(err)
}

// FindByUsernameOrEmail returns every user whose username or email matches.
// Two rows come back when the username belongs to one user and the email to
// another.
func (s *UserStore) FindByUsernameOrEmail(ctx context.Context, username, email string) ([]*models.User, error) {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	query := db.rebind("SELECT " + userColumns + " FROM users WHERE username = ? OR email = ?")
	rows, err := db.QueryContext(ctx, query, username, email)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, translate(err)
		}
		users = append(users, user)
	}
	return users, translate(rows.Err())
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, "username", username)
}

func (s *UserStore) findOne(ctx context.Context, column, value string) (*models.User, error) {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	query := db.rebind("SELECT " + userColumns + " FROM users WHERE " + column + " = ?")
	user, err := scanUser(db.QueryRowContext(ctx, query, value))
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}
