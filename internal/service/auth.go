package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"moviewatch/internal/apperr"
	"moviewatch/internal/db"
	"moviewatch/internal/models"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByUsernameOrEmail(ctx context.Context, username, email string) ([]*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

type SessionManager interface {
	Create(ctx context.Context, identity models.Identity) (*models.Session, error)
	Load(ctx context.Context, id string) (*models.Identity, error)
	Destroy(ctx context.Context, id string) error
}

type RegisterInput struct {
	Name     string
	Username string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

type Auth struct {
	users    UserStore
	hasher   PasswordHasher
	sessions SessionManager
	log      *slog.Logger
	now      func() time.Time

	// compared against when the username is unknown so both failure paths
	// pay for a bcrypt comparison
	dummyHash string
}

func NewAuth(users UserStore, hasher PasswordHasher, sessions SessionManager, log *slog.Logger) *Auth {
	a := &Auth{
		users:    users,
		hasher:   hasher,
		sessions: sessions,
		log:      log,
		now:      time.Now,
	}
	if h, err := hasher.Hash("moviewatch-timing-equalizer"); err == nil {
		a.dummyHash = h
	}
	return a
}

// Register creates a viewer account. The returned user has no password hash.
func (a *Auth) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, apperr.Internal(err)
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, registerMessage(fe))
		}
		return nil, apperr.Validation(problems...)
	}

	existing, err := a.users.FindByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, a.storeError("find user", err)
	}
	if conflict := conflictFields(existing, in.Username, in.Email); len(conflict) > 0 {
		return nil, apperr.Conflict(conflict...)
	}

	hash, err := a.hasher.Hash(in.Password)
	if err != nil {
		a.log.Error("failed to hash password", slog.Any("error", err))
		return nil, apperr.Internal(err)
	}

	name := in.Name
	if name == "" {
		name = in.Username
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Name:         name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         models.RoleViewer,
		CreatedAt:    a.now().UTC(),
	}

	if err := a.users.Create(ctx, user); err != nil {
		// lost a race with a concurrent registration
		var dup *db.DuplicateError
		if errors.As(err, &dup) {
			field := dup.Field
			if field == "" {
				field = "username"
			}
			return nil, apperr.Conflict(field)
		}
		return nil, a.storeError("create user", err)
	}

	user.PasswordHash = ""
	return user, nil
}

func conflictFields(existing []*models.User, username, email string) []string {
	var usernameTaken, emailTaken bool
	for _, u := range existing {
		if u.Username == username {
			usernameTaken = true
		}
		if u.Email == email {
			emailTaken = true
		}
	}
	var fields []string
	if usernameTaken {
		fields = append(fields, "username")
	}
	if emailTaken {
		fields = append(fields, "email")
	}
	return fields
}

// Login verifies credentials and starts a session. Unknown usernames and
// wrong passwords produce the same error.
func (a *Auth) Login(ctx context.Context, username, password string) (*models.Session, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	user, err := a.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return nil, a.storeError("find user", err)
		}
		if a.dummyHash != "" {
			a.hasher.Verify(password, a.dummyHash)
		}
		return nil, apperr.Authentication()
	}

	ok, err := a.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		a.log.Warn("stored password hash is unreadable", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, apperr.Authentication()
	}
	if !ok {
		return nil, apperr.Authentication()
	}

	session, err := a.sessions.Create(ctx, user.Identity())
	if err != nil {
		a.log.Error("failed to save session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, apperr.SessionSave(err)
	}
	return session, nil
}

// Logout destroys the session. Unknown ids are not an error.
func (a *Auth) Logout(ctx context.Context, sessionID string) error {
	if err := a.sessions.Destroy(ctx, sessionID); err != nil {
		return a.storeError("destroy session", err)
	}
	return nil
}

// Resolve maps a session id to its identity; nil means anonymous.
func (a *Auth) Resolve(ctx context.Context, sessionID string) (*models.Identity, error) {
	if sessionID == "" {
		return nil, nil
	}
	identity, err := a.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, a.storeError("load session", err)
	}
	return identity, nil
}

func (a *Auth) storeError(op string, err error) error {
	return storeError(a.log, op, err)
}

// storeError converts a store failure into an apperr kind, logging anything
// unexpected.
func storeError(log *slog.Logger, op string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, db.ErrUnavailable):
		log.Warn("store unavailable", slog.String("op", op), slog.Any("error", err))
		return apperr.StoreUnavailable(err)
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound("")
	default:
		log.Error("store operation failed", slog.String("op", op), slog.Any("error", err))
		return apperr.Internal(err)
	}
}
