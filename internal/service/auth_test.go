package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviewatch/internal/apperr"
	"moviewatch/internal/db"
	"moviewatch/internal/models"
	"moviewatch/internal/security"
)

func newTestAuth(users UserStore) (*Auth, *security.Sessions) {
	sessions := security.NewSessions(security.NewMemoryBackend(), []byte("test-secret"), security.Options{TTL: time.Hour})
	return NewAuth(users, plainHasher{}, sessions, discardLogger()), sessions
}

func aliceInput() RegisterInput {
	return RegisterInput{Name: "Alice", Username: "Alice", Email: "Alice@X.com", Password: "secret1"}
}

func TestRegisterNormalizesAndHidesHash(t *testing.T) {
	users := newFakeUsers()
	auth, _ := newTestAuth(users)

	user, err := auth.Register(context.Background(), aliceInput())
	require.NoError(t, err)

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@x.com", user.Email)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, models.RoleViewer, user.Role)
	assert.Empty(t, user.PasswordHash)
	assert.NotEmpty(t, user.ID)

	stored, err := users.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "hashed:secret1", stored.PasswordHash)
}

func TestRegisterDefaultsNameToUsername(t *testing.T) {
	auth, _ := newTestAuth(newFakeUsers())
	in := aliceInput()
	in.Name = "  "

	user, err := auth.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name)
}

func TestRegisterValidation(t *testing.T) {
	users := newFakeUsers()
	auth, _ := newTestAuth(users)

	_, err := auth.Register(context.Background(), RegisterInput{Email: "nope", Password: "123"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, []string{
		"Username is needed",
		"Email address is not valid",
		"Password must be at least 6 characters",
	}, appErr.Messages)
	assert.Equal(t, 0, users.count())
}

func TestRegisterValidationRules(t *testing.T) {
	tests := []struct {
		name string
		in   RegisterInput
		want []string
	}{
		{"everything missing", RegisterInput{}, []string{
			"Username is needed", "Email is needed", "Password is needed",
		}},
		{"blank after trimming", RegisterInput{Username: "  ", Email: " ", Password: "secret1"}, []string{
			"Username is needed", "Email is needed",
		}},
		{"email without domain", withRegister(func(in *RegisterInput) { in.Email = "alice@" }), []string{
			"Email address is not valid",
		}},
		{"password one short", withRegister(func(in *RegisterInput) { in.Password = "12345" }), []string{
			"Password must be at least 6 characters",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, _ := newTestAuth(newFakeUsers())
			_, err := auth.Register(context.Background(), tt.in)
			appErr := apperr.From(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			assert.Equal(t, tt.want, appErr.Messages)
		})
	}

	auth, _ := newTestAuth(newFakeUsers())
	_, err := auth.Register(context.Background(), withRegister(func(in *RegisterInput) { in.Password = "123456" }))
	assert.NoError(t, err)
}

func withRegister(f func(*RegisterInput)) RegisterInput {
	in := aliceInput()
	f(&in)
	return in
}

func TestRegisterConflicts(t *testing.T) {
	users := newFakeUsers()
	auth, _ := newTestAuth(users)
	ctx := context.Background()

	_, err := auth.Register(ctx, aliceInput())
	require.NoError(t, err)

	tests := []struct {
		name   string
		in     RegisterInput
		fields []string
	}{
		{"username differs only by case", RegisterInput{Username: "ALICE", Email: "new@x.com", Password: "secret1"}, []string{"username"}},
		{"email differs only by case", RegisterInput{Username: "alice2", Email: "ALICE@x.com", Password: "secret1"}, []string{"email"}},
		{"both", RegisterInput{Username: "alice", Email: "alice@x.com", Password: "secret1"}, []string{"username", "email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Register(ctx, tt.in)
			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperr.KindConflict, appErr.Kind)
			assert.Equal(t, tt.fields, appErr.Fields)
		})
	}
	assert.Equal(t, 1, users.count())
}

func TestRegisterRaceFoldsIntoConflict(t *testing.T) {
	users := newFakeUsers()
	users.blindLookups = true
	auth, _ := newTestAuth(users)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := auth.Register(context.Background(), aliceInput())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
	assert.Equal(t, 1, users.count())
}

func TestRegisterStoreUnavailable(t *testing.T) {
	users := newFakeUsers()
	users.err = fmt.Errorf("%w: connection refused", db.ErrUnavailable)
	auth, _ := newTestAuth(users)

	_, err := auth.Register(context.Background(), aliceInput())
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.NotContains(t, apperr.From(err).Message(), "connection refused")
}

func TestLoginErrorsAreIdentical(t *testing.T) {
	auth, _ := newTestAuth(newFakeUsers())
	ctx := context.Background()
	_, err := auth.Register(ctx, aliceInput())
	require.NoError(t, err)

	_, wrongPassword := auth.Login(ctx, "alice", "wrong")
	_, unknownUser := auth.Login(ctx, "mallory", "secret1")

	require.ErrorIs(t, wrongPassword, apperr.ErrAuthentication)
	require.ErrorIs(t, unknownUser, apperr.ErrAuthentication)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.Equal(t, apperr.From(wrongPassword).Messages, apperr.From(unknownUser).Messages)
	assert.Equal(t, "Invalid username or password", apperr.From(unknownUser).Message())
}

func TestLoginIssuesSessionSnapshot(t *testing.T) {
	auth, _ := newTestAuth(newFakeUsers())
	ctx := context.Background()
	user, err := auth.Register(ctx, aliceInput())
	require.NoError(t, err)

	session, err := auth.Login(ctx, "  ALICE ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: user.ID, Username: "alice", Name: "Alice"}, session.Identity)

	identity, err := auth.Resolve(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, user.ID, identity.UserID)
}

type brokenSessions struct{}

func (brokenSessions) Create(context.Context, models.Identity) (*models.Session, error) {
	return nil, errors.New("redis: connection pool timeout")
}
func (brokenSessions) Load(context.Context, string) (*models.Identity, error) { return nil, nil }
func (brokenSessions) Destroy(context.Context, string) error                  { return nil }

func TestLoginSessionSaveFailure(t *testing.T) {
	users := newFakeUsers()
	ok, _ := newTestAuth(users)
	_, err := ok.Register(context.Background(), aliceInput())
	require.NoError(t, err)

	auth := NewAuth(users, plainHasher{}, brokenSessions{}, discardLogger())
	_, err = auth.Login(context.Background(), "alice", "secret1")

	assert.ErrorIs(t, err, apperr.ErrSessionSave)
	assert.False(t, errors.Is(err, apperr.ErrAuthentication))
}

func TestLogoutMakesSessionAnonymous(t *testing.T) {
	auth, _ := newTestAuth(newFakeUsers())
	ctx := context.Background()
	_, err := auth.Register(ctx, aliceInput())
	require.NoError(t, err)
	session, err := auth.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, session.ID))
	require.NoError(t, auth.Logout(ctx, session.ID))

	for i := 0; i < 3; i++ {
		identity, err := auth.Resolve(ctx, session.ID)
		require.NoError(t, err)
		assert.Nil(t, identity)
	}
}

func TestResolveEmptyID(t *testing.T) {
	auth, _ := newTestAuth(newFakeUsers())
	identity, err := auth.Resolve(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, identity)
}
