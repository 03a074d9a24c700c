package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"moviewatch/internal/db"
	"moviewatch/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUsers enforces uniqueness on insert like the real tables do.
type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
	err   error

	// lookups always miss, to simulate two registrations racing past the
	// uniqueness check
	blindLookups bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*models.User{}}
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, u := range f.users {
		if u.Username == user.Username {
			return &db.DuplicateError{Field: "username"}
		}
		if u.Email == user.Email {
			return &db.DuplicateError{Field: "email"}
		}
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUsers) FindByUsernameOrEmail(_ context.Context, username, email string) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.blindLookups {
		return nil, nil
	}
	var out []*models.User
	for _, u := range f.users {
		if u.Username == username || u.Email == email {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeUsers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// plainHasher keeps tests fast; bcrypt itself is covered in security.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Verify(password, hash string) (bool, error) {
	return hash == "hashed:"+password, nil
}

type fakeMovies struct {
	mu     sync.Mutex
	movies map[string]*models.Movie
	err    error

	// deleted between the lookup and the write
	vanishOnWrite bool
}

func newFakeMovies() *fakeMovies {
	return &fakeMovies{movies: map[string]*models.Movie{}}
}

func copyMovie(m *models.Movie) *models.Movie {
	cp := *m
	cp.Genres = append([]string(nil), m.Genres...)
	return &cp
}

func (f *fakeMovies) Create(_ context.Context, movie *models.Movie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.movies[movie.ID] = copyMovie(movie)
	return nil
}

func (f *fakeMovies) Get(_ context.Context, id string) (*models.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.movies[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return copyMovie(m), nil
}

func (f *fakeMovies) Update(_ context.Context, movie *models.Movie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vanishOnWrite {
		delete(f.movies, movie.ID)
	}
	if _, ok := f.movies[movie.ID]; !ok {
		return db.ErrNotFound
	}
	f.movies[movie.ID] = copyMovie(movie)
	return nil
}

func (f *fakeMovies) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vanishOnWrite {
		delete(f.movies, id)
	}
	if _, ok := f.movies[id]; !ok {
		return db.ErrNotFound
	}
	delete(f.movies, id)
	return nil
}

func (f *fakeMovies) List(_ context.Context, filter models.MovieFilter) ([]*models.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []*models.Movie{}
	for _, m := range f.movies {
		if filter.OwnerID != "" && !m.OwnedBy(filter.OwnerID) {
			continue
		}
		if filter.Genre != "" && !hasGenre(m, filter.Genre) {
			continue
		}
		out = append(out, copyMovie(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func hasGenre(m *models.Movie, genre string) bool {
	for _, g := range m.Genres {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}

func (f *fakeMovies) DistinctGenres(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, m := range f.movies {
		for _, g := range m.Genres {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	return out, nil
}
