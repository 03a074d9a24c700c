package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"moviewatch/internal/models"
)

const movieColumns = "m.id, m.title, m.description, m.year, m.rating, m.owner_id, m.created_at"

type MovieStore struct {
	m *Manager
}

func NewMovieStore(m *Manager) *MovieStore {
	return &MovieStore{m: m}
}

func scanMovie(row interface{ Scan(...any) error }) (*models.Movie, error) {
	movie := &models.Movie{}
	var (
		rating  sql.NullFloat64
		ownerID sql.NullString
	)
	err := row.Scan(&movie.ID, &movie.Title, &movie.Description, &movie.Year, &rating, &ownerID, &movie.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		r := rating.Float64
		movie.Rating = &r
	}
	if ownerID.Valid {
		id := ownerID.String
		movie.OwnerID = &id
	}
	return movie, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// genreKey folds a genre for case-insensitive matching. The folding happens
// here rather than in SQL since sqlite's LOWER only handles ASCII.
func genreKey(genre string) string {
	return strings.ToLower(genre)
}

func (s *MovieStore) Create(ctx context.Context, movie *models.Movie) error {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer tx.Rollback()

	query := db.rebind(`INSERT INTO movies (id, title, description, year, rating, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = tx.ExecContext(ctx, query,
		movie.ID, movie.Title, movie.Description, movie.Year,
		nullFloat(movie.Rating), nullString(movie.OwnerID), movie.CreatedAt.UTC())
	if err != nil {
		return translate(err)
	}

	if err := insertGenres(ctx, db, tx, movie.ID, movie.Genres); err != nil {
		return err
	}
	return translate(tx.Commit())
}

func insertGenres(ctx context.Context, db *DB, tx *sql.Tx, movieID string, genres []string) error {
	query := db.rebind("INSERT INTO movie_genres (movie_id, position, genre, genre_key) VALUES (?, ?, ?, ?)")
	for i, genre := range genres {
		if _, err := tx.ExecContext(ctx, query, movieID, i, genre, genreKey(genre)); err != nil {
			return translate(err)
		}
	}
	return nil
}

func (s *MovieStore) Get(ctx context.Context, id string) (*models.Movie, error) {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	query := db.rebind("SELECT " + movieColumns + " FROM movies m WHERE m.id = ?")
	movie, err := scanMovie(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}

	if err := loadGenres(ctx, db, []*models.Movie{movie}); err != nil {
		return nil, err
	}
	return movie, nil
}

// Update replaces every column and the genre list of an existing movie.
// ErrNotFound means the row disappeared since it was read.
func (s *MovieStore) Update(ctx context.Context, movie *models.Movie) error {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer tx.Rollback()

	query := db.rebind("UPDATE movies SET title = ?, description = ?, year = ?, rating = ? WHERE id = ?")
	res, err := tx.ExecContext(ctx, query,
		movie.Title, movie.Description, movie.Year, nullFloat(movie.Rating), movie.ID)
	if err != nil {
		return translate(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return translate(err)
	} else if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, db.rebind("DELETE FROM movie_genres WHERE movie_id = ?"), movie.ID); err != nil {
		return translate(err)
	}
	if err := insertGenres(ctx, db, tx, movie.ID, movie.Genres); err != nil {
		return err
	}
	return translate(tx.Commit())
}

func (s *MovieStore) Delete(ctx context.Context, id string) error {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.rebind("DELETE FROM movie_genres WHERE movie_id = ?"), id); err != nil {
		return translate(err)
	}
	res, err := tx.ExecContext(ctx, db.rebind("DELETE FROM movies WHERE id = ?"), id)
	if err != nil {
		return translate(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return translate(err)
	} else if n == 0 {
		return ErrNotFound
	}
	return translate(tx.Commit())
}

// List returns movies newest first. The genre filter is compared as a
// literal, case-insensitively, against each stored genre.
func (s *MovieStore) List(ctx context.Context, filter models.MovieFilter) ([]*models.Movie, error) {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Genre != "" {
		where = append(where, `EXISTS (SELECT 1 FROM movie_genres g
			WHERE g.movie_id = m.id AND g.genre_key = ?)`)
		args = append(args, genreKey(filter.Genre))
	}
	if filter.OwnerID != "" {
		where = append(where, "m.owner_id = ?")
		args = append(args, filter.OwnerID)
	}

	query := "SELECT " + movieColumns + " FROM movies m"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY m.created_at DESC, m.id DESC"

	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, translate(err)
	}

	movies := []*models.Movie{}
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			rows.Close()
			return nil, translate(err)
		}
		movies = append(movies, movie)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, translate(err)
	}

	if err := loadGenres(ctx, db, movies); err != nil {
		return nil, err
	}
	return movies, nil
}

func loadGenres(ctx context.Context, db *DB, movies []*models.Movie) error {
	if len(movies) == 0 {
		return nil
	}

	byID := make(map[string]*models.Movie, len(movies))
	args := make([]any, 0, len(movies))
	for _, m := range movies {
		m.Genres = []string{}
		byID[m.ID] = m
		args = append(args, m.ID)
	}

	query := fmt.Sprintf("SELECT movie_id, genre FROM movie_genres WHERE movie_id IN (%s) ORDER BY movie_id, position",
		placeholders(len(args)))
	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		var movieID, genre string
		if err := rows.Scan(&movieID, &genre); err != nil {
			return translate(err)
		}
		if m, ok := byID[movieID]; ok {
			m.Genres = append(m.Genres, genre)
		}
	}
	return translate(rows.Err())
}

// DistinctGenres returns every stored genre label once, sorted.
func (s *MovieStore) DistinctGenres(ctx context.Context) ([]string, error) {
	db, err := s.m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT DISTINCT genre FROM movie_genres")
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	genres := []string{}
	for rows.Next() {
		var genre string
		if err := rows.Scan(&genre); err != nil {
			return nil, translate(err)
		}
		genres = append(genres, genre)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	// sorted here so the order does not depend on the database collation
	sort.Strings(genres)
	return genres, nil
}
