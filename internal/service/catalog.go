package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"moviewatch/internal/apperr"
	"moviewatch/internal/db"
	"moviewatch/internal/models"
)

type MovieStore interface {
	Create(ctx context.Context, movie *models.Movie) error
	Get(ctx context.Context, id string) (*models.Movie, error)
	Update(ctx context.Context, movie *models.Movie) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.MovieFilter) ([]*models.Movie, error)
	DistinctGenres(ctx context.Context) ([]string, error)
}

type ListQuery struct {
	Genre string
	Mine  bool
}

type Catalog struct {
	movies MovieStore
	policy Policy
	log    *slog.Logger
	now    func() time.Time
}

func NewCatalog(movies MovieStore, log *slog.Logger) *Catalog {
	return &Catalog{movies: movies, log: log, now: time.Now}
}

// List returns movies newest first. Mine restricts the list to movies owned
// by identity and requires one.
func (c *Catalog) List(ctx context.Context, identity *models.Identity, q ListQuery) ([]*models.Movie, error) {
	filter := models.MovieFilter{Genre: strings.TrimSpace(q.Genre)}
	if q.Mine {
		if identity == nil {
			return nil, apperr.Unauthenticated()
		}
		filter.OwnerID = identity.UserID
	}

	movies, err := c.movies.List(ctx, filter)
	if err != nil {
		return nil, storeError(c.log, "list movies", err)
	}
	return movies, nil
}

func (c *Catalog) Genres(ctx context.Context) ([]string, error) {
	genres, err := c.movies.DistinctGenres(ctx)
	if err != nil {
		return nil, storeError(c.log, "distinct genres", err)
	}
	sort.Strings(genres)
	return genres, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*models.Movie, error) {
	movie, err := c.movies.Get(ctx, id)
	if err != nil {
		return nil, c.lookupError("get movie", err)
	}
	return movie, nil
}

func (c *Catalog) Create(ctx context.Context, identity *models.Identity, in MovieInput) (*models.Movie, error) {
	if !c.policy.CanCreate(identity) {
		return nil, apperr.Unauthenticated()
	}

	f := movieFields{
		Title:       trimmed(in.Title),
		Description: trimmed(in.Description),
		Genres:      ParseGenres(trimmed(in.Genres)),
		MaxYear:     c.now().Year() + 1,
	}
	bad := map[string]string{}
	f.parseYear(trimmed(in.Year), bad)
	f.parseRating(trimmed(in.Rating), bad)
	if err := c.checkFields(&f, bad); err != nil {
		return nil, err
	}

	movie := &models.Movie{ID: uuid.NewString()}
	f.apply(movie)
	owner := identity.UserID
	movie.OwnerID = &owner
	movie.CreatedAt = c.now().UTC()

	if err := c.movies.Create(ctx, movie); err != nil {
		return nil, storeError(c.log, "create movie", err)
	}
	return movie, nil
}

// Update applies a partial edit. Missing or blank description, genres and
// rating keep their stored values; a submitted title or year is validated
// like on create.
func (c *Catalog) Update(ctx context.Context, identity *models.Identity, id string, in MovieInput) (*models.Movie, error) {
	movie, err := c.authorize(ctx, identity, id, "get movie")
	if err != nil {
		return nil, err
	}

	year := movie.Year
	f := movieFields{
		Title:       movie.Title,
		Description: movie.Description,
		Year:        &year,
		Genres:      movie.Genres,
		Rating:      movie.Rating,
		MaxYear:     c.now().Year() + 1,
	}
	bad := map[string]string{}
	if in.Title != nil {
		f.Title = trimmed(in.Title)
	}
	if in.Year != nil {
		f.parseYear(trimmed(in.Year), bad)
	}
	if d := trimmed(in.Description); d != "" {
		f.Description = d
	}
	if genres := ParseGenres(trimmed(in.Genres)); len(genres) > 0 {
		f.Genres = genres
	}
	if r := trimmed(in.Rating); r != "" {
		f.parseRating(r, bad)
	}
	if err := c.checkFields(&f, bad); err != nil {
		return nil, err
	}
	f.apply(movie)

	if err := c.movies.Update(ctx, movie); err != nil {
		return nil, c.lookupError("update movie", err)
	}
	return movie, nil
}

func (c *Catalog) Delete(ctx context.Context, identity *models.Identity, id string) error {
	if _, err := c.authorize(ctx, identity, id, "get movie"); err != nil {
		return err
	}
	if err := c.movies.Delete(ctx, id); err != nil {
		return c.lookupError("delete movie", err)
	}
	return nil
}

func (c *Catalog) checkFields(f *movieFields, bad map[string]string) error {
	problems, err := f.check(bad)
	if err != nil {
		c.log.Error("validate movie", slog.Any("error", err))
		return apperr.Internal(err)
	}
	if len(problems) > 0 {
		return apperr.Validation(problems...)
	}
	return nil
}

// authorize loads the movie first so a missing movie is reported as not
// found whoever asks, then checks ownership.
func (c *Catalog) authorize(ctx context.Context, identity *models.Identity, id, op string) (*models.Movie, error) {
	movie, err := c.movies.Get(ctx, id)
	if err != nil {
		return nil, c.lookupError(op, err)
	}
	if identity == nil {
		return nil, apperr.Unauthenticated()
	}
	if !c.policy.CanModify(movie, identity) {
		return nil, apperr.Forbidden()
	}
	return movie, nil
}

func (c *Catalog) lookupError(op string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("Movie")
	}
	return storeError(c.log, op, err)
}
