package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"moviewatch/internal/apperr"
	"moviewatch/internal/models"
	"moviewatch/internal/service"
	"moviewatch/internal/web"
)

var movieFields = []string{"title", "description", "year", "genres", "rating"}

type MovieHandler struct {
	responder
	catalog CatalogService
	policy  service.Policy
}

func NewMovieHandler(catalog CatalogService, views Renderer, log *slog.Logger) *MovieHandler {
	return &MovieHandler{
		responder: responder{views: views, log: log},
		catalog:   catalog,
	}
}

func (h *MovieHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, service.ListQuery{Genre: r.URL.Query().Get("genre")})
}

func (h *MovieHandler) ByGenre(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, service.ListQuery{Genre: pathVar(r, "genre")})
}

func (h *MovieHandler) Mine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, service.ListQuery{Mine: true})
}

func (h *MovieHandler) list(w http.ResponseWriter, r *http.Request, q service.ListQuery) {
	ctx := r.Context()
	movies, err := h.catalog.List(ctx, IdentityFrom(ctx), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	genres, err := h.catalog.Genres(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	title := "Movies"
	if q.Mine {
		title = "My movies"
	}
	h.render(w, r, http.StatusOK, "movies", &web.Page{
		Title:  title,
		Movies: movies,
		Genres: genres,
		Genre:  strings.TrimSpace(q.Genre),
		Mine:   q.Mine,
	})
}

func (h *MovieHandler) Show(w http.ResponseWriter, r *http.Request) {
	movie, err := h.catalog.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "movie", &web.Page{
		Title:     movie.Title,
		Movie:     movie,
		CanModify: h.policy.CanModify(movie, IdentityFrom(r.Context())),
	})
}

func (h *MovieHandler) AddForm(w http.ResponseWriter, r *http.Request) {
	if !h.policy.CanCreate(IdentityFrom(r.Context())) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "add", &web.Page{Title: "Add movie"})
}

func (h *MovieHandler) Add(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := h.catalog.Create(ctx, IdentityFrom(ctx), movieInput(r)); err != nil {
		page := &web.Page{Title: "Add movie", Form: formValues(r, movieFields...)}
		if !h.formFailed(w, r, "add", page, err) {
			h.fail(w, r, err)
		}
		return
	}
	http.Redirect(w, r, "/movies", http.StatusFound)
}

// EditForm shows the form prefilled with the stored values. A missing movie
// is reported before the caller's rights are checked.
func (h *MovieHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	movie, err := h.catalog.Get(ctx, pathVar(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	identity := IdentityFrom(ctx)
	if identity == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if !h.policy.CanModify(movie, identity) {
		h.fail(w, r, apperr.Forbidden())
		return
	}
	h.render(w, r, http.StatusOK, "edit", &web.Page{
		Title: "Edit " + movie.Title,
		Movie: movie,
		Form:  movieForm(movie),
	})
}

func (h *MovieHandler) Edit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	id := pathVar(r, "id")
	if _, err := h.catalog.Update(ctx, IdentityFrom(ctx), id, movieInput(r)); err != nil {
		page := &web.Page{
			Title: "Edit movie",
			Movie: &models.Movie{ID: id},
			Form:  formValues(r, movieFields...),
		}
		if stored, getErr := h.catalog.Get(ctx, id); getErr == nil {
			page.Movie = stored
			page.Title = "Edit " + stored.Title
		}
		if !h.formFailed(w, r, "edit", page, err) {
			h.fail(w, r, err)
		}
		return
	}
	http.Redirect(w, r, "/movies/"+url.PathEscape(id), http.StatusFound)
}

func (h *MovieHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.Delete(ctx, IdentityFrom(ctx), pathVar(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/movies", http.StatusFound)
}

// pathVar returns an unescaped route variable. The router matches on the
// escaped path, so "%2F" inside a genre name stays part of the name.
func pathVar(r *http.Request, name string) string {
	v := mux.Vars(r)[name]
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// movieInput keeps absent fields nil so an edit can tell "not submitted"
// from "submitted empty".
func movieInput(r *http.Request) service.MovieInput {
	field := func(name string) *string {
		if _, ok := r.PostForm[name]; !ok {
			return nil
		}
		v := r.PostForm.Get(name)
		return &v
	}
	return service.MovieInput{
		Title:       field("title"),
		Description: field("description"),
		Year:        field("year"),
		Genres:      field("genres"),
		Rating:      field("rating"),
	}
}

func movieForm(m *models.Movie) map[string]string {
	return map[string]string{
		"title":       m.Title,
		"description": m.Description,
		"year":        strconv.Itoa(m.Year),
		"genres":      strings.Join(m.Genres, ", "),
		"rating":      web.FormatRating(m.Rating),
	}
}
