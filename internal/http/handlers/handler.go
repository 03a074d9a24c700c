package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"moviewatch/internal/apperr"
	"moviewatch/internal/models"
	"moviewatch/internal/service"
	"moviewatch/internal/web"
)

type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.Session, error)
	Logout(ctx context.Context, sessionID string) error
	Resolve(ctx context.Context, sessionID string) (*models.Identity, error)
}

type CatalogService interface {
	List(ctx context.Context, identity *models.Identity, q service.ListQuery) ([]*models.Movie, error)
	Genres(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*models.Movie, error)
	Create(ctx context.Context, identity *models.Identity, in service.MovieInput) (*models.Movie, error)
	Update(ctx context.Context, identity *models.Identity, id string, in service.MovieInput) (*models.Movie, error)
	Delete(ctx context.Context, identity *models.Identity, id string) error
}

// Cookies carries the session id between requests.
type Cookies interface {
	ID(r *http.Request) string
	Issue(w http.ResponseWriter, r *http.Request, session *models.Session) error
	Clear(w http.ResponseWriter, r *http.Request) error
}

type Renderer interface {
	Render(w http.ResponseWriter, status int, name string, page *web.Page) error
}

// responder holds what every handler needs to answer a request.
type responder struct {
	views Renderer
	log   *slog.Logger
}

func (rs responder) render(w http.ResponseWriter, r *http.Request, status int, name string, page *web.Page) {
	if page == nil {
		page = &web.Page{}
	}
	page.Identity = IdentityFrom(r.Context())
	if err := rs.views.Render(w, status, name, page); err != nil {
		rs.log.Error("render failed", slog.String("page", name), slog.Any("error", err))
		http.Error(w, apperr.MsgInternal, http.StatusInternalServerError)
	}
}

// fail answers with the status for err's kind. Anonymous users are sent to
// the login form.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperr.ErrUnauthenticated) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	appErr := apperr.From(err)
	if errors.Is(appErr, apperr.ErrInternal) {
		rs.log.Error("request failed",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	status := appErr.Kind.StatusCode()
	rs.render(w, r, status, "error", &web.Page{
		Title:  http.StatusText(status),
		Errors: appErr.Messages,
	})
}

// formFailed re-renders a form for errors the user can fix by resubmitting
// and reports whether it did.
func (rs responder) formFailed(w http.ResponseWriter, r *http.Request, name string, page *web.Page, err error) bool {
	if !errors.Is(err, apperr.ErrValidation) &&
		!errors.Is(err, apperr.ErrConflict) &&
		!errors.Is(err, apperr.ErrAuthentication) {
		return false
	}
	appErr := apperr.From(err)
	page.Errors = appErr.Messages
	rs.render(w, r, appErr.Kind.StatusCode(), name, page)
	return true
}

// formValues copies the submitted values of fields, leaving out secrets.
func formValues(r *http.Request, fields ...string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f] = r.PostFormValue(f)
	}
	return out
}
