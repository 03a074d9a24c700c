package handlers

import (
	"log/slog"
	"net/http"

	"moviewatch/internal/apperr"
	"moviewatch/internal/service"
	"moviewatch/internal/web"
)

type AuthHandler struct {
	responder
	auth    AuthService
	cookies Cookies
}

func NewAuthHandler(auth AuthService, cookies Cookies, views Renderer, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		responder: responder{views: views, log: log},
		auth:      auth,
		cookies:   cookies,
	}
}

func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register", &web.Page{Title: "Register"})
}

// Register creates the account and sends the user to the login form. The
// password is never echoed back into the re-rendered form.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	_, err := h.auth.Register(r.Context(), service.RegisterInput{
		Name:     r.PostFormValue("name"),
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		page := &web.Page{Title: "Register", Form: formValues(r, "name", "username", "email")}
		if !h.formFailed(w, r, "register", page, err) {
			h.fail(w, r, err)
		}
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login", &web.Page{Title: "Log in"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	session, err := h.auth.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		page := &web.Page{Title: "Log in", Form: formValues(r, "username")}
		if !h.formFailed(w, r, "login", page, err) {
			h.fail(w, r, err)
		}
		return
	}

	// a browser logging in again drops the session it arrived with
	if previous := h.cookies.ID(r); previous != "" && previous != session.ID {
		if err := h.auth.Logout(r.Context(), previous); err != nil {
			h.log.Warn("destroy previous session", slog.Any("error", err))
		}
	}

	if err := h.cookies.Issue(w, r, session); err != nil {
		h.log.Error("issue session cookie", slog.Any("error", err))
		_ = h.auth.Logout(r.Context(), session.ID)
		h.fail(w, r, apperr.SessionSave(err))
		return
	}
	http.Redirect(w, r, "/movies", http.StatusFound)
}

// Logout destroys the server side session before clearing the cookie. A
// failure to destroy is logged; the browser is logged out either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if id := h.cookies.ID(r); id != "" {
		if err := h.auth.Logout(r.Context(), id); err != nil {
			h.log.Warn("destroy session", slog.Any("error", err))
		}
	}
	if err := h.cookies.Clear(w, r); err != nil {
		h.log.Warn("clear session cookie", slog.Any("error", err))
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}
