package router

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"moviewatch/internal/http/handlers"
)

type Deps struct {
	Auth    handlers.AuthService
	Catalog handlers.CatalogService
	Cookies handlers.Cookies
	Views   handlers.Renderer
	Store   handlers.Pinger
	Log     *slog.Logger
}

func Setup(d Deps) *mux.Router {
	// Genre names may contain '/', so route on the escaped path.
	r := mux.NewRouter().UseEncodedPath()
	r.Use(handlers.Logging(d.Log), handlers.Recover(d.Log), handlers.Session(d.Auth, d.Cookies, d.Log))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(d.Auth, d.Cookies, d.Views, d.Log)
	movieHandler := handlers.NewMovieHandler(d.Catalog, d.Views, d.Log)
	healthHandler := handlers.NewHealthHandler(d.Store, d.Log)

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/movies", http.StatusFound)
	}).Methods("GET")
	r.HandleFunc("/healthz", healthHandler.Health).Methods("GET")

	r.HandleFunc("/register", authHandler.RegisterForm).Methods("GET")
	r.HandleFunc("/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/login", authHandler.LoginForm).Methods("GET")
	r.HandleFunc("/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/logout", authHandler.Logout).Methods("POST")

	// Fixed paths are registered before /movies/{id} so they win the match.
	r.HandleFunc("/movies", movieHandler.List).Methods("GET")
	r.HandleFunc("/movies/mine", movieHandler.Mine).Methods("GET")
	r.HandleFunc("/movies/genre/{genre}", movieHandler.ByGenre).Methods("GET")
	r.HandleFunc("/movies/add", movieHandler.AddForm).Methods("GET")
	r.HandleFunc("/movies/add", movieHandler.Add).Methods("POST")
	r.HandleFunc("/movies/edit/{id}", movieHandler.EditForm).Methods("GET")
	r.HandleFunc("/movies/edit/{id}", movieHandler.Edit).Methods("POST")
	r.HandleFunc("/movies/delete/{id}", movieHandler.Delete).Methods("POST")
	r.HandleFunc("/movies/{id}", movieHandler.Show).Methods("GET")

	return r
}
