// Package web renders the HTML views.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"moviewatch/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"login", "register", "movies", "movie", "add", "edit", "error"}

// Page is the data handed to every template.
type Page struct {
	Title    string
	Identity *models.Identity
	Errors   []string
	Form     map[string]string

	Movies    []*models.Movie
	Movie     *models.Movie
	Genres    []string
	Genre     string
	Mine      bool
	CanModify bool
}

// Value returns the submitted form value for field, or "".
func (p *Page) Value(field string) string {
	if p.Form == nil {
		return ""
	}
	return p.Form[field]
}

type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"join":   strings.Join,
	"rating": FormatRating,
	"owns": func(m *models.Movie, id *models.Identity) bool {
		return m != nil && id != nil && m.OwnedBy(id.UserID)
	},
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes the named page into a buffer. Nothing is written to w when
// execution fails.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page *Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	if page == nil {
		page = &Page{}
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func FormatRating(r *float64) string {
	if r == nil {
		return ""
	}
	return strconv.FormatFloat(*r, 'f', -1, 64)
}
