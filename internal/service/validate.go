package service

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"moviewatch/internal/models"
)

const (
	MinYear           = 1888
	MaxRating         = 10.0
	MinPasswordLength = 6
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("releaseyear", releaseYear); err != nil {
		panic(err)
	}
	return v
}

// releaseYear checks the upper year bound, which moves with the calendar and
// is carried by the struct's MaxYear field.
func releaseYear(fl validator.FieldLevel) bool {
	parent := fl.Parent()
	if parent.Kind() == reflect.Ptr {
		parent = parent.Elem()
	}
	limit := parent.FieldByName("MaxYear")
	if !limit.IsValid() {
		return false
	}
	return fl.Field().Int() <= limit.Int()
}

// MovieInput is raw form input. A nil field was not submitted.
type MovieInput struct {
	Title       *string
	Description *string
	Year        *string
	Genres      *string
	Rating      *string
}

// Str is a helper for building MovieInput values.
func Str(s string) *string {
	return &s
}

// movieFields is a movie after parsing the form, before it is stored.
type movieFields struct {
	Title       string   `validate:"required"`
	Description string   `validate:"required"`
	Year        *int     `validate:"required,gte=1888,releaseyear"`
	Genres      []string `validate:"required,min=1"`
	Rating      *float64 `validate:"omitempty,gte=0,lte=10"`

	MaxYear int `validate:"-"`
}

func (f *movieFields) apply(m *models.Movie) {
	m.Title = f.Title
	m.Description = f.Description
	m.Year = *f.Year
	m.Genres = f.Genres
	m.Rating = f.Rating
}

var movieFieldOrder = []string{"Title", "Description", "Year", "Genres", "Rating"}

const msgRating = "Rating must be a number between 0 and 10"

// parseYear sets Year from raw. Unparseable input is recorded in bad and
// the field is left out of validation.
func (f *movieFields) parseYear(raw string, bad map[string]string) {
	f.Year = nil
	if raw == "" {
		return
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		bad["Year"] = "Year must be a whole number"
		return
	}
	f.Year = &year
}

// parseRating treats an empty value as "no rating".
func (f *movieFields) parseRating(raw string, bad map[string]string) {
	f.Rating = nil
	if raw == "" {
		return
	}
	rating, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		bad["Rating"] = msgRating
		return
	}
	f.Rating = &rating
}

// check validates f and returns the user-facing problems in form order,
// including the parse problems already in bad.
func (f *movieFields) check(bad map[string]string) ([]string, error) {
	except := make([]string, 0, len(bad))
	for field := range bad {
		except = append(except, field)
	}

	err := validate.StructExcept(f, except...)
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		for _, fe := range verrs {
			bad[fe.StructField()] = f.message(fe)
		}
	case err != nil:
		return nil, err
	}

	var problems []string
	for _, field := range movieFieldOrder {
		if msg, ok := bad[field]; ok {
			problems = append(problems, msg)
		}
	}
	return problems, nil
}

func (f *movieFields) message(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Title":
		return "Title is needed"
	case "Description":
		return "Description is needed"
	case "Year":
		if fe.Tag() == "required" {
			return "Year is needed"
		}
		return fmt.Sprintf("Year must be between %d and %d", MinYear, f.MaxYear)
	case "Genres":
		return "At least one genre is needed"
	case "Rating":
		return msgRating
	default:
		return fe.Error()
	}
}

// registerMessage turns a failed RegisterInput rule into a form message.
func registerMessage(fe validator.FieldError) string {
	switch fe.StructField() + "." + fe.Tag() {
	case "Username.required":
		return "Username is needed"
	case "Email.required":
		return "Email is needed"
	case "Email.email":
		return "Email address is not valid"
	case "Password.required":
		return "Password is needed"
	case "Password.min":
		return fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)
	default:
		return fe.Error()
	}
}

// ParseGenres splits comma separated input, drops empty tokens, capitalizes
// each label and removes repeats while keeping the first occurrence order.
func ParseGenres(raw string) []string {
	var (
		genres = []string{}
		seen   = map[string]bool{}
	)
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		genre := Capitalize(token)
		if seen[genre] {
			continue
		}
		seen[genre] = true
		genres = append(genres, genre)
	}
	return genres
}

// Capitalize upper-cases the first letter and lower-cases the rest.
func Capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
