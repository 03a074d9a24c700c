package models

import "time"

type Movie struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Year        int       `json:"year"`
	Genres      []string  `json:"genres"`
	Rating      *float64  `json:"rating,omitempty"`
	OwnerID     *string   `json:"owner_id,omitempty"` // nil for legacy/public movies
	CreatedAt   time.Time `json:"created_at"`
}

// OwnedBy reports whether userID is the recorded owner of the movie.
func (m *Movie) OwnedBy(userID string) bool {
	return m.OwnerID != nil && userID != "" && *m.OwnerID == userID
}

// MovieFilter narrows a movie listing. Zero values mean "no filter".
type MovieFilter struct {
	Genre   string
	OwnerID string
}
