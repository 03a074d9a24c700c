package service

import "moviewatch/internal/models"

// Policy decides catalog permissions from ownership alone. Roles play no
// part; a movie without an owner cannot be changed by anyone.
type Policy struct{}

func (Policy) CanCreate(identity *models.Identity) bool {
	return identity != nil
}

func (Policy) CanRead(*models.Movie, *models.Identity) bool {
	return true
}

func (Policy) CanModify(movie *models.Movie, identity *models.Identity) bool {
	return identity != nil && movie != nil && movie.OwnedBy(identity.UserID)
}
