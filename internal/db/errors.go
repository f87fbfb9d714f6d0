package db

import (
	"errors"

	"github.com/nrjais/basestore/internal/apperr"
)

var (
	ErrNotFound   = errors.New("row not found")
	ErrDuplicate  = errors.New("duplicate key")
	ErrForeignKey = errors.New("foreign key violation")
)

// NotFoundAs replaces a missing-row error with the apperr form naming the
// entity and id. Other errors pass through.
func NotFoundAs(err error, entity, id string) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}
