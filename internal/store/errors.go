package store

import (
	"database/sql"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
	// ErrPartialDelete means the record itself is gone but rows that hang
	// off it could not all be removed.
	ErrPartialDelete = errors.New("store: deleted with incomplete cleanup")
)

// IsNotFound reports whether err means the record does not exist, whichever
// backend produced it.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, mongo.ErrNoDocuments)
}
