// Package ids defines the identifier shared by every stored record.
//
// Identifiers are 24-character lower-case hex object ids, the format the
// document store assigns. They are parsed once at the API boundary and passed
// by value afterwards.
package ids

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrInvalid = errors.New("invalid identifier")

type ID string

// New returns a fresh identifier.
func New() ID {
	return ID(primitive.NewObjectID().Hex())
}

func Parse(raw string) (ID, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if _, err := primitive.ObjectIDFromHex(value); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return ID(value), nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return id == ""
}

// Strings converts a list of identifiers to their string form.
func Strings(values []ID) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, value.String())
	}
	return out
}

// Contains reports whether target is present in values.
func Contains(values []ID, target ID) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
