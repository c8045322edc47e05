package document

import (
	"strings"

	"github.com/google/uuid"
)

// IDLength is the length of generated document ids.
const IDLength = 32

// NewID returns a random document id: a version 4 UUID as 32 lowercase hex digits.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateID checks that id has the shape NewID produces.
func ValidateID(id string) error {
	if len(id) != IDLength {
		return ErrInvalidID
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return ErrInvalidID
		}
	}
	return nil
}
