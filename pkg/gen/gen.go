// Package gen provides utility functions for generating values.
package gen

import (
	"fmt"

	"github.com/google/uuid"
)

const sep = "|"

// Key generates a key based on the provided strings a and b.
func Key(a, b string) string {
	return fmt.Sprintf("%s%s%s", a, sep, b)
}

// BatchID returns a time-ordered identifier for a new batch.
// Falls back to a random UUID if the clock sequence cannot be read.
func BatchID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// UUIDv5 generates a deterministic UUIDv5 based on the provided strings a and b.
func UUIDv5(a, b string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(Key(a, b))).String()
}
