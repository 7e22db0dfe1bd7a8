package util

import (
	"fmt"
	"math/rand"
)

// GeneratePublicID returns a prefixed six-digit public identifier, e.g. E042917.
// Uniqueness is enforced by the database index; callers retry on collision.
func GeneratePublicID(prefix string) string {
	return fmt.Sprintf("%s%06d", prefix, rand.Intn(1000000))
}
