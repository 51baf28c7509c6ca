package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier with a readable prefix.
func GenerateID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "_" + uuid.NewString()
}
