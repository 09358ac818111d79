package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random 32-hex-digit id, optionally as "prefix_<hex>".
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
