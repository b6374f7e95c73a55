package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID returns a short random identifier for review items and
// topic events. Falls back to a fixed-size alphabet nanoid.
func NewID(prefix string) string {
	id, err := gonanoid.New()
	if err != nil {
		// gonanoid only fails when the OS entropy source does;
		// an empty suffix is still a usable (if poor) id.
		return prefix + "_"
	}
	return prefix + "_" + id
}
