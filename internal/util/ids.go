package util

import (
	"strconv"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID mints a surrogate identifier with a short type prefix, e.g.
// "award_x3f9k2m1p0qz". Identifiers are never reused. Falls back to a
// timestamp id when the system RNG is unavailable.
func NewID(prefix string) string {
	id, err := gonanoid.Generate(idAlphabet, 12)
	if err != nil {
		id = strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return prefix + "_" + id
}
