// Package slug derives URL-safe identifiers and display colors for catalog
// entries. A slug is a deterministic lowercase, dash-separated rendering of a
// commodity's display name and is regenerated whenever the name changes.
package slug

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
)

var (
	// ErrEmptySlug is returned when a name reduces to nothing after
	// stripping unsupported characters.
	ErrEmptySlug = errors.New("slug: name contains no usable characters")
)

// nonAlnum matches every run of characters that cannot appear in a slug.
var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Make derives the slug for a display name.
// "Crude Oil (WTI)" → "crude-oil-wti".
func Make(name string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlnum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptySlug, name)
	}
	return s, nil
}

// RandomColor returns a pseudo-random fully saturated HSL color for a fresh
// portfolio position. Purely cosmetic; collisions are fine.
func RandomColor() string {
	return fmt.Sprintf("hsl(%d, 100%%, 50%%)", rand.Intn(360))
}
