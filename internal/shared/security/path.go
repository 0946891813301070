package security

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrPathEscape is returned when the joined elements leave the base directory.
var ErrPathEscape = errors.New("path escapes base directory")

// ResolveWithin joins elems under base and returns the absolute result. The
// joined elements must stay local to base: no "..", no absolute paths.
func ResolveWithin(base string, elems ...string) (string, error) {
	if base == "" {
		return "", errors.New("base directory is required")
	}
	root, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}

	rel := filepath.Join(elems...)
	if rel == "" {
		return root, nil
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return filepath.Join(root, rel), nil
}

// IsCheckupID reports whether id is a canonical UUID, the only form used
// for checkup file names.
func IsCheckupID(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.String() == id
}
