// Package fsutil normalizes user and program supplied paths.
package fsutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid path")

// Resolver turns raw path strings into absolute, cleaned paths. It never
// touches the filesystem: "/a/../b" resolves to "/b" whether or not /a exists.
type Resolver struct {
	// Base anchors relative paths.
	Base string
	// Home replaces a leading "~". Empty disables expansion.
	Home string
}

// NewResolver returns a Resolver anchored at base with "~" mapped to home.
func NewResolver(base, home string) Resolver {
	return Resolver{Base: base, Home: home}
}

// Resolve normalizes rawPath into an absolute path.
func (r Resolver) Resolve(rawPath string) (string, error) {
	if strings.TrimSpace(rawPath) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(rawPath, 0) {
		return "", fmt.Errorf("%w: %q contains NUL", ErrInvalidPath, rawPath)
	}

	value := rawPath
	if expanded, ok := r.expandHome(value); ok {
		value = expanded
	}
	if filepath.IsAbs(value) {
		return filepath.Clean(value), nil
	}

	base := r.Base
	if base == "" || !filepath.IsAbs(base) {
		return "", fmt.Errorf("%w: relative path %q without absolute base", ErrInvalidPath, rawPath)
	}
	return filepath.Join(base, value), nil
}

func (r Resolver) expandHome(value string) (string, bool) {
	if r.Home == "" || !strings.HasPrefix(value, "~") {
		return "", false
	}
	if value == "~" {
		return r.Home, true
	}
	rest := value[1:]
	if !strings.HasPrefix(rest, "/") && !strings.HasPrefix(rest, string(filepath.Separator)) {
		// "~user" is left alone; it names another account.
		return "", false
	}
	return filepath.Join(r.Home, rest), true
}

// Parent returns the directory containing path, or path itself at the root.
func Parent(path string) string {
	return filepath.Dir(filepath.Clean(path))
}
