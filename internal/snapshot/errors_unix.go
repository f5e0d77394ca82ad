//go:build !windows

package snapshot

import (
	"errors"
	"syscall"
)

// isNotDirErr catches ENOTDIR raised when a path component is a file,
// e.g. /etc/passwd/child.
func isNotDirErr(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}
