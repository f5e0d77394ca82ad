package bridge

import (
	"errors"

	"qian/internal/config"
	"qian/internal/fsutil"
	"qian/internal/shell"
	"qian/internal/snapshot"
	"qian/internal/watcher"
)

var ErrClosed = errors.New("bridge is closed")

// Kind classifies failures reported to the UI.
type Kind string

const (
	KindInvalidPath      Kind = "invalid_path"
	KindNotFound         Kind = "not_found"
	KindNotADirectory    Kind = "not_a_directory"
	KindPermissionDenied Kind = "permission_denied"
	KindWatchUnavailable Kind = "watch_unavailable"
	KindConfigIO         Kind = "config_io"
	KindInvalidArgument  Kind = "invalid_argument"
	KindInternal         Kind = "internal"
)

// KindOf maps err onto the failure taxonomy. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, fsutil.ErrInvalidPath):
		return KindInvalidPath
	case errors.Is(err, snapshot.ErrNotFound):
		return KindNotFound
	case errors.Is(err, snapshot.ErrNotADirectory):
		return KindNotADirectory
	case errors.Is(err, snapshot.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, watcher.ErrWatchUnavailable):
		return KindWatchUnavailable
	case errors.Is(err, config.ErrInvalidPreferences), errors.Is(err, shell.ErrInvalidCommand):
		return KindInvalidArgument
	case errors.Is(err, config.ErrConfigIO):
		return KindConfigIO
	default:
		return KindInternal
	}
}
