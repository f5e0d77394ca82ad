// Package snapshot lists the immediate children of a directory.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("directory not found")
	ErrNotADirectory    = errors.New("not a directory")
	ErrPermissionDenied = errors.New("permission denied")
)

// Entry is one child of a listed directory.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Hidden      bool   `json:"hidden"`
	IsDirectory bool   `json:"directory"`
}

// Snapshot is the listing of one directory at one point in time.
type Snapshot struct {
	Path    string    `json:"path"`
	Entries []Entry   `json:"entries"`
	TakenAt time.Time `json:"taken_at"`
}

// FileSystem is the read-only subset of the os package used for listing.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
}

// OSFileSystem reads the host filesystem.
type OSFileSystem struct{}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

type Snapshotter struct {
	fs  FileSystem
	now func() time.Time
}

func New(fsys FileSystem) *Snapshotter {
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	return &Snapshotter{
		fs: fsys,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// List enumerates the immediate children of absPath. A child symlink is
// reported as a file even when it points at a directory.
func (s *Snapshotter) List(absPath string) (Snapshot, error) {
	info, err := s.fs.Stat(absPath)
	if err != nil {
		return Snapshot{}, classify(absPath, err)
	}
	if !info.IsDir() {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotADirectory, absPath)
	}

	children, err := s.fs.ReadDir(absPath)
	if err != nil {
		return Snapshot{}, classify(absPath, err)
	}

	entries := make([]Entry, 0, len(children))
	for _, child := range children {
		entries = append(entries, NewEntry(absPath, child.Name(), child.IsDir()))
	}
	return Snapshot{
		Path:    absPath,
		Entries: entries,
		TakenAt: s.now(),
	}, nil
}

// NewEntry builds the entry for name inside parent.
func NewEntry(parent, name string, isDirectory bool) Entry {
	return Entry{
		Name:        name,
		Path:        filepath.Join(parent, name),
		Hidden:      IsHidden(name),
		IsDirectory: isDirectory,
	}
}

// IsHidden reports whether name follows the dot-file convention.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func classify(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case isNotDirErr(err):
		return fmt.Errorf("%w: %s", ErrNotADirectory, path)
	default:
		return fmt.Errorf("list %s: %w", path, err)
	}
}
