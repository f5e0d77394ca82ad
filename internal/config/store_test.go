package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestStoreLoadCreatesDefaults(t *testing.T) {
	home := t.TempDir()
	path := DefaultPath(home)
	store := NewStore(path, StoreOptions{})

	prefs, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if prefs != DefaultPreferences() {
		t.Fatalf("expected defaults, got %+v", prefs)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file to be written: %v", err)
	}
	var onDisk Preferences
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if onDisk.Terminal != DefaultTerminal() {
		t.Fatalf("expected default terminal on disk, got %q", onDisk.Terminal)
	}
}

func TestStoreRoundTripColdReload(t *testing.T) {
	path := DefaultPath(t.TempDir())
	store := NewStore(path, StoreOptions{})
	if _, err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := store.Save(context.Background(), Preferences{Terminal: "iTerm"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := NewStore(path, StoreOptions{})
	prefs, err := reloaded.Load(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if prefs.Terminal != "iTerm" {
		t.Fatalf("expected iTerm, got %q", prefs.Terminal)
	}
	if reloaded.Current().Terminal != "iTerm" {
		t.Fatalf("expected current iTerm, got %q", reloaded.Current().Terminal)
	}

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no temp files, got %v", matches)
	}
}

func TestStoreLoadFallsBackOnMalformedFile(t *testing.T) {
	path := DefaultPath(t.TempDir())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	prefs, err := NewStore(path, StoreOptions{}).Load(context.Background())
	if err != nil {
		t.Fatalf("expected fallback without error, got %v", err)
	}
	if prefs != DefaultPreferences() {
		t.Fatalf("expected defaults, got %+v", prefs)
	}
}

func TestStoreLoadFillsBlankTerminal(t *testing.T) {
	path := DefaultPath(t.TempDir())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"terminal":""}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	prefs, err := NewStore(path, StoreOptions{}).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if prefs.Terminal != DefaultTerminal() {
		t.Fatalf("expected default terminal, got %q", prefs.Terminal)
	}
}

func TestStoreSaveRejectsBlankTerminal(t *testing.T) {
	store := NewStore(DefaultPath(t.TempDir()), StoreOptions{})
	err := store.Save(context.Background(), Preferences{Terminal: " "})
	if !errors.Is(err, ErrInvalidPreferences) {
		t.Fatalf("expected ErrInvalidPreferences, got %v", err)
	}
	if _, statErr := os.Stat(store.Path()); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected no file written, got %v", statErr)
	}
}

func TestStoreSaveReportsConfigIO(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file-as-directory semantics differ on windows")
	}
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewStore(filepath.Join(blocker, DefaultFileName), StoreOptions{})
	err := store.Save(context.Background(), Preferences{Terminal: "iTerm"})
	if !errors.Is(err, ErrConfigIO) {
		t.Fatalf("expected ErrConfigIO, got %v", err)
	}
}
