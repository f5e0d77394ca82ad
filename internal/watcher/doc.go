// Package watcher provides the filesystem watch primitives behind directory
// browsing.
//
// Watcher wraps fsnotify and is safe for concurrent use. Events are best
// effort: they can be coalesced under load, so callers should treat them as a
// prompt to re-list rather than as a description of what changed.
//
// Session owns the single live watch on the browsed directory and enforces
// that the previous watch is fully stopped before the next one starts.
package watcher
