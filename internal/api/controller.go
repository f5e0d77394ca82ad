package api

import (
	"context"

	"qian/internal/bridge"
	"qian/internal/config"
	"qian/internal/snapshot"
)

// Controller is the bridge surface served to UI clients.
type Controller interface {
	RequestTree(ctx context.Context, raw string) (snapshot.Snapshot, error)
	OpenFile(raw string) error
	Reveal(raw string) error
	OpenInTerminal(app, raw string) error
	RevealCurrent() error
	OpenCurrentInTerminal() error
	Preferences() config.Preferences
	UpdateTerminalPreference(ctx context.Context, prefs config.Preferences) (config.Preferences, error)
	Session() bridge.SessionInfo
	Status() bridge.Status
}
