package config

import (
	"errors"
	"runtime"
	"strings"
)

var ErrInvalidPreferences = errors.New("invalid preferences")

// Preferences is the persisted user configuration.
type Preferences struct {
	Terminal string `json:"terminal"`
}

func DefaultTerminal() string {
	return defaultTerminalFor(runtime.GOOS)
}

func defaultTerminalFor(goos string) string {
	if goos == "darwin" {
		return "Terminal.app"
	}
	return "x-terminal-emulator"
}

func DefaultPreferences() Preferences {
	return Preferences{Terminal: DefaultTerminal()}
}

// Validate rejects preferences that cannot be saved.
func (p Preferences) Validate() error {
	if strings.TrimSpace(p.Terminal) == "" {
		return errors.Join(ErrInvalidPreferences, errors.New("terminal is required"))
	}
	return nil
}

// withDefaults fills blank fields read from disk.
func (p Preferences) withDefaults() Preferences {
	p.Terminal = strings.TrimSpace(p.Terminal)
	if p.Terminal == "" {
		p.Terminal = DefaultTerminal()
	}
	return p
}
