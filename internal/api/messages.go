package api

import (
	"qian/internal/bridge"
	"qian/internal/config"
	"qian/internal/snapshot"
)

// Inbound message types.
const (
	msgRequestTree              = "request_tree"
	msgOpenFile                 = "open_file"
	msgReveal                   = "reveal"
	msgOpenInTerminal           = "open_in_terminal"
	msgUpdateTerminalPreference = "update_terminal_preference"
	msgRevealCurrent            = "reveal_current"
	msgOpenCurrentInTerminal    = "open_current_in_terminal"
)

// Outbound message types beyond the bridge signals.
const (
	msgSession     = "session"
	msgPreferences = "preferences"
	msgAck         = "ack"
	msgError       = "error"
)

const kindRateLimited = "rate_limited"

type clientMessage struct {
	Type        string              `json:"type"`
	ID          string              `json:"id,omitempty"`
	Path        string              `json:"path,omitempty"`
	App         string              `json:"app,omitempty"`
	Preferences *config.Preferences `json:"preferences,omitempty"`
}

type treeSnapshotMessage struct {
	Type    string           `json:"type"`
	Path    string           `json:"path"`
	Entries []snapshot.Entry `json:"entries"`
}

type treeChangedMessage struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	ID      string `json:"id,omitempty"`
}

type sessionMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
	bridge.SessionInfo
}

type preferencesMessage struct {
	Type        string             `json:"type"`
	ID          string             `json:"id,omitempty"`
	Preferences config.Preferences `json:"preferences"`
}

type ackMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Request string `json:"request"`
}

func newTreeSnapshotMessage(listing snapshot.Snapshot) treeSnapshotMessage {
	entries := listing.Entries
	if entries == nil {
		entries = []snapshot.Entry{}
	}
	return treeSnapshotMessage{Type: string(bridge.SignalTreeSnapshot), Path: listing.Path, Entries: entries}
}

func newErrorMessage(err error, id string) errorMessage {
	return errorMessage{
		Type:    msgError,
		Kind:    string(bridge.KindOf(err)),
		Message: err.Error(),
		ID:      id,
	}
}

// signalPayload renders a bus signal for the wire.
func signalPayload(signal bridge.Signal) (any, bool) {
	switch signal.Type {
	case bridge.SignalTreeSnapshot:
		if signal.Snapshot == nil {
			return nil, false
		}
		return newTreeSnapshotMessage(*signal.Snapshot), true
	case bridge.SignalTreeChanged:
		return treeChangedMessage{Type: string(signal.Type), Path: signal.Path}, true
	case bridge.SignalError:
		if signal.Error == nil {
			return nil, false
		}
		return errorMessage{
			Type:    msgError,
			Kind:    string(signal.Error.Kind),
			Message: signal.Error.Message,
			Path:    signal.Path,
		}, true
	default:
		return nil, false
	}
}

func messageType(payload any) string {
	switch value := payload.(type) {
	case treeSnapshotMessage:
		return value.Type
	case treeChangedMessage:
		return value.Type
	case errorMessage:
		return value.Type
	case sessionMessage:
		return value.Type
	case preferencesMessage:
		return value.Type
	case ackMessage:
		return value.Type
	default:
		return "unknown"
	}
}
