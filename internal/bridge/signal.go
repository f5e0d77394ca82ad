package bridge

import (
	"time"

	"qian/internal/snapshot"
)

type SignalType string

const (
	SignalTreeSnapshot SignalType = "tree_snapshot"
	SignalTreeChanged  SignalType = "tree_changed"
	SignalError        SignalType = "error"
)

// Failure is the payload of an error signal.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Signal is an outbound message for every connected UI client.
type Signal struct {
	Type     SignalType         `json:"type"`
	Path     string             `json:"path,omitempty"`
	Snapshot *snapshot.Snapshot `json:"snapshot,omitempty"`
	Error    *Failure           `json:"error,omitempty"`
	At       time.Time          `json:"at"`
}

func (s Signal) EventType() string {
	return string(s.Type)
}

func NewFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{Kind: KindOf(err), Message: err.Error()}
}
