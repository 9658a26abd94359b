package realtime

import (
	"encoding/json"
	"errors"
	"time"
)

// Subscription scopes understood by the hub.
const (
	ScopeRecent = "recent"
	ScopeAll    = "all"
)

// DefaultRecentLimit bounds a recent-scope snapshot when the client does not
// ask for a specific size.
const DefaultRecentLimit = 20

// ErrNotReady is returned by a SnapshotSource while its backing index is still
// building. The hub reports it to the client as a distinguishable error frame
// instead of tearing the subscription down.
var ErrNotReady = errors.New("snapshot index not ready")

// SnapshotSource produces the full ordered result set for a subscription.
// Implementations return rows newest first.
type SnapshotSource interface {
	Snapshot(email, scope string, limit int) (interface{}, error)
}

// clientFrame is what a connected client sends over the socket.
type clientFrame struct {
	Action string `json:"action"`
	ID     string `json:"id"`
	Scope  string `json:"scope,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// snapshotFrame carries the full result set for one subscription. Every
// publish resends the whole snapshot rather than a delta.
type snapshotFrame struct {
	Type      string      `json:"type"`
	ID        string      `json:"id"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

type errorFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newSnapshotFrame(id string, data interface{}) ([]byte, error) {
	return json.Marshal(snapshotFrame{
		Type:      "snapshot",
		ID:        id,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func newErrorFrame(id, code, message string) []byte {
	b, _ := json.Marshal(errorFrame{Type: "error", ID: id, Code: code, Message: message})
	return b
}
