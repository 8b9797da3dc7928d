package model

import (
	"fmt"
	"time"
)

// DefaultMaxTurns is used when a synthesized session handle is needed.
const DefaultMaxTurns = 3

// SessionHandle is the opaque correlation token round-tripped with the
// guidance service. ThreadID is never interpreted locally; the service's echo
// is the source of truth and replaces the local copy on every response.
type SessionHandle struct {
	ThreadID  string `json:"thread_id"`
	TurnIndex int    `json:"turn_index"`
	MaxTurns  int    `json:"max_turns"`
}

// IsZero reports whether the handle has not been established yet.
func (h SessionHandle) IsZero() bool {
	return h.ThreadID == "" && h.TurnIndex == 0 && h.MaxTurns == 0
}

// NewLocalSessionHandle synthesizes a fallback handle for when the service
// omits a session echo, so the client has something consistent to send on the
// next call.
func NewLocalSessionHandle(now time.Time) SessionHandle {
	return SessionHandle{
		ThreadID:  fmt.Sprintf("local-%d", now.UnixMilli()),
		TurnIndex: 0,
		MaxTurns:  DefaultMaxTurns,
	}
}
