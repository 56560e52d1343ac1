package socket

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// State is the lifecycle state of a pooled connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// attachable reports whether new subscribers may join.
func (s State) attachable() bool {
	return s == StateIdle || s == StateConnecting || s == StateRunning
}

// entry is the manager's record of one connection. Every field is
// guarded by Manager.mu.
type entry struct {
	key    Key
	gen    uint64
	state  State
	conn   Conn
	subs   map[uuid.UUID]*Subscription
	timer  *clock.Timer
	ctx    context.Context
	cancel context.CancelFunc
}

// detached is what remains to be released once an entry has left the
// map: it is produced exactly once per entry.
type detached struct {
	entry *entry
	conn  Conn
	subs  []*Subscription
}
