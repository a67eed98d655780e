// internal/types/ids.go
package types

import (
	"strconv"

	"github.com/google/uuid"
)

type ThreadID string
type RunID string
type ActionID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// NewActionID returns the identifier for one interactive element:
// "<prefix>_<n>" for the nth button of a group.
func NewActionID(prefix string, n int) ActionID {
	return ActionID(prefix + "_" + strconv.Itoa(n))
}

// NewActionPrefix returns a fresh action-group prefix.
func NewActionPrefix() string {
	return "act_" + uuid.New().String()[:8]
}

// ThreadIDFor derives the thread identity for an inbound Slack event.
// Threaded messages key on channel + root timestamp so every reply in the
// chain lands in the same conversation; bare channel messages key on
// channel + user.
func ThreadIDFor(channel, threadTS, user string) ThreadID {
	if threadTS != "" {
		return ThreadID(channel + ":" + threadTS)
	}
	return ThreadID(channel + ":" + user)
}
