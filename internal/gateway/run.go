// internal/gateway/run.go
package gateway

import (
	"context"
	"time"

	"github.com/user/slackclaw/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks a single execution of an inbound event against a thread.
type Run struct {
	ID         types.RunID
	ThreadID   types.ThreadID
	Event      *types.InboundEvent
	Status     RunStatus
	CreatedAt  time.Time
	Ctx        context.Context
	Error      error
	OnComplete func(outcome string)
}

// NewRun creates a Run in the Queued state for the given thread and event.
func NewRun(threadID types.ThreadID, event *types.InboundEvent) *Run {
	return &Run{
		ID:        types.NewRunID(),
		ThreadID:  threadID,
		Event:     event,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}
