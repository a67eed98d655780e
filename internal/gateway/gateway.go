// internal/gateway/gateway.go
package gateway

import (
	"context"
	"fmt"

	"github.com/user/slackclaw/internal/types"
)

// Gateway turns inbound platform events into runs and feeds them through
// the per-thread queue.
type Gateway struct {
	Queue *Queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway with the given concurrency limit for simultaneous
// run processing.
func New(maxConcurrent int64) *Gateway {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Gateway{Queue: NewQueue(maxConcurrent)}
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and stops the queue.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked when the run finishes, carrying
// the terminal loop state.
func WithOnComplete(fn func(outcome string)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// HandleInbound wraps the event in a Run and enqueues it on the event's
// thread lane.
func (g *Gateway) HandleInbound(_ context.Context, event *types.InboundEvent, opts ...RunOption) error {
	if event.ThreadID == "" {
		return fmt.Errorf("inbound event missing thread id")
	}
	run := NewRun(event.ThreadID, event)
	for _, opt := range opts {
		opt(run)
	}
	return g.Queue.Enqueue(run)
}
