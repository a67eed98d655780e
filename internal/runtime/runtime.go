// internal/runtime/runtime.go
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ctxengine "github.com/user/slackclaw/internal/context"
	"github.com/user/slackclaw/internal/gateway"
	"github.com/user/slackclaw/internal/interpret"
	"github.com/user/slackclaw/internal/store"
	"github.com/user/slackclaw/internal/types"
	"github.com/user/slackclaw/pkg/llm"
)

// State names the orchestration loop's phases.
type State string

const (
	StateIterating     State = "iterating"
	StateToolExecuting State = "tool_executing"
	StateCompleted     State = "completed"
	StateAborted       State = "aborted"
)

// FinishTool is the designated tool whose execution ends the turn.
const FinishTool = "finish"

const staticFallbackNotice = "Something went wrong on my end and I couldn't finish handling that. Please try again."

// Runtime drives one conversation turn to completion: ask the model for
// the next action, execute it, feed the outcome back, repeat until the
// model finishes or a safety bound trips.
type Runtime struct {
	provider llm.Provider
	engine   *ctxengine.Engine
	threads  *store.ThreadStore
	registry *Registry
	chat     types.ChatService

	accentColor          string
	maxIterations        int
	maxMessagesPerTurn   int
	clickMessagesPerTurn int
	maxConsecutiveErrors int
	dedupe               DedupeConfig
}

// New creates a Runtime with the given dependencies.
func New(
	provider llm.Provider,
	engine *ctxengine.Engine,
	threads *store.ThreadStore,
	registry *Registry,
	chat types.ChatService,
	maxIterations int,
) *Runtime {
	return &Runtime{
		provider:             provider,
		engine:               engine,
		threads:              threads,
		registry:             registry,
		chat:                 chat,
		accentColor:          "#4a154b",
		maxIterations:        maxIterations,
		maxMessagesPerTurn:   1,
		clickMessagesPerTurn: 1,
		maxConsecutiveErrors: 3,
		dedupe:               DefaultDedupeConfig(),
	}
}

// SetAccentColor overrides the default accent color for rich messages.
func (rt *Runtime) SetAccentColor(color string) { rt.accentColor = color }

// SetDedupe overrides the duplicate-suppression thresholds.
func (rt *Runtime) SetDedupe(cfg DedupeConfig) { rt.dedupe = cfg }

// SetMessageCap overrides how many user-visible messages one turn may
// post.
func (rt *Runtime) SetMessageCap(n int) {
	if n > 0 {
		rt.maxMessagesPerTurn = n
	}
}

// turnState is the per-turn bookkeeping the completion policy reads.
type turnState struct {
	sentTexts         []string
	messagesSent      int
	messageCap        int
	consecutiveErrors int
	finished          bool
}

// ProcessRun executes the orchestration loop for a single run. This is
// the function handed to Queue.SetProcessor; the queue guarantees at most
// one ProcessRun is active per thread.
func (rt *Runtime) ProcessRun(run *gateway.Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	thread := rt.threads.Get(run.ThreadID)
	thread.AppendMessage(types.Message{
		Text:          run.Event.Text,
		Role:          types.RoleUser,
		IsButtonClick: run.Event.IsButtonClick,
	})
	thread.SetMeta("channel", run.Event.Channel)
	thread.SetMeta("thread_ts", run.Event.ThreadTS)

	turn := &turnState{messageCap: rt.maxMessagesPerTurn}
	if run.Event.IsButtonClick {
		// the platform UI was already updated out of band
		turn.messageCap = rt.clickMessagesPerTurn
	}

	tcx := &ToolContext{
		Thread:      thread,
		Chat:        rt.chat,
		Channel:     run.Event.Channel,
		ThreadTS:    run.Event.ThreadTS,
		EventTS:     run.Event.EventTS,
		AccentColor: rt.accentColor,
	}

	state := StateIterating
	for iteration := 0; iteration < rt.maxIterations && state == StateIterating; iteration++ {
		state = rt.iterate(ctx, thread, turn, tcx)
	}

	switch state {
	case StateIterating:
		// iteration cap hit without an explicit finish: force one rather
		// than surface an error to the user
		slog.Warn("iteration cap reached, forcing finish", "thread_id", string(run.ThreadID))
		rt.recordForcedFinish(thread, "iteration cap reached")
		state = StateCompleted
	case StateAborted:
		rt.sendStaticFallback(ctx, run)
	}

	if run.OnComplete != nil {
		run.OnComplete(string(state))
	}
	if state == StateAborted {
		return fmt.Errorf("turn aborted after %d consecutive errors", turn.consecutiveErrors)
	}
	return nil
}

// iterate performs one model round trip plus at most one tool execution,
// returning the next loop state.
func (rt *Runtime) iterate(ctx context.Context, thread *store.Thread, turn *turnState, tcx *ToolContext) State {
	messages, err := rt.engine.BuildPrompt(thread, rt.registry.Names())
	if err != nil {
		return rt.recordError(thread, turn, fmt.Errorf("build prompt: %w", err))
	}

	resp, err := rt.provider.Complete(ctx, messages, rt.registry.SchemaForModel(), llm.ToolChoiceAuto)
	if err != nil {
		return rt.recordError(thread, turn, fmt.Errorf("model call: %w", err))
	}

	calls := interpret.Interpret(resp)
	if len(calls) == 0 {
		return StateCompleted
	}

	// one tool call per iteration; a fresh call is requested from the
	// model on the next round rather than draining the rest
	return rt.executeCall(ctx, thread, turn, tcx, calls[0])
}

// executeCall moves the loop through ToolExecuting for one call and
// decides where it lands.
func (rt *Runtime) executeCall(ctx context.Context, thread *store.Thread, turn *turnState, tcx *ToolContext, call types.ToolCall) State {
	if stripNamespace(call.Tool) == FinishTool {
		thread.RecordExecution(&types.ToolExecutionRecord{
			Tool: FinishTool, Params: call.Parameters, Result: "done", At: time.Now(),
		})
		return StateCompleted
	}

	tool, err := rt.registry.Lookup(call.Tool)
	if err != nil {
		var notFound *ToolNotFoundError
		if errors.As(err, &notFound) {
			return rt.recordError(thread, turn, notFound)
		}
		return rt.recordError(thread, turn, err)
	}

	if tool.Visible() {
		text, _ := call.Parameters["text"].(string)
		if turn.messagesSent >= turn.messageCap {
			slog.Info("message cap reached, completing turn", "tool", tool.Name())
			rt.recordForcedFinish(thread, "outbound message cap reached")
			return StateCompleted
		}
		if rt.dedupe.AnyNearDuplicate(turn.sentTexts, text) {
			slog.Info("suppressing near-duplicate outbound message", "tool", tool.Name())
			rt.recordForcedFinish(thread, "duplicate message suppressed")
			return StateCompleted
		}
	}

	key := types.IdempotencyKey(tool.Name(), call.Parameters)
	if cached, ok := thread.CachedExecution(key); ok {
		// same tool, same canonical parameters: short-circuit to the
		// stored result, no second side effect
		thread.AppendMessage(types.Message{
			Text:         fmt.Sprintf("[tool %s repeated with identical parameters; cached result: %s]", tool.Name(), cached.Result),
			Role:         types.RoleTool,
			IsSystemNote: true,
		})
		return StateIterating
	}

	start := time.Now()
	result, execErr := tool.Execute(ctx, tcx, call.Parameters)
	rec := &types.ToolExecutionRecord{
		Tool:     tool.Name(),
		Params:   call.Parameters,
		At:       start,
		Duration: time.Since(start),
	}

	if execErr != nil {
		rec.Err = execErr.Error()
		thread.RecordExecution(rec)
		return rt.recordError(thread, turn, fmt.Errorf("tool %s: %w", tool.Name(), execErr))
	}

	rec.Result = result
	thread.RecordExecution(rec)
	thread.AppendMessage(types.Message{
		Text:         fmt.Sprintf("[tool %s executed: %s]", tool.Name(), result),
		Role:         types.RoleTool,
		IsSystemNote: true,
	})

	turn.consecutiveErrors = 0
	if tool.Visible() {
		text, _ := call.Parameters["text"].(string)
		turn.sentTexts = append(turn.sentTexts, text)
		turn.messagesSent++
	}
	return StateIterating
}

// recordError turns a failure into a synthetic context entry the model
// sees on its next call, so it can compose the user-facing explanation.
// A storm of consecutive failures aborts the turn instead.
func (rt *Runtime) recordError(thread *store.Thread, turn *turnState, err error) State {
	turn.consecutiveErrors++
	slog.Error("turn step failed", "error", err, "consecutive", turn.consecutiveErrors)

	thread.AppendMessage(types.Message{
		Text:         fmt.Sprintf("[error: %v — decide how to respond to the user, or try a different tool]", err),
		Role:         types.RoleTool,
		IsSystemNote: true,
	})

	if turn.consecutiveErrors >= rt.maxConsecutiveErrors {
		return StateAborted
	}
	return StateIterating
}

func (rt *Runtime) recordForcedFinish(thread *store.Thread, reason string) {
	thread.RecordExecution(&types.ToolExecutionRecord{
		Tool:   FinishTool,
		Params: map[string]any{"forced": true, "reason": reason},
		Result: "done",
		At:     time.Now(),
	})
}

// sendStaticFallback posts the last-resort notice directly, bypassing the
// model, so the user is never left with silence.
func (rt *Runtime) sendStaticFallback(ctx context.Context, run *gateway.Run) {
	msg := &types.ChatMessage{Fallback: staticFallbackNotice}
	if _, err := rt.chat.SendMessage(ctx, run.Event.Channel, run.Event.ThreadTS, msg); err != nil {
		slog.Error("failed to send fallback notice", "error", err)
	}
}
