package runtime

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	ctxengine "github.com/user/slackclaw/internal/context"
	"github.com/user/slackclaw/internal/gateway"
	"github.com/user/slackclaw/internal/store"
	"github.com/user/slackclaw/internal/types"
	"github.com/user/slackclaw/pkg/llm"
)

// mockProvider returns pre-configured responses in order.
type mockProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	callCount int
}

func (m *mockProvider) Complete(_ context.Context, messages []llm.Message, tools []llm.Tool, choice llm.ToolChoice) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	idx := m.callCount
	m.callCount++
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return &llm.Response{ToolCalls: []llm.ToolCall{{
		ID: "tc-finish", Type: "function",
		Function: llm.FunctionCall{Name: "finish", Arguments: "{}"},
	}}}, nil
}

func toolCallResponse(name, args string) *llm.Response {
	return &llm.Response{ToolCalls: []llm.ToolCall{{
		ID: "tc1", Type: "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}}}
}

// sendChat implements types.ChatService, recording sends.
type sendChat struct {
	mu   sync.Mutex
	sent []*types.ChatMessage
}

func (c *sendChat) SendMessage(ctx context.Context, channel, threadTS string, msg *types.ChatMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return "1000.0001", nil
}
func (c *sendChat) UpdateMessage(ctx context.Context, channel, ts string, msg *types.ChatMessage) error {
	return nil
}
func (c *sendChat) AddReaction(ctx context.Context, channel, ts, name string) error    { return nil }
func (c *sendChat) RemoveReaction(ctx context.Context, channel, ts, name string) error { return nil }
func (c *sendChat) History(ctx context.Context, channel string, limit int) ([]types.Message, error) {
	return nil, nil
}
func (c *sendChat) UserIdentity(ctx context.Context, userID string) (string, error) {
	return "someone", nil
}

func (c *sendChat) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// postTool is a visible test tool that posts its text parameter.
type postTool struct {
	calls int
}

func (p *postTool) Name() string        { return "post_message" }
func (p *postTool) Description() string { return "post a message" }
func (p *postTool) Async() bool         { return false }
func (p *postTool) Visible() bool       { return true }
func (p *postTool) Parameters() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{
		"text": {Type: "string"},
	}, Required: []string{"text"}}
}
func (p *postTool) Execute(ctx context.Context, tcx *ToolContext, params map[string]any) (string, error) {
	p.calls++
	text, _ := params["text"].(string)
	if _, err := tcx.Chat.SendMessage(ctx, tcx.Channel, tcx.ThreadTS, &types.ChatMessage{Fallback: text}); err != nil {
		return "", err
	}
	return "posted", nil
}

// countTool is an invisible test tool that counts executions.
type countTool struct {
	calls int
	fail  bool
}

func (c *countTool) Name() string        { return "count" }
func (c *countTool) Description() string { return "counts calls" }
func (c *countTool) Async() bool         { return false }
func (c *countTool) Visible() bool       { return false }
func (c *countTool) Parameters() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}
func (c *countTool) Execute(ctx context.Context, tcx *ToolContext, params map[string]any) (string, error) {
	c.calls++
	if c.fail {
		return "", errors.New("count tool failed")
	}
	return "counted", nil
}

func newTestRuntime(t *testing.T, provider llm.Provider, maxIterations int) (*Runtime, *store.ThreadStore, *sendChat, *Registry) {
	t.Helper()
	engine, err := ctxengine.New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	threads := store.NewThreadStore()
	registry := NewRegistry()
	chat := &sendChat{}
	rt := New(provider, engine, threads, registry, chat, maxIterations)
	return rt, threads, chat, registry
}

func newRun(text string) *gateway.Run {
	return gateway.NewRun("C1:U1", &types.InboundEvent{
		Source:   "test",
		ThreadID: "C1:U1",
		Channel:  "C1",
		User:     "U1",
		Text:     text,
		EventTS:  "1.0",
	})
}

func TestProcessRunImplicitPost(t *testing.T) {
	// content-only response becomes an implicit post, then the provider
	// falls through to finish
	provider := &mockProvider{responses: []*llm.Response{
		{Content: "Hello! How can I help?"},
	}}
	rt, threads, chat, registry := newTestRuntime(t, provider, 10)
	registry.Register(&postTool{})

	var outcome string
	run := newRun("hi")
	run.OnComplete = func(o string) { outcome = o }

	if err := rt.ProcessRun(run); err != nil {
		t.Fatal(err)
	}
	if outcome != string(StateCompleted) {
		t.Errorf("expected completed, got %q", outcome)
	}
	if chat.sentCount() != 1 {
		t.Errorf("expected 1 message posted, got %d", chat.sentCount())
	}

	thread := threads.Get("C1:U1")
	msgs := thread.Messages()
	if len(msgs) == 0 || msgs[0].Role != types.RoleUser || msgs[0].Text != "hi" {
		t.Errorf("expected user message first in history, got %+v", msgs)
	}
}

func TestProcessRunToolThenFinish(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{
		toolCallResponse("count", `{}`),
		toolCallResponse("finish", `{}`),
	}}
	rt, threads, _, registry := newTestRuntime(t, provider, 10)
	counter := &countTool{}
	registry.Register(counter)

	if err := rt.ProcessRun(newRun("count something")); err != nil {
		t.Fatal(err)
	}
	if counter.calls != 1 {
		t.Errorf("expected 1 tool execution, got %d", counter.calls)
	}

	execs := threads.Get("C1:U1").Executions()
	if len(execs) != 2 {
		t.Fatalf("expected count + finish records, got %d", len(execs))
	}
	if execs[1].Tool != FinishTool {
		t.Errorf("expected finish record last, got %q", execs[1].Tool)
	}
}

func TestProcessRunIterationCap(t *testing.T) {
	// provider that never finishes
	responses := make([]*llm.Response, 20)
	for i := range responses {
		responses[i] = toolCallResponse("count", `{"round": `+strconv.Itoa(i)+`}`)
	}
	provider := &mockProvider{responses: responses}
	rt, threads, _, registry := newTestRuntime(t, provider, 3)
	counter := &countTool{}
	registry.Register(counter)

	if err := rt.ProcessRun(newRun("loop forever")); err != nil {
		t.Fatal(err)
	}
	if provider.callCount > 3 {
		t.Errorf("expected at most 3 model calls, got %d", provider.callCount)
	}

	execs := threads.Get("C1:U1").Executions()
	last := execs[len(execs)-1]
	if last.Tool != FinishTool {
		t.Errorf("expected forced finish record, got %q", last.Tool)
	}
	if forced, _ := last.Params["forced"].(bool); !forced {
		t.Errorf("expected forced finish marker, got %+v", last.Params)
	}
}

func TestProcessRunIdempotentExecution(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{
		toolCallResponse("count", `{"a": 1, "b": "x"}`),
		toolCallResponse("count", `{"b": "x", "a": 1}`),
		toolCallResponse("finish", `{}`),
	}}
	rt, threads, _, registry := newTestRuntime(t, provider, 10)
	counter := &countTool{}
	registry.Register(counter)

	if err := rt.ProcessRun(newRun("do it twice")); err != nil {
		t.Fatal(err)
	}
	if counter.calls != 1 {
		t.Errorf("identical parameters must execute once, got %d calls", counter.calls)
	}

	var sawCacheNote bool
	for _, m := range threads.Get("C1:U1").Messages() {
		if m.IsSystemNote && strings.Contains(m.Text, "cached result") {
			sawCacheNote = true
		}
	}
	if !sawCacheNote {
		t.Error("expected a cached-result note in history")
	}
}

func TestProcessRunDuplicateSuppression(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{
		toolCallResponse("post_message", `{"text": "Your order has shipped and arrives Tuesday."}`),
		toolCallResponse("post_message", `{"text": "Your order has shipped, arriving on Tuesday!"}`),
	}}
	rt, _, chat, registry := newTestRuntime(t, provider, 10)
	registry.Register(&postTool{})
	rt.SetMessageCap(3)

	var outcome string
	run := newRun("ship it")
	run.OnComplete = func(o string) { outcome = o }

	if err := rt.ProcessRun(run); err != nil {
		t.Fatal(err)
	}
	if chat.sentCount() != 1 {
		t.Errorf("near-duplicate should be suppressed, got %d sends", chat.sentCount())
	}
	if outcome != string(StateCompleted) {
		t.Errorf("suppression should complete the turn, got %q", outcome)
	}
}

func TestProcessRunMessageCap(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{
		toolCallResponse("post_message", `{"text": "First distinct message about apples."}`),
		toolCallResponse("post_message", `{"text": "Second unrelated message about trains."}`),
	}}
	rt, _, chat, registry := newTestRuntime(t, provider, 10)
	registry.Register(&postTool{})

	if err := rt.ProcessRun(newRun("talk a lot")); err != nil {
		t.Fatal(err)
	}
	if chat.sentCount() != 1 {
		t.Errorf("one visible message per turn, got %d", chat.sentCount())
	}
}

func TestProcessRunErrorStorm(t *testing.T) {
	provider := &mockProvider{err: errors.New("model unavailable")}
	rt, _, chat, registry := newTestRuntime(t, provider, 10)
	registry.Register(&postTool{})

	var outcome string
	run := newRun("hi")
	run.OnComplete = func(o string) { outcome = o }

	err := rt.ProcessRun(run)
	if err == nil {
		t.Fatal("expected error after consecutive failures")
	}
	if outcome != string(StateAborted) {
		t.Errorf("expected aborted outcome, got %q", outcome)
	}
	// the static fallback is sent directly, bypassing the model
	if chat.sentCount() != 1 {
		t.Fatalf("expected static fallback message, got %d sends", chat.sentCount())
	}
	if chat.sent[0].Fallback == "" {
		t.Error("fallback notice must have text")
	}
}

func TestProcessRunToolFailureRecovers(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{
		toolCallResponse("count", `{}`),
		toolCallResponse("finish", `{}`),
	}}
	rt, threads, _, registry := newTestRuntime(t, provider, 10)
	registry.Register(&countTool{fail: true})

	if err := rt.ProcessRun(newRun("try it")); err != nil {
		t.Fatal(err)
	}

	var sawErrorNote bool
	for _, m := range threads.Get("C1:U1").Messages() {
		if m.IsSystemNote && strings.Contains(m.Text, "[error:") {
			sawErrorNote = true
		}
	}
	if !sawErrorNote {
		t.Error("expected a tool-failure note the model can react to")
	}
}

func TestProcessRunUnknownToolFeedback(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{
		toolCallResponse("make_coffee", `{}`),
		toolCallResponse("finish", `{}`),
	}}
	rt, threads, _, registry := newTestRuntime(t, provider, 10)
	registry.Register(&countTool{})

	if err := rt.ProcessRun(newRun("coffee please")); err != nil {
		t.Fatal(err)
	}

	var sawHint bool
	for _, m := range threads.Get("C1:U1").Messages() {
		if m.IsSystemNote && strings.Contains(m.Text, "valid tools") {
			sawHint = true
		}
	}
	if !sawHint {
		t.Error("unknown tool error should list valid names for the model")
	}
}

func TestProcessRunButtonClickCap(t *testing.T) {
	provider := &mockProvider{responses: []*llm.Response{
		toolCallResponse("post_message", `{"text": "Working on your selection now."}`),
		toolCallResponse("post_message", `{"text": "A totally different follow-up message."}`),
	}}
	rt, threads, chat, registry := newTestRuntime(t, provider, 10)
	registry.Register(&postTool{})
	rt.SetMessageCap(3)

	run := gateway.NewRun("C1:U1", &types.InboundEvent{
		Source: "test", ThreadID: "C1:U1", Channel: "C1", User: "U1",
		Text: "[clicked button: Yes]", EventTS: "1.0",
		IsButtonClick: true, ButtonValue: "yes", ButtonLabel: "Yes",
	})
	if err := rt.ProcessRun(run); err != nil {
		t.Fatal(err)
	}
	// clicks keep the tighter cap regardless of the configured one
	if chat.sentCount() != 1 {
		t.Errorf("click turns allow one message, got %d", chat.sentCount())
	}

	msgs := threads.Get("C1:U1").Messages()
	if len(msgs) == 0 || !msgs[0].IsButtonClick {
		t.Error("click event should be recorded as a button-click message")
	}
}
