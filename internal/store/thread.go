// internal/store/thread.go
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/user/slackclaw/internal/types"
)

// Thread holds the mutable per-conversation state: message history,
// metadata, tool execution records, and the button registry. All access
// goes through accessor methods so call sites never hold a stale copy;
// handlers receive a *Thread scoped to one run and must not retain it.
type Thread struct {
	ID types.ThreadID

	mu         sync.Mutex
	messages   []types.Message
	metadata   map[string]any
	executions []*types.ToolExecutionRecord
	buttons    []*types.ButtonGroup
	clicks     map[string]string
	createdAt  time.Time
	lastActive time.Time
}

func newThread(id types.ThreadID) *Thread {
	now := time.Now()
	return &Thread{
		ID:         id,
		metadata:   make(map[string]any),
		clicks:     make(map[string]string),
		createdAt:  now,
		lastActive: now,
	}
}

// AppendMessage adds a message to the history, assigning its ordinal.
// History is append-only; past entries are never edited.
func (t *Thread) AppendMessage(msg types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if msg.At.IsZero() {
		msg.At = time.Now()
	}
	msg.Ordinal = len(t.messages)
	t.messages = append(t.messages, msg)
	t.lastActive = time.Now()
}

// Messages returns a copy of the message history.
func (t *Thread) Messages() []types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// SetMeta stores an arbitrary metadata value.
func (t *Thread) SetMeta(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metadata[key] = value
	t.lastActive = time.Now()
}

// Meta returns a metadata value.
func (t *Thread) Meta(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.metadata[key]
	return v, ok
}

// MetaBool returns a boolean metadata value, false when absent or not a bool.
func (t *Thread) MetaBool(key string) bool {
	v, ok := t.Meta(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// DeleteMeta removes a metadata value.
func (t *Thread) DeleteMeta(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.metadata, key)
}

// RecordExecution appends a tool execution record.
func (t *Thread) RecordExecution(rec *types.ToolExecutionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executions = append(t.executions, rec)
	t.lastActive = time.Now()
}

// CachedExecution returns the earlier record matching the idempotency key,
// if the same tool was already dispatched with the same canonical
// parameters in this thread.
func (t *Thread) CachedExecution(key string) (*types.ToolExecutionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.executions {
		if rec.Err == "" && rec.Key() == key {
			return rec, true
		}
	}
	return nil, false
}

// Executions returns a copy of the tool execution history.
func (t *Thread) Executions() []*types.ToolExecutionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*types.ToolExecutionRecord, len(t.executions))
	copy(out, t.executions)
	return out
}

// RegisterButtons records a posted button group for later click resolution.
func (t *Thread) RegisterButtons(group *types.ButtonGroup) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	t.buttons = append(t.buttons, group)
}

// ResolveGroup maps a clicked action identifier back to its originating
// group. Resolution order: exact action id, then group prefix, then a
// last-resort substring scan over registered prefixes.
func (t *Thread) ResolveGroup(actionID string) (*types.ButtonGroup, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, g := range t.buttons {
		for i := range g.Buttons {
			if string(types.NewActionID(g.Prefix, i)) == actionID {
				return g, true
			}
		}
	}
	for _, g := range t.buttons {
		if strings.HasPrefix(actionID, g.Prefix) {
			return g, true
		}
	}
	for _, g := range t.buttons {
		if strings.Contains(actionID, g.Prefix) || strings.Contains(g.Prefix, actionID) {
			return g, true
		}
	}
	return nil, false
}

// MarkClickHandled records that a (message, value) click was processed,
// storing the outcome for duplicate clicks.
func (t *Thread) MarkClickHandled(messageTS, value, result string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clicks[messageTS+"|"+value] = result
	t.lastActive = time.Now()
}

// ClickResult returns the stored outcome for a (message, value) click.
func (t *Thread) ClickResult(messageTS, value string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.clicks[messageTS+"|"+value]
	return r, ok
}

// LastActive reports when the thread was last touched.
func (t *Thread) LastActive() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActive
}

// ThreadStore is the in-memory process-wide thread map. Threads are
// created lazily on first access and live until an idle sweep removes
// them. The gateway serializes runs per thread, so only one orchestration
// loop mutates a thread at a time; the store itself only guards the map.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[types.ThreadID]*Thread
}

// NewThreadStore creates an empty thread store.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{threads: make(map[types.ThreadID]*Thread)}
}

// Get returns the thread for id, creating it lazily.
func (s *ThreadStore) Get(id types.ThreadID) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[id]; ok {
		return t
	}
	t := newThread(id)
	s.threads[id] = t
	return t
}

// Peek returns the thread for id without creating it.
func (s *ThreadStore) Peek(id types.ThreadID) (*Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	return t, ok
}

// List returns all live threads.
func (s *ThreadStore) List() []*Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	return out
}

// Len returns the number of live threads.
func (s *ThreadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

// Sweep drops threads idle for longer than maxIdle and returns how many
// were removed. Threads are never deleted mid-conversation otherwise.
func (s *ThreadStore) Sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for id, t := range s.threads {
		if t.LastActive().Before(cutoff) {
			delete(s.threads, id)
			removed++
		}
	}
	return removed
}
