package store

import (
	"testing"
	"time"

	"github.com/user/slackclaw/internal/types"
)

func TestGetCreatesLazily(t *testing.T) {
	s := NewThreadStore()
	if _, ok := s.Peek("C1:111"); ok {
		t.Fatal("thread should not exist before first Get")
	}
	th := s.Get("C1:111")
	if th == nil || th.ID != "C1:111" {
		t.Fatalf("unexpected thread: %+v", th)
	}
	if again := s.Get("C1:111"); again != th {
		t.Error("Get must return the same thread for the same id")
	}
}

func TestAppendMessageOrdinals(t *testing.T) {
	th := NewThreadStore().Get("C1:u1")
	th.AppendMessage(types.Message{Text: "one", Role: types.RoleUser})
	th.AppendMessage(types.Message{Text: "two", Role: types.RoleAssistant})

	msgs := th.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Ordinal != 0 || msgs[1].Ordinal != 1 {
		t.Errorf("ordinals wrong: %d, %d", msgs[0].Ordinal, msgs[1].Ordinal)
	}
}

func TestCachedExecution(t *testing.T) {
	th := NewThreadStore().Get("C1:u1")
	params := map[string]any{"text": "hi", "channel": "C1"}

	rec := &types.ToolExecutionRecord{Tool: "post_message", Params: params, Result: "ok", At: time.Now()}
	th.RecordExecution(rec)

	// same params, different key order in a fresh map
	same := map[string]any{"channel": "C1", "text": "hi"}
	cached, ok := th.CachedExecution(types.IdempotencyKey("post_message", same))
	if !ok {
		t.Fatal("expected cache hit for canonically equal params")
	}
	if cached.Result != "ok" {
		t.Errorf("wrong cached record: %+v", cached)
	}

	if _, ok := th.CachedExecution(types.IdempotencyKey("post_message", map[string]any{"text": "bye"})); ok {
		t.Error("different params must not hit the cache")
	}
}

func TestFailedExecutionNotCached(t *testing.T) {
	th := NewThreadStore().Get("C1:u1")
	params := map[string]any{"text": "hi"}
	th.RecordExecution(&types.ToolExecutionRecord{Tool: "post_message", Params: params, Err: "boom"})

	if _, ok := th.CachedExecution(types.IdempotencyKey("post_message", params)); ok {
		t.Error("failed executions must not short-circuit a retry")
	}
}

func TestResolveGroupOrder(t *testing.T) {
	th := NewThreadStore().Get("C1:u1")
	th.RegisterButtons(&types.ButtonGroup{
		Prefix:  "btn_1",
		Buttons: []types.ButtonSpec{{Label: "Yes", Value: "yes"}, {Label: "No", Value: "no"}},
	})
	th.RegisterButtons(&types.ButtonGroup{
		Prefix:  "other",
		Buttons: []types.ButtonSpec{{Label: "X", Value: "x"}},
	})

	// exact action id
	g, ok := th.ResolveGroup("btn_1_0")
	if !ok || g.Prefix != "btn_1" {
		t.Fatalf("exact-id resolution failed: %+v", g)
	}

	// prefix match for an index that was never registered
	g, ok = th.ResolveGroup("btn_1_99")
	if !ok || g.Prefix != "btn_1" {
		t.Fatalf("prefix resolution failed: %+v", g)
	}

	// substring fallback
	g, ok = th.ResolveGroup("weird_other_suffix")
	if !ok || g.Prefix != "other" {
		t.Fatalf("substring resolution failed: %+v", g)
	}

	if _, ok := th.ResolveGroup("nope"); ok {
		t.Error("unresolvable action id should not match")
	}
}

func TestClickIdempotency(t *testing.T) {
	th := NewThreadStore().Get("C1:u1")
	if _, ok := th.ClickResult("123.456", "yes"); ok {
		t.Fatal("unclicked button should have no stored result")
	}
	th.MarkClickHandled("123.456", "yes", "done")
	r, ok := th.ClickResult("123.456", "yes")
	if !ok || r != "done" {
		t.Errorf("stored click result wrong: %q %v", r, ok)
	}
	if _, ok := th.ClickResult("123.456", "no"); ok {
		t.Error("different value must not be treated as handled")
	}
}

func TestSweep(t *testing.T) {
	s := NewThreadStore()
	old := s.Get("C1:old")
	old.mu.Lock()
	old.lastActive = time.Now().Add(-2 * time.Hour)
	old.mu.Unlock()
	s.Get("C1:fresh")

	removed := s.Sweep(time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := s.Peek("C1:old"); ok {
		t.Error("idle thread should be gone")
	}
	if _, ok := s.Peek("C1:fresh"); !ok {
		t.Error("fresh thread should survive")
	}
}
