package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/slackclaw/internal/types"
)

func testRun(threadID types.ThreadID, text string) *Run {
	return NewRun(threadID, &types.InboundEvent{
		Source:   "test",
		ThreadID: threadID,
		Channel:  "C1",
		User:     "U1",
		Text:     text,
	})
}

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue(2)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	var running int32
	var maxSeen int32

	queue.SetProcessor(func(run *Run) error {
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})

	for i := 0; i < 5; i++ {
		threadID := types.ThreadID(fmt.Sprintf("C1:thread-%d", i))
		if err := queue.Enqueue(testRun(threadID, "hi")); err != nil {
			t.Fatal(err)
		}
	}

	if !queue.WaitIdle(2 * time.Second) {
		t.Fatal("queue never went idle")
	}
	time.Sleep(100 * time.Millisecond)

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
}

func TestQueueProcessorCalled(t *testing.T) {
	queue := NewQueue(1)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	var processed int32
	queue.SetProcessor(func(run *Run) error {
		atomic.AddInt32(&processed, 1)
		return nil
	})

	if err := queue.Enqueue(testRun("C1:U1", "hi")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&processed) != 1 {
		t.Errorf("expected 1 processed run, got %d", processed)
	}
}

func TestQueueSameThreadOrdering(t *testing.T) {
	queue := NewQueue(4)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	queue.SetProcessor(func(run *Run) error {
		mu.Lock()
		order = append(order, run.Event.Text)
		n := len(order)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := queue.Enqueue(testRun("C1:same", fmt.Sprintf("%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runs to process")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != fmt.Sprintf("%d", i) {
			t.Errorf("expected order[%d] = %d, got %s", i, i, v)
		}
	}
}

func TestQueueStatusTransitions(t *testing.T) {
	queue := NewQueue(1)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	done := make(chan *Run, 1)
	release := make(chan struct{})
	queue.SetProcessor(func(run *Run) error {
		done <- run
		<-release
		return nil
	})

	run := testRun("C1:U1", "hi")
	if run.Status != RunStatusQueued {
		t.Errorf("new run should be queued, got %q", run.Status)
	}
	if err := queue.Enqueue(run); err != nil {
		t.Fatal(err)
	}

	processed := <-done
	if processed.Status != RunStatusRunning {
		t.Errorf("run should be running inside the processor, got %q", processed.Status)
	}
	close(release)

	queue.WaitIdle(time.Second)
	time.Sleep(50 * time.Millisecond)
	if run.Status != RunStatusComplete {
		t.Errorf("run should complete, got %q", run.Status)
	}
}

func TestQueueProcessorFailure(t *testing.T) {
	queue := NewQueue(1)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	queue.SetProcessor(func(run *Run) error {
		return fmt.Errorf("boom")
	})

	run := testRun("C1:U1", "hi")
	if err := queue.Enqueue(run); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if run.Status != RunStatusFailed {
		t.Errorf("expected failed status, got %q", run.Status)
	}
	if run.Error == nil {
		t.Error("expected run error recorded")
	}
}

func TestQueueEnqueueAfterStop(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	queue.SetProcessor(func(run *Run) error { return nil })

	if err := queue.Enqueue(testRun("C1:U1", "hi")); err != nil {
		t.Fatal(err)
	}
	queue.WaitIdle(time.Second)
	queue.Stop()

	if err := queue.Enqueue(testRun("C1:U1", "late")); err == nil {
		t.Error("enqueue after stop must be refused, not sent on a closed lane")
	}
	// repeated Stop is a no-op
	queue.Stop()
}

func TestQueueNoProcessor(t *testing.T) {
	queue := NewQueue(1)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	// Enqueue without setting a processor -- should not panic
	if err := queue.Enqueue(testRun("C1:no-proc", "hi")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
}
