package run

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	hooks  []string
}

func (s *recordingSink) OnRunEvent(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) OnHookResult(hook, runID string, allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) waitFor(t *testing.T, eventType EventType, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		for _, e := range s.snapshot() {
			if e.Type == eventType {
				return e
			}
		}
		select {
		case <-deadline:
			t.Fatalf("no %s event within %v; saw %v", eventType, timeout, s.snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestController_SuccessEmitsStartedAndEnded(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(sink, time.Minute, EmitAlways)

	err := c.Execute(context.Background(), "msg-1", "room-1", "entity-1", func(ctx context.Context, runID string) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %v", len(events), events)
	}
	if events[0].Type != EventRunStarted || events[1].Type != EventRunEnded {
		t.Fatalf("unexpected event sequence: %v", events)
	}
	if events[0].RunID == "" || events[0].RunID != events[1].RunID {
		t.Fatalf("events must share a non-empty run id")
	}
	if events[1].Status != StatusCompleted || events[1].Error != "" {
		t.Fatalf("unexpected terminal event: %+v", events[1])
	}
}

func TestController_ErrorSurfacesInEndedEvent(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(sink, time.Minute, EmitAlways)

	boom := errors.New("boom")
	err := c.Execute(context.Background(), "msg-1", "room-1", "entity-1", func(ctx context.Context, runID string) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the processing error back, got %v", err)
	}

	ended := sink.waitFor(t, EventRunEnded, time.Second)
	if ended.Error != "boom" {
		t.Fatalf("expected error description in terminal event, got %q", ended.Error)
	}
}

func TestController_DroppedRunMarksEndedEvent(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(sink, time.Minute, EmitAlways)

	err := c.Execute(context.Background(), "msg-1", "room-1", "entity-1", func(ctx context.Context, runID string) error {
		return ErrDropped
	})
	if !errors.Is(err, ErrDropped) {
		t.Fatalf("expected ErrDropped back, got %v", err)
	}

	ended := sink.waitFor(t, EventRunEnded, time.Second)
	if ended.Status != StatusCompleted {
		t.Fatalf("dropped run must end completed, got %s", ended.Status)
	}
	if !ended.Dropped {
		t.Fatalf("terminal event does not mark the dropped outcome: %+v", ended)
	}
	if ended.Error != "" {
		t.Fatalf("a drop is not an error, got %q", ended.Error)
	}
}

func TestController_TimeoutReportsWithoutCancelling(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(sink, 30*time.Millisecond, EmitAlways)

	release := make(chan struct{})
	finished := make(chan struct{})
	start := time.Now()
	err := c.Execute(context.Background(), "msg-1", "room-1", "entity-1", func(ctx context.Context, runID string) error {
		<-release
		close(finished)
		return nil
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("expected ErrRunTimeout, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("timeout took far longer than the budget: %v", elapsed)
	}
	timeoutEvent := sink.waitFor(t, EventRunTimeout, time.Second)
	if timeoutEvent.Error == "" {
		t.Fatalf("timeout event must carry the fixed error message")
	}

	// The processing unit was not cancelled; it still finishes and, under
	// EmitAlways, emits its own terminal event.
	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("background branch should keep running after the timeout")
	}
	sink.waitFor(t, EventRunEnded, time.Second)
}

func TestController_SuppressAfterTimeoutSkipsLateEnded(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(sink, 30*time.Millisecond, SuppressAfterTimeout)

	release := make(chan struct{})
	err := c.Execute(context.Background(), "msg-1", "room-1", "entity-1", func(ctx context.Context, runID string) error {
		<-release
		return nil
	})
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("expected ErrRunTimeout, got %v", err)
	}
	close(release)

	time.Sleep(100 * time.Millisecond)
	for _, e := range sink.snapshot() {
		if e.Type == EventRunEnded {
			t.Fatalf("suppress_after_timeout must not emit RUN_ENDED, saw %+v", e)
		}
	}
}

func TestParseTerminalPolicy(t *testing.T) {
	if ParseTerminalPolicy("suppress_after_timeout") != SuppressAfterTimeout {
		t.Fatalf("expected SuppressAfterTimeout")
	}
	if ParseTerminalPolicy("emit_always") != EmitAlways {
		t.Fatalf("expected EmitAlways")
	}
	if ParseTerminalPolicy("") != EmitAlways {
		t.Fatalf("empty policy must default to EmitAlways")
	}
}
