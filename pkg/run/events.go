package run

import (
	"time"

	"github.com/dotsetgreg/relay/pkg/logger"
)

// Status is the lifecycle state of one run.
type Status string

const (
	StatusStarted   Status = "started"
	StatusTimeout   Status = "timeout"
	StatusCompleted Status = "completed"
)

// EventType names the lifecycle events a run emits.
type EventType string

const (
	EventRunStarted EventType = "RUN_STARTED"
	EventRunTimeout EventType = "RUN_TIMEOUT"
	EventRunEnded   EventType = "RUN_ENDED"
)

// Context identifies one run of the pipeline. Created per inbound message
// and never persisted beyond the events it emits.
type Context struct {
	RunID     string
	MessageID string
	RoomID    string
	EntityID  string
	StartTime time.Time
	Status    Status
	Err       error
}

// Event is what the sink receives for each lifecycle transition.
type Event struct {
	Type      EventType
	RunID     string
	MessageID string
	RoomID    string
	EntityID  string
	StartTime time.Time
	Duration  time.Duration
	Status    Status
	Dropped   bool
	Error     string
}

// EventSink receives run lifecycle events and hook outcomes. Implementations
// must be safe for concurrent use: many runs emit at once, and a timed-out
// run's background branch can emit after the caller has moved on.
type EventSink interface {
	OnRunEvent(event Event)
	OnHookResult(hook, runID string, allowed bool)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) OnRunEvent(Event)                  {}
func (NopSink) OnHookResult(string, string, bool) {}

// LogSink writes every event to the structured log.
type LogSink struct{}

func (LogSink) OnRunEvent(event Event) {
	fields := map[string]interface{}{
		"run_id":     event.RunID,
		"message_id": event.MessageID,
		"status":     string(event.Status),
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.Dropped {
		fields["dropped"] = true
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}
	logger.InfoCF("run", string(event.Type), fields)
}

func (LogSink) OnHookResult(hook, runID string, allowed bool) {
	logger.DebugCF("run", "Hook evaluated", map[string]interface{}{
		"hook":    hook,
		"run_id":  runID,
		"allowed": allowed,
	})
}
