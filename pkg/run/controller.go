// Package run wraps one inbound message in a wall-clock-bounded processing
// unit with start/timeout/end events.
package run

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dotsetgreg/relay/pkg/identity"
	"github.com/dotsetgreg/relay/pkg/logger"
)

// ErrRunTimeout is what the caller sees when the budget elapses first.
var ErrRunTimeout = errors.New("run exceeded its wall-clock budget")

// ErrDropped marks a run whose message was intentionally discarded before a
// decision was requested, typically by the rate limiter. The run still ends
// completed; the marker only distinguishes the outcome in RUN_ENDED.
var ErrDropped = errors.New("message dropped before decision")

const timeoutErrorMessage = "run exceeded its wall-clock budget"

// TerminalPolicy controls whether a run that already reported RUN_TIMEOUT
// may still emit RUN_ENDED when its background branch finishes. The source
// behavior (both events) is the default; consumers that need strictly one
// terminal event per run opt into suppression instead of de-duplicating by
// run id themselves.
type TerminalPolicy int

const (
	EmitAlways TerminalPolicy = iota
	SuppressAfterTimeout
)

func ParseTerminalPolicy(name string) TerminalPolicy {
	if strings.EqualFold(strings.TrimSpace(name), "suppress_after_timeout") {
		return SuppressAfterTimeout
	}
	return EmitAlways
}

// ProcessFunc is the actual processing unit for one message.
type ProcessFunc func(ctx context.Context, runID string) error

// Controller races each processing unit against a fixed budget. The timeout
// is report-only: the losing branch keeps running in the background and is
// never cancelled.
type Controller struct {
	sink   EventSink
	budget time.Duration
	policy TerminalPolicy
}

func NewController(sink EventSink, budget time.Duration, policy TerminalPolicy) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	if budget <= 0 {
		budget = 60 * time.Minute
	}
	return &Controller{sink: sink, budget: budget, policy: policy}
}

// Execute runs fn under a fresh run id. Returns fn's error, or ErrRunTimeout
// when the budget elapses first.
func (c *Controller) Execute(ctx context.Context, messageID, roomID, entityID string, fn ProcessFunc) error {
	rc := Context{
		RunID:     identity.NewRunID(),
		MessageID: messageID,
		RoomID:    roomID,
		EntityID:  entityID,
		StartTime: time.Now(),
		Status:    StatusStarted,
	}

	c.sink.OnRunEvent(Event{
		Type:      EventRunStarted,
		RunID:     rc.RunID,
		MessageID: rc.MessageID,
		RoomID:    rc.RoomID,
		EntityID:  rc.EntityID,
		StartTime: rc.StartTime,
		Status:    StatusStarted,
	})

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx, rc.RunID)
	}()

	timer := time.NewTimer(c.budget)
	defer timer.Stop()

	select {
	case err := <-done:
		c.emitEnded(rc, time.Since(rc.StartTime), err)
		return err

	case <-timer.C:
		duration := time.Since(rc.StartTime)
		logger.WarnCF("run", "Run exceeded budget", map[string]interface{}{
			"run_id":      rc.RunID,
			"message_id":  rc.MessageID,
			"duration_ms": duration.Milliseconds(),
		})
		c.sink.OnRunEvent(Event{
			Type:      EventRunTimeout,
			RunID:     rc.RunID,
			MessageID: rc.MessageID,
			RoomID:    rc.RoomID,
			EntityID:  rc.EntityID,
			StartTime: rc.StartTime,
			Duration:  duration,
			Status:    StatusTimeout,
			Error:     timeoutErrorMessage,
		})
		// The processing unit keeps running. When it eventually settles it
		// emits its own RUN_ENDED unless the policy suppresses it.
		go func() {
			err := <-done
			if c.policy == SuppressAfterTimeout {
				return
			}
			c.emitEnded(rc, time.Since(rc.StartTime), err)
		}()
		return ErrRunTimeout
	}
}

func (c *Controller) emitEnded(rc Context, duration time.Duration, err error) {
	event := Event{
		Type:      EventRunEnded,
		RunID:     rc.RunID,
		MessageID: rc.MessageID,
		RoomID:    rc.RoomID,
		EntityID:  rc.EntityID,
		StartTime: rc.StartTime,
		Duration:  duration,
		Status:    StatusCompleted,
	}
	switch {
	case errors.Is(err, ErrDropped):
		event.Dropped = true
	case err != nil:
		event.Error = err.Error()
	}
	c.sink.OnRunEvent(event)
}
