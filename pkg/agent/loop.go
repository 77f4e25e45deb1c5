package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/identity"
	"github.com/dotsetgreg/relay/pkg/logger"
	"github.com/dotsetgreg/relay/pkg/run"
)

// AgentLoop consumes the inbound bus and hands each message to the router
// inside its own bounded run. Messages are processed concurrently; ordering
// guarantees live in the outbox, not here.
type AgentLoop struct {
	bus        *bus.MessageBus
	controller *run.Controller
	router     *Router

	wg sync.WaitGroup
}

func NewAgentLoop(b *bus.MessageBus, controller *run.Controller, router *Router) *AgentLoop {
	return &AgentLoop{bus: b, controller: controller, router: router}
}

// Run blocks until ctx is cancelled or the bus closes, then waits for
// in-flight messages to settle.
func (l *AgentLoop) Run(ctx context.Context) {
	logger.InfoC("agent", "Agent loop started")
	for {
		msg, ok := l.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		l.wg.Add(1)
		go func(msg bus.InboundMessage) {
			defer l.wg.Done()
			l.handle(ctx, msg)
		}(msg)
	}
	l.wg.Wait()
	logger.InfoC("agent", "Agent loop stopped")
}

func (l *AgentLoop) handle(ctx context.Context, msg bus.InboundMessage) {
	messageID := identity.ForMessage(msg.Channel, msg.MessageID)
	roomID := identity.ForRoom(msg.Channel, msg.ChatID)
	entityID := identity.ForEntity(msg.Channel, msg.SenderID)

	err := l.controller.Execute(ctx, messageID, roomID, entityID, func(ctx context.Context, runID string) error {
		return l.router.Process(ctx, runID, msg)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrSelfMessage):
		logger.DebugCF("agent", "Ignoring own message", map[string]interface{}{"channel": msg.Channel})
	case errors.Is(err, ErrMissingID):
		logger.WarnCF("agent", "Message rejected, no platform id", map[string]interface{}{"channel": msg.Channel})
	case errors.Is(err, run.ErrDropped):
		logger.DebugCF("agent", "Message dropped before decision", map[string]interface{}{"channel": msg.Channel})
	case errors.Is(err, run.ErrRunTimeout):
		// Already reported by the controller.
	default:
		logger.ErrorCF("agent", "Message processing failed", map[string]interface{}{
			"channel": msg.Channel,
			"error":   err.Error(),
		})
	}
}
