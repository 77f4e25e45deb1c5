package channels

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dotsetgreg/relay/pkg/bus"
)

// Channel is one connected platform. Inbound traffic goes onto the bus via
// HandleInbound; replies reach the adapter through its delivery surface
// behind the per-client queue, not through this interface.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SelfID() string
	IsRunning() bool
	IsAllowed(senderID string) bool
}

type BaseChannel struct {
	bus       *bus.MessageBus
	running   atomic.Bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, bus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       bus,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

// IsRunning is read from adapter goroutines while Start/Stop flip the flag,
// so the flag is atomic.
func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	// Extract parts from compound senderID like "123456|username"
	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		candidate := strings.TrimSpace(strings.TrimPrefix(allowed, "@"))
		if candidate == "" {
			continue
		}
		if candidate == senderID || candidate == idPart || (userPart != "" && candidate == userPart) {
			return true
		}
	}

	return false
}

// HandleInbound applies the allowlist and publishes the message onto the
// bus. The platform handler fills every field it can; the pipeline derives
// canonical ids from them later.
func (c *BaseChannel) HandleInbound(msg bus.InboundMessage) {
	if !c.IsAllowed(msg.SenderID) {
		return
	}
	if msg.Channel == "" {
		msg.Channel = c.name
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	c.bus.PublishInbound(msg)
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
