package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dotsetgreg/relay/pkg/actions"
	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/identity"
	"github.com/dotsetgreg/relay/pkg/memory"
	"github.com/dotsetgreg/relay/pkg/outbox"
)

// Sender is the single outbound capability a platform adapter exposes:
// deliver content to one conversation, optionally as a reply. One call may
// produce several platform message parts.
type Sender interface {
	Deliver(ctx context.Context, chatID, content, replyToID string) ([]bus.DeliveryResult, error)
}

type outboundClient struct {
	sender Sender
	queue  *outbox.Queue
}

// Emitter sends handler responses through the per-client outbox queue and
// persists the resulting Memories. All rate-limited sends go through here;
// nothing may bypass the queue.
type Emitter struct {
	dedup   *memory.Dedup
	agentID string

	mu      sync.RWMutex
	clients map[string]*outboundClient
}

func NewEmitter(dedup *memory.Dedup, agentID string) *Emitter {
	return &Emitter{
		dedup:   dedup,
		agentID: agentID,
		clients: make(map[string]*outboundClient),
	}
}

// RegisterClient wires a platform sender and its serialization queue under
// the channel name.
func (e *Emitter) RegisterClient(channel string, sender Sender, queue *outbox.Queue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clients[channel] = &outboundClient{sender: sender, queue: queue}
}

// Close shuts down every registered queue.
func (e *Emitter) Close() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.clients {
		c.queue.Close()
	}
}

// Emit delivers one response for the conversation that msg came from, then
// records a Memory per delivered part. The reply-pointer on the platform
// side is the inbound platform message; on the storage side it is whatever
// the handler stamped into resp.InReplyTo.
func (e *Emitter) Emit(ctx context.Context, msg bus.InboundMessage, resp actions.Response) ([]bus.DeliveryResult, error) {
	e.mu.RLock()
	client, ok := e.clients[msg.Channel]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no outbound client for channel %q", msg.Channel)
	}

	future := client.queue.Enqueue(func(opCtx context.Context) (any, error) {
		return client.sender.Deliver(opCtx, msg.ChatID, resp.Text, msg.MessageID)
	})

	var result outbox.Result
	select {
	case result = <-future:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if result.Err != nil {
		return nil, result.Err
	}
	deliveries, _ := result.Value.([]bus.DeliveryResult)

	for _, d := range deliveries {
		m := &memory.Memory{
			ID:       identity.ForMessage(msg.Channel, d.MessageID),
			AgentID:  e.agentID,
			SenderID: e.agentID,
			RoomID:   identity.ForRoom(msg.Channel, msg.ChatID),
			Content: memory.Content{
				Text:      resp.Text,
				Source:    msg.Channel,
				InReplyTo: resp.InReplyTo,
				Action:    resp.Action,
			},
			CreatedAt: time.Now(),
		}
		if _, err := e.dedup.EnsureMemory(ctx, m); err != nil {
			return deliveries, fmt.Errorf("persist response memory: %w", err)
		}
	}
	return deliveries, nil
}
