package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MessageBus carries inbound traffic from channel adapters to the agent
// loop. Publishing is buffered; a full buffer drops after a short grace
// period rather than blocking an adapter's receive goroutine. Replies do not
// travel here, they go through the per-client delivery queue.
type MessageBus struct {
	inbound chan InboundMessage
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

const (
	defaultBuffer  = 100
	publishTimeout = 100 * time.Millisecond
)

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBuffer)
}

func NewMessageBusSize(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &MessageBus{
		inbound: make(chan InboundMessage, buffer),
	}
}

func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.inbound <- msg:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.inbound <- msg:
		case <-timer.C:
			mb.dropped.Add(1)
		}
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		if !ok {
			return InboundMessage{}, false
		}
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
}

func (mb *MessageBus) DroppedInbound() uint64 {
	return mb.dropped.Load()
}
