package channels

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/relay/pkg/bus"
)

const cliSelfID = "relay-cli"

// CLIChannel is the in-process adapter used by local chat. Input comes from
// the REPL via Submit; output goes to the writer. It implements the same
// delivery surface as the platform adapters, so the pipeline treats local
// chat exactly like a remote channel.
type CLIChannel struct {
	*BaseChannel
	out     io.Writer
	counter atomic.Int64
}

func NewCLIChannel(messageBus *bus.MessageBus, out io.Writer) *CLIChannel {
	return &CLIChannel{
		BaseChannel: NewBaseChannel("cli", messageBus, nil),
		out:         out,
	}
}

func (c *CLIChannel) Start(ctx context.Context) error {
	c.setRunning(true)
	return nil
}

func (c *CLIChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	return nil
}

func (c *CLIChannel) SelfID() string {
	return cliSelfID
}

// Submit feeds one typed line into the pipeline as an inbound message and
// returns its platform message id.
func (c *CLIChannel) Submit(content string) string {
	messageID := uuid.NewString()
	c.HandleInbound(bus.InboundMessage{
		Channel:    c.Name(),
		SenderID:   "local",
		SenderName: "You",
		ChatID:     "direct",
		MessageID:  messageID,
		Content:    content,
		ReceivedAt: time.Now(),
	})
	return messageID
}

func (c *CLIChannel) Deliver(ctx context.Context, chatID, content, replyToID string) ([]bus.DeliveryResult, error) {
	if content == "" {
		return nil, nil
	}
	if _, err := fmt.Fprintf(c.out, "\nrelay %s\n\n", content); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("cli-out-%d", c.counter.Add(1))
	return []bus.DeliveryResult{{MessageID: id, ChatID: chatID}}, nil
}
