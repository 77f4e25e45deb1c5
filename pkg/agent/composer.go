package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/logger"
	"github.com/dotsetgreg/relay/pkg/memory"
)

// Composer assembles the decision prompt for one inbound message: agent
// framing, conversation history, the new message, and the available-action
// metadata.
type Composer struct {
	store       memory.Store
	agentID     string
	agentName   string
	recentLimit int
}

func NewComposer(store memory.Store, agentID, agentName string, recentLimit int) *Composer {
	if recentLimit <= 0 {
		recentLimit = 20
	}
	return &Composer{store: store, agentID: agentID, agentName: agentName, recentLimit: recentLimit}
}

// Compose renders the prompt. chain is the reconstructed reply thread when
// the message is a reply; otherwise recent room history is pulled from the
// store. History failures degrade to an empty history, they never block the
// decision.
func (c *Composer) Compose(ctx context.Context, msg bus.InboundMessage, inbound *memory.Memory, chain []memory.Memory, actionCatalog string) string {
	history := chain
	if len(history) == 0 {
		recent, err := c.store.RecentMemories(ctx, inbound.RoomID, c.recentLimit)
		if err != nil {
			logger.WarnCF("agent", "Failed to load recent history", map[string]interface{}{
				"room_id": inbound.RoomID,
				"error":   err.Error(),
			})
		} else {
			history = recent
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an agent conversing across chat platforms.\n\n", c.agentName)

	if len(history) > 0 {
		b.WriteString("# Conversation so far (oldest first)\n")
		for _, m := range history {
			if m.ID == inbound.ID {
				continue
			}
			speaker := "participant"
			if m.SenderID == c.agentID {
				speaker = c.agentName
			}
			fmt.Fprintf(&b, "[%s] %s\n", speaker, m.Content.Text)
		}
		b.WriteString("\n")
	}

	sender := msg.SenderName
	if sender == "" {
		sender = msg.SenderID
	}
	fmt.Fprintf(&b, "# New message\nFrom %s on %s:\n%s\n\n", sender, msg.Channel, msg.Content)

	b.WriteString("# Available actions\n")
	b.WriteString(actionCatalog)
	b.WriteString("\n")

	b.WriteString(`# Task
Decide how to respond. Return strict JSON only, no prose:
{"thought": "<your reasoning>", "actions": ["<ACTION_NAME>", ...], "message": "<drafted reply text, empty if none>"}
`)
	return b.String()
}
