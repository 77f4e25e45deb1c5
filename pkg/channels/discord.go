package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/config"
	"github.com/dotsetgreg/relay/pkg/logger"
	"github.com/dotsetgreg/relay/pkg/utils"
)

const (
	sendTimeout           = 10 * time.Second
	typingRefreshInterval = 8 * time.Second
	typingMaxDuration     = 5 * time.Minute
)

type DiscordChannel struct {
	*BaseChannel
	session  *discordgo.Session
	config   config.DiscordConfig
	selfID   string
	typing   map[string]*typingSession
	typingMu sync.Mutex
}

type typingSession struct {
	pending int
	cancel  context.CancelFunc
}

func NewDiscordChannel(cfg config.DiscordConfig, bus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	base := NewBaseChannel("discord", bus, cfg.AllowFrom)

	return &DiscordChannel{
		BaseChannel: base,
		session:     session,
		config:      cfg,
		typing:      make(map[string]*typingSession),
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	c.selfID = botUser.ID
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)
	c.stopAllTyping()

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

// SelfID is the bot's own user id, known after Start.
func (c *DiscordChannel) SelfID() string {
	return c.selfID
}

// Deliver sends content to one Discord channel, split at platform limits,
// and reports every message part that made it out. A non-empty replyToID
// attaches the first part as a platform reply.
func (c *DiscordChannel) Deliver(ctx context.Context, chatID, content, replyToID string) ([]bus.DeliveryResult, error) {
	if !c.IsRunning() {
		return nil, fmt.Errorf("discord bot not running")
	}
	if chatID == "" {
		return nil, fmt.Errorf("channel ID is empty")
	}

	if len([]rune(content)) == 0 {
		return nil, nil
	}

	chunks := splitMessage(content, 1500) // Discord has a limit of 2000 characters per message, leave 500 for natural split e.g. code blocks

	var results []bus.DeliveryResult
	for i, chunk := range chunks {
		ref := ""
		if i == 0 {
			ref = replyToID
		}
		sent, err := c.sendChunk(ctx, chatID, chunk, ref)
		if err != nil {
			return results, err
		}
		results = append(results, bus.DeliveryResult{MessageID: sent, ChatID: chatID})
	}

	return results, nil
}

// GetParent resolves a reply pointer to the referenced Discord message. A
// deleted or inaccessible parent is a nil result, not an error.
func (c *DiscordChannel) GetParent(ctx context.Context, chatID, messageID string) (*bus.InboundMessage, error) {
	m, err := c.session.ChannelMessage(chatID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Response != nil && restErr.Response.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch discord message %s: %w", messageID, err)
	}
	if m == nil || m.Author == nil {
		return nil, nil
	}

	msg := c.inboundFromMessage(m)
	return &msg, nil
}

func (c *DiscordChannel) inboundFromMessage(m *discordgo.Message) bus.InboundMessage {
	senderName := m.Author.Username
	if m.Author.Discriminator != "" && m.Author.Discriminator != "0" {
		senderName += "#" + m.Author.Discriminator
	}

	replyTo := ""
	if m.MessageReference != nil {
		replyTo = m.MessageReference.MessageID
	}

	receivedAt := m.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	return bus.InboundMessage{
		Channel:    c.Name(),
		SenderID:   m.Author.ID,
		SenderName: senderName,
		ChatID:     m.ChannelID,
		MessageID:  m.ID,
		Content:    m.Content,
		ReplyToID:  replyTo,
		ReceivedAt: receivedAt,
	}
}

// splitMessage splits long messages into chunks, preserving code block integrity
// Uses natural boundaries (newlines, spaces) and extends messages slightly to avoid breaking code blocks
func splitMessage(content string, limit int) []string {
	var messages []string

	for len(content) > 0 {
		if len(content) <= limit {
			messages = append(messages, content)
			break
		}

		msgEnd := limit

		// Find natural split point within the limit
		msgEnd = findLastNewline(content[:limit], 200)
		if msgEnd <= 0 {
			msgEnd = findLastSpace(content[:limit], 100)
		}
		if msgEnd <= 0 {
			msgEnd = limit
		}

		// Check if this would end with an incomplete code block
		candidate := content[:msgEnd]
		unclosedIdx := findLastUnclosedCodeBlock(candidate)

		if unclosedIdx >= 0 {
			// Message would end with incomplete code block
			// Try to extend to include the closing ``` (with some buffer)
			extendedLimit := limit + 500 // Allow 500 char buffer for code blocks
			if len(content) > extendedLimit {
				closingIdx := findNextClosingCodeBlock(content, msgEnd)
				if closingIdx > 0 && closingIdx <= extendedLimit {
					// Extend to include the closing ```
					msgEnd = closingIdx
				} else {
					// Can't find closing, split before the code block
					msgEnd = findLastNewline(content[:unclosedIdx], 200)
					if msgEnd <= 0 {
						msgEnd = findLastSpace(content[:unclosedIdx], 100)
					}
					if msgEnd <= 0 {
						msgEnd = unclosedIdx
					}
				}
			} else {
				// Remaining content fits within extended limit
				msgEnd = len(content)
			}
		}

		if msgEnd <= 0 {
			msgEnd = limit
		}

		messages = append(messages, content[:msgEnd])
		content = strings.TrimSpace(content[msgEnd:])
	}

	return messages
}

// findLastUnclosedCodeBlock finds the last opening ``` that doesn't have a closing ```
// Returns the position of the opening ``` or -1 if all code blocks are complete
func findLastUnclosedCodeBlock(text string) int {
	count := 0
	lastOpenIdx := -1

	for i := 0; i < len(text); i++ {
		if i+2 < len(text) && text[i] == '`' && text[i+1] == '`' && text[i+2] == '`' {
			if count == 0 {
				lastOpenIdx = i
			}
			count++
			i += 2
		}
	}

	// If odd number of ``` markers, last one is unclosed
	if count%2 == 1 {
		return lastOpenIdx
	}
	return -1
}

// findNextClosingCodeBlock finds the next closing ``` starting from a position
// Returns the position after the closing ``` or -1 if not found
func findNextClosingCodeBlock(text string, startIdx int) int {
	for i := startIdx; i < len(text); i++ {
		if i+2 < len(text) && text[i] == '`' && text[i+1] == '`' && text[i+2] == '`' {
			return i + 3
		}
	}
	return -1
}

// findLastNewline finds the last newline character within the last N characters
// Returns the position of the newline or -1 if not found
func findLastNewline(s string, searchWindow int) int {
	searchStart := len(s) - searchWindow
	if searchStart < 0 {
		searchStart = 0
	}
	for i := len(s) - 1; i >= searchStart; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}

// findLastSpace finds the last space character within the last N characters
// Returns the position of the space or -1 if not found
func findLastSpace(s string, searchWindow int) int {
	searchStart := len(s) - searchWindow
	if searchStart < 0 {
		searchStart = 0
	}
	for i := len(s) - 1; i >= searchStart; i-- {
		if s[i] == ' ' || s[i] == '\t' {
			return i
		}
	}
	return -1
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content, replyToID string) (string, error) {
	// Use the incoming context for timeout control.
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	type sendResult struct {
		id  string
		err error
	}
	done := make(chan sendResult, 1)
	go func() {
		var m *discordgo.Message
		var err error
		if replyToID != "" {
			m, err = c.session.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
				MessageID: replyToID,
				ChannelID: channelID,
			})
		} else {
			m, err = c.session.ChannelMessageSend(channelID, content)
		}
		if err != nil {
			done <- sendResult{err: err}
			return
		}
		done <- sendResult{id: m.ID}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("failed to send discord message: %w", res.err)
		}
		return res.id, nil
	case <-sendCtx.Done():
		return "", fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

func (c *DiscordChannel) sendTyping(channelID string) {
	if channelID == "" || c.session == nil {
		return
	}
	if err := c.session.ChannelTyping(channelID); err != nil {
		logger.ErrorCF("discord", "Failed to send typing indicator", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *DiscordChannel) beginTyping(channelID string) {
	if channelID == "" {
		return
	}

	c.typingMu.Lock()
	if sess, ok := c.typing[channelID]; ok {
		sess.pending++
		c.typingMu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.typing[channelID] = &typingSession{
		pending: 1,
		cancel:  cancel,
	}
	c.typingMu.Unlock()

	c.sendTyping(channelID)

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()
		deadline := time.Now().Add(typingMaxDuration)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// The deadline catches a session whose message never
				// reached the pipeline, e.g. dropped on a full bus.
				if !c.IsRunning() || time.Now().After(deadline) {
					c.clearTyping(channelID)
					return
				}
				c.sendTyping(channelID)
			}
		}
	}()
}

// ProcessingDone clears the typing indicator raised for chatID once the
// pipeline has finished with an inbound message. Runs that end in silence
// never call Deliver, so typing cannot be tied to delivery.
func (c *DiscordChannel) ProcessingDone(chatID string) {
	c.endTyping(chatID)
}

func (c *DiscordChannel) endTyping(channelID string) {
	if channelID == "" {
		return
	}

	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	sess, ok := c.typing[channelID]
	if !ok {
		return
	}
	sess.pending--
	if sess.pending > 0 {
		return
	}
	delete(c.typing, channelID)
	sess.cancel()
}

// clearTyping force-ends a session regardless of its pending count.
func (c *DiscordChannel) clearTyping(channelID string) {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	sess, ok := c.typing[channelID]
	if !ok {
		return
	}
	delete(c.typing, channelID)
	sess.cancel()
}

func (c *DiscordChannel) stopAllTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	for channelID, sess := range c.typing {
		sess.cancel()
		delete(c.typing, channelID)
	}
}

// appendContent safely appends suffix text to existing content.
func appendContent(content, suffix string) string {
	if content == "" {
		return suffix
	}
	return content + "\n" + suffix
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}

	if m.Author.ID == s.State.User.ID {
		return
	}

	// Check allowlist before annotating attachments.
	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]any{
			"user_id": m.Author.ID,
		})
		return
	}

	msg := c.inboundFromMessage(m.Message)

	content := msg.Content
	for _, attachment := range m.Attachments {
		if utils.IsAudioFile(attachment.Filename, attachment.ContentType) {
			content = appendContent(content, fmt.Sprintf("[audio: %s]", attachment.Filename))
		} else {
			content = appendContent(content, fmt.Sprintf("[attachment: %s]", attachment.URL))
		}
	}
	if content == "" {
		return
	}
	msg.Content = content

	c.beginTyping(m.ChannelID)

	logger.DebugCF("discord", "Received message", map[string]any{
		"sender_name": msg.SenderName,
		"sender_id":   msg.SenderID,
		"preview":     utils.Truncate(content, 50),
	})

	msg.Metadata = map[string]string{
		"message_id":   m.ID,
		"user_id":      msg.SenderID,
		"username":     m.Author.Username,
		"display_name": msg.SenderName,
		"guild_id":     m.GuildID,
		"channel_id":   m.ChannelID,
		"is_dm":        fmt.Sprintf("%t", m.GuildID == ""),
	}

	c.HandleInbound(msg)
}
