// Package thread rebuilds conversation threads from reply pointers.
package thread

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/logger"
	"github.com/dotsetgreg/relay/pkg/memory"
)

// ParentFetcher is the one platform capability the reconstructor needs:
// resolving a reply pointer to its parent message. A nil result with a nil
// error means the parent does not exist (deleted, foreign, or out of reach).
type ParentFetcher interface {
	GetParent(ctx context.Context, chatID, messageID string) (*bus.InboundMessage, error)
}

const (
	// The parent graph is external input; the visited set stops loops but
	// not pathological depth, so the walk is capped outright.
	defaultMaxDepth = 50

	entityBatchSize  = 5
	entityBatchDelay = 100 * time.Millisecond
)

// Reconstructor walks parent pointers from a leaf message and materializes a
// root-first chain of Memories, creating any that are missing.
type Reconstructor struct {
	dedup    *memory.Dedup
	fetcher  ParentFetcher
	agentID  string
	maxDepth int
}

func NewReconstructor(dedup *memory.Dedup, fetcher ParentFetcher, agentID string) *Reconstructor {
	return &Reconstructor{
		dedup:    dedup,
		fetcher:  fetcher,
		agentID:  agentID,
		maxDepth: defaultMaxDepth,
	}
}

type participant struct {
	entityID    string
	roomID      string
	displayName string
	source      string
}

// Reconstruct returns the ancestor chain for leaf, root first, leaf last.
// Each external id is visited at most once and the walk always terminates.
// A parent-fetch failure ends the walk with the partial chain; the caller
// never sees an error.
func (r *Reconstructor) Reconstruct(ctx context.Context, leaf bus.InboundMessage) []memory.Memory {
	visited := make(map[string]struct{})
	var chain []memory.Memory
	participants := make(map[string]participant)

	current := &leaf
	for current != nil && len(visited) < r.maxDepth {
		if current.MessageID == "" {
			break
		}
		if _, seen := visited[current.MessageID]; seen {
			logger.DebugCF("thread", "Cycle detected in parent chain", map[string]interface{}{
				"channel":    current.Channel,
				"message_id": current.MessageID,
			})
			break
		}
		visited[current.MessageID] = struct{}{}

		m := memory.FromInbound(*current, r.agentID)
		if _, err := r.dedup.EnsureMemory(ctx, m); err != nil {
			logger.WarnCF("thread", "Failed to ensure memory for thread message", map[string]interface{}{
				"message_id": current.MessageID,
				"error":      err.Error(),
			})
			break
		}
		chain = append([]memory.Memory{*m}, chain...)
		participants[m.SenderID] = participant{
			entityID:    m.SenderID,
			roomID:      m.RoomID,
			displayName: current.SenderName,
			source:      current.Channel,
		}

		if current.ReplyToID == "" {
			break
		}
		parent, err := r.fetcher.GetParent(ctx, current.ChatID, current.ReplyToID)
		if err != nil {
			logger.WarnCF("thread", "Parent fetch failed, returning partial thread", map[string]interface{}{
				"chat_id":     current.ChatID,
				"reply_to_id": current.ReplyToID,
				"error":       err.Error(),
			})
			break
		}
		current = parent
	}

	r.syncParticipants(ctx, participants)
	return chain
}

// syncParticipants lazily materializes entities and connections for everyone
// seen in the thread, in bounded batches with a short pause between batches
// so a deep thread does not burst the store.
func (r *Reconstructor) syncParticipants(ctx context.Context, participants map[string]participant) {
	if len(participants) == 0 {
		return
	}
	batch := make([]participant, 0, entityBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range batch {
			p := p
			g.Go(func() error {
				return r.dedup.Store().EnsureConnection(gctx, p.entityID, p.roomID, p.displayName, p.source)
			})
		}
		if err := g.Wait(); err != nil {
			logger.WarnCF("thread", "Entity sync batch failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		batch = batch[:0]
	}

	for _, p := range participants {
		batch = append(batch, p)
		if len(batch) == entityBatchSize {
			flush()
			select {
			case <-time.After(entityBatchDelay):
			case <-ctx.Done():
				return
			}
		}
	}
	flush()
}
