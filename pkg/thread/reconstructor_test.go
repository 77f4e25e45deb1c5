package thread

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/identity"
	"github.com/dotsetgreg/relay/pkg/memory"
)

type fakeFetcher struct {
	parents map[string]bus.InboundMessage // keyed by message id
	err     error
	calls   int
}

func (f *fakeFetcher) GetParent(ctx context.Context, chatID, messageID string) (*bus.InboundMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	parent, ok := f.parents[messageID]
	if !ok {
		return nil, nil
	}
	return &parent, nil
}

func newTestDedup(t *testing.T) *memory.Dedup {
	t.Helper()
	store, err := memory.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	dedup, err := memory.NewDedup(store, 64)
	if err != nil {
		t.Fatalf("create dedup: %v", err)
	}
	return dedup
}

func msg(id, replyTo, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "discord",
		SenderID:  "user-1",
		ChatID:    "chat-1",
		MessageID: id,
		ReplyToID: replyTo,
		Content:   text,
	}
}

func TestReconstruct_LinearChainRootFirst(t *testing.T) {
	fetcher := &fakeFetcher{parents: map[string]bus.InboundMessage{
		"b": msg("b", "a", "middle"),
		"a": msg("a", "", "root"),
	}}
	r := NewReconstructor(newTestDedup(t), fetcher, "agent-1")

	chain := r.Reconstruct(context.Background(), msg("c", "b", "leaf"))
	if len(chain) != 3 {
		t.Fatalf("expected chain of 3, got %d", len(chain))
	}
	texts := []string{chain[0].Content.Text, chain[1].Content.Text, chain[2].Content.Text}
	if texts[0] != "root" || texts[1] != "middle" || texts[2] != "leaf" {
		t.Fatalf("expected root-first order, got %v", texts)
	}
}

func TestReconstruct_CycleTerminates(t *testing.T) {
	// a -> b -> a
	fetcher := &fakeFetcher{parents: map[string]bus.InboundMessage{
		"b": msg("b", "a", "b-text"),
		"a": msg("a", "b", "a-text"),
	}}
	r := NewReconstructor(newTestDedup(t), fetcher, "agent-1")

	chain := r.Reconstruct(context.Background(), msg("a", "b", "a-text"))
	if len(chain) != 2 {
		t.Fatalf("cycle must yield the distinct ids only, got %d memories", len(chain))
	}
}

func TestReconstruct_ParentFetchFailureReturnsPartial(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("api down")}
	r := NewReconstructor(newTestDedup(t), fetcher, "agent-1")

	chain := r.Reconstruct(context.Background(), msg("c", "b", "leaf"))
	if len(chain) != 1 {
		t.Fatalf("expected partial chain with just the leaf, got %d", len(chain))
	}
	if chain[0].Content.Text != "leaf" {
		t.Fatalf("unexpected chain content: %+v", chain[0].Content)
	}
}

func TestReconstruct_DepthCap(t *testing.T) {
	// Every message points at a fresh parent; only the cap stops the walk.
	fetcher := &fakeFetcher{parents: map[string]bus.InboundMessage{}}
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("a%d", i)
		parentID := fmt.Sprintf("a%d", i+1)
		fetcher.parents[id] = msg(id, parentID, "deep")
	}
	r := NewReconstructor(newTestDedup(t), fetcher, "agent-1")

	chain := r.Reconstruct(context.Background(), msg("a0", "a1", "leaf"))
	if len(chain) > defaultMaxDepth {
		t.Fatalf("chain exceeded depth cap: %d", len(chain))
	}
}

func TestReconstruct_MemoriesPersistedWithDerivedIDs(t *testing.T) {
	fetcher := &fakeFetcher{parents: map[string]bus.InboundMessage{
		"a": msg("a", "", "root"),
	}}
	dedup := newTestDedup(t)
	r := NewReconstructor(dedup, fetcher, "agent-1")

	r.Reconstruct(context.Background(), msg("b", "a", "leaf"))

	stored, err := dedup.Store().GetMemoryByID(context.Background(), identity.ForMessage("discord", "a"))
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if stored == nil || stored.Content.Text != "root" {
		t.Fatalf("expected persisted root memory, got %+v", stored)
	}
}

func TestReconstruct_ParticipantsConnected(t *testing.T) {
	fetcher := &fakeFetcher{}
	dedup := newTestDedup(t)
	r := NewReconstructor(dedup, fetcher, "agent-1")

	leaf := msg("m1", "", "hi")
	leaf.SenderName = "Ada"
	r.Reconstruct(context.Background(), leaf)

	entity, err := dedup.Store().GetEntity(context.Background(), identity.ForEntity("discord", "user-1"))
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if entity == nil || entity.DisplayName != "Ada" {
		t.Fatalf("expected synced participant entity, got %+v", entity)
	}
}
