package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_MemoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &Memory{
		ID:       "mem-1",
		AgentID:  "agent-1",
		SenderID: "user-1",
		RoomID:   "room-1",
		Content:  Content{Text: "hello", Source: "discord", InReplyTo: "mem-0"},
	}
	if err := store.CreateMemory(ctx, m); err != nil {
		t.Fatalf("create memory: %v", err)
	}

	got, err := store.GetMemoryByID(ctx, "mem-1")
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if got == nil {
		t.Fatalf("expected memory, got nil")
	}
	if got.Content.Text != "hello" || got.Content.InReplyTo != "mem-0" {
		t.Fatalf("unexpected content: %+v", got.Content)
	}
}

func TestSQLiteStore_GetMissingMemoryReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetMemoryByID(context.Background(), "absent")
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing memory, got %+v", got)
	}
}

func TestSQLiteStore_DuplicateCreateKeepsFirstWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &Memory{ID: "mem-dup", RoomID: "room-1", Content: Content{Text: "original"}}
	second := &Memory{ID: "mem-dup", RoomID: "room-1", Content: Content{Text: "replay"}}

	if err := store.CreateMemory(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if err := store.CreateMemory(ctx, second); err != nil {
		t.Fatalf("create duplicate: %v", err)
	}

	got, err := store.GetMemoryByID(ctx, "mem-dup")
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if got.Content.Text != "original" {
		t.Fatalf("duplicate create must not overwrite, got %q", got.Content.Text)
	}
}

func TestSQLiteStore_RecentMemoriesOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i, text := range []string{"one", "two", "three"} {
		m := &Memory{
			ID:        "mem-" + text,
			RoomID:    "room-1",
			Content:   Content{Text: text},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.CreateMemory(ctx, m); err != nil {
			t.Fatalf("create %s: %v", text, err)
		}
	}

	got, err := store.RecentMemories(ctx, "room-1", 2)
	if err != nil {
		t.Fatalf("recent memories: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 memories, got %d", len(got))
	}
	if got[0].Content.Text != "two" || got[1].Content.Text != "three" {
		t.Fatalf("expected oldest-first window [two three], got [%s %s]", got[0].Content.Text, got[1].Content.Text)
	}
}

func TestSQLiteStore_EnsureConnectionCreatesEntityAndRoom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.EnsureConnection(ctx, "entity-1", "room-1", "Ada", "discord"); err != nil {
		t.Fatalf("ensure connection: %v", err)
	}

	entity, err := store.GetEntity(ctx, "entity-1")
	if err != nil || entity == nil {
		t.Fatalf("expected entity, got %v err=%v", entity, err)
	}
	if entity.DisplayName != "Ada" {
		t.Fatalf("unexpected display name %q", entity.DisplayName)
	}
	room, err := store.GetRoom(ctx, "room-1")
	if err != nil || room == nil {
		t.Fatalf("expected room, got %v err=%v", room, err)
	}

	// Second call is a no-op, not an error.
	if err := store.EnsureConnection(ctx, "entity-1", "room-1", "Ada L.", "discord"); err != nil {
		t.Fatalf("repeat ensure connection: %v", err)
	}
	entity, _ = store.GetEntity(ctx, "entity-1")
	if entity.DisplayName != "Ada" {
		t.Fatalf("non-empty display name must not be overwritten, got %q", entity.DisplayName)
	}
}

func TestSQLiteStore_EnsureEntityBackfillsEmptyName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.EnsureEntity(ctx, &Entity{ID: "e1", Source: "discord"}); err != nil {
		t.Fatalf("ensure entity: %v", err)
	}
	if err := store.EnsureEntity(ctx, &Entity{ID: "e1", Source: "discord", DisplayName: "Grace"}); err != nil {
		t.Fatalf("ensure entity again: %v", err)
	}
	entity, err := store.GetEntity(ctx, "e1")
	if err != nil || entity == nil {
		t.Fatalf("expected entity, err=%v", err)
	}
	if entity.DisplayName != "Grace" {
		t.Fatalf("expected backfilled name Grace, got %q", entity.DisplayName)
	}
}
