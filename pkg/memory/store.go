package memory

import "context"

// Store is the persistence contract the pipeline writes through. A nil
// Memory from GetMemoryByID means "not stored"; callers must check it
// before creating. Unconditional inserts from pipeline code are forbidden,
// that check is what keeps redelivery idempotent.
type Store interface {
	GetMemoryByID(ctx context.Context, id string) (*Memory, error)
	CreateMemory(ctx context.Context, m *Memory) error
	RecentMemories(ctx context.Context, roomID string, limit int) ([]Memory, error)

	GetRoom(ctx context.Context, id string) (*Room, error)
	EnsureRoom(ctx context.Context, room *Room) error

	GetEntity(ctx context.Context, id string) (*Entity, error)
	EnsureEntity(ctx context.Context, entity *Entity) error

	// EnsureConnection lazily materializes the entity and room for an
	// observed (participant, conversation) pair in one call.
	EnsureConnection(ctx context.Context, userID, roomID, displayName, source string) error

	Close() error
}
