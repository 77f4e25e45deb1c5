package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the canonical persistent storage for Memories, Rooms and
// Entities.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates/opens the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process store. One shared connection avoids writer lock
	// contention with SQLite under concurrent message tasks.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL DEFAULT '',
			sender_id TEXT NOT NULL DEFAULT '',
			room_id TEXT NOT NULL,
			content_json TEXT NOT NULL DEFAULT '{}',
			embedding_json TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS memories_room_idx ON memories(room_id, created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			chat_id TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			external_id TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			is_agent INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS connections (
			entity_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (entity_id, room_id)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init memory schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetMemoryByID(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, sender_id, room_id, content_json, embedding_json, created_at_ms
		 FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	return m, nil
}

func (s *SQLiteStore) CreateMemory(ctx context.Context, m *Memory) error {
	contentJSON, err := json.Marshal(m.Content)
	if err != nil {
		return fmt.Errorf("marshal memory content: %w", err)
	}
	embeddingJSON := ""
	if len(m.Embedding) > 0 {
		raw, err := json.Marshal(m.Embedding)
		if err != nil {
			return fmt.Errorf("marshal memory embedding: %w", err)
		}
		embeddingJSON = string(raw)
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	// INSERT OR IGNORE keeps a racing double-write of the same derived id
	// harmless: last write loses, content is equivalent by construction.
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memories (id, agent_id, sender_id, room_id, content_json, embedding_json, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AgentID, m.SenderID, m.RoomID, string(contentJSON), embeddingJSON, createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create memory %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) RecentMemories(ctx context.Context, roomID string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, sender_id, room_id, content_json, embedding_json, created_at_ms
		 FROM memories WHERE room_id = ?
		 ORDER BY created_at_ms DESC LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent memories for room %s: %w", roomID, err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Oldest first for prompt assembly.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, chat_id, created_at_ms FROM rooms WHERE id = ?`, id)
	var r Room
	var createdAtMS int64
	if err := row.Scan(&r.ID, &r.Source, &r.ChatID, &createdAtMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	r.CreatedAt = time.UnixMilli(createdAtMS)
	return &r, nil
}

func (s *SQLiteStore) EnsureRoom(ctx context.Context, room *Room) error {
	createdAt := room.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rooms (id, source, chat_id, created_at_ms) VALUES (?, ?, ?, ?)`,
		room.ID, room.Source, room.ChatID, createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("ensure room %s: %w", room.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, external_id, display_name, is_agent, created_at_ms, updated_at_ms
		 FROM entities WHERE id = ?`, id)
	var e Entity
	var isAgent int
	var createdAtMS, updatedAtMS int64
	if err := row.Scan(&e.ID, &e.Source, &e.ExternalID, &e.DisplayName, &isAgent, &createdAtMS, &updatedAtMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	e.IsAgent = isAgent != 0
	e.CreatedAt = time.UnixMilli(createdAtMS)
	e.UpdatedAt = time.UnixMilli(updatedAtMS)
	return &e, nil
}

func (s *SQLiteStore) EnsureEntity(ctx context.Context, entity *Entity) error {
	now := time.Now().UnixMilli()
	isAgent := 0
	if entity.IsAgent {
		isAgent = 1
	}
	// First sighting inserts; later sightings only refresh a display name
	// that arrived empty the first time.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, source, external_id, display_name, is_agent, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			display_name = CASE WHEN entities.display_name = '' AND excluded.display_name != '' THEN excluded.display_name ELSE entities.display_name END,
			updated_at_ms = excluded.updated_at_ms`,
		entity.ID, entity.Source, entity.ExternalID, entity.DisplayName, isAgent, now, now)
	if err != nil {
		return fmt.Errorf("ensure entity %s: %w", entity.ID, err)
	}
	return nil
}

func (s *SQLiteStore) EnsureConnection(ctx context.Context, userID, roomID, displayName, source string) error {
	if err := s.EnsureEntity(ctx, &Entity{ID: userID, Source: source, DisplayName: displayName}); err != nil {
		return err
	}
	if err := s.EnsureRoom(ctx, &Room{ID: roomID, Source: source}); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO connections (entity_id, room_id, source, created_at_ms) VALUES (?, ?, ?, ?)`,
		userID, roomID, source, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ensure connection %s/%s: %w", userID, roomID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var contentJSON, embeddingJSON string
	var createdAtMS int64
	if err := row.Scan(&m.ID, &m.AgentID, &m.SenderID, &m.RoomID, &contentJSON, &embeddingJSON, &createdAtMS); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contentJSON), &m.Content); err != nil {
		return nil, fmt.Errorf("unmarshal memory content: %w", err)
	}
	if embeddingJSON != "" {
		if err := json.Unmarshal([]byte(embeddingJSON), &m.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal memory embedding: %w", err)
		}
	}
	m.CreatedAt = time.UnixMilli(createdAtMS)
	return &m, nil
}
