package tutorstub

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/degreepathco/advisor/pkg/tutor"
)

// HistoryStore persists per-student transcripts for the stub service.
// The real Tutor Service owns conversation persistence; the stub keeps just
// enough of it to honor the history, clear, and stats endpoints.
type HistoryStore interface {
	// Append adds one message to the end of a student's transcript.
	Append(ctx context.Context, studentID string, msg tutor.Message) error

	// List returns a student's transcript in append order. An unknown
	// student yields an empty list, not an error.
	List(ctx context.Context, studentID string) ([]tutor.Message, error)

	// Clear removes a student's transcript. Idempotent.
	Clear(ctx context.Context, studentID string) error

	// Stats returns aggregate conversation counts.
	Stats(ctx context.Context) (tutor.ChatStats, error)

	// Close releases any resources.
	Close() error
}

// MemoryStore is an in-memory HistoryStore. Contents vanish on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]tutor.Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]tutor.Message)}
}

func (s *MemoryStore) Append(_ context.Context, studentID string, msg tutor.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[studentID] = append(s.messages[studentID], msg)
	return nil
}

func (s *MemoryStore) List(_ context.Context, studentID string) ([]tutor.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]tutor.Message(nil), s.messages[studentID]...), nil
}

func (s *MemoryStore) Clear(_ context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, studentID)
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (tutor.ChatStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := tutor.ChatStats{MessagesPerStudent: make(map[string]int)}
	for id, msgs := range s.messages {
		if len(msgs) == 0 {
			continue
		}
		stats.ActiveConversations++
		stats.TotalMessages += len(msgs)
		stats.MessagesPerStudent[id] = len(msgs)
	}
	return stats, nil
}

func (s *MemoryStore) Close() error { return nil }

// SQLiteStore is a HistoryStore backed by a SQLite database file, so stub
// conversations survive restarts during development.
type SQLiteStore struct {
	db *sql.DB
}

const historySchema = `
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	timestamp  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_student ON messages(student_id, id);
`

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, studentID string, msg tutor.Message) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = tutor.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (student_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		studentID, msg.Role, msg.Content, ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, studentID string) ([]tutor.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, timestamp FROM messages WHERE student_id = ? ORDER BY id`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []tutor.Message
	for rows.Next() {
		var msg tutor.Message
		var ts string
		if err := rows.Scan(&msg.Role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if parsed, ok := tutor.ParseTimestamp(ts); ok {
			msg.Timestamp = parsed
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context, studentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE student_id = ?`, studentID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (tutor.ChatStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, COUNT(*) FROM messages GROUP BY student_id`,
	)
	if err != nil {
		return tutor.ChatStats{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := tutor.ChatStats{MessagesPerStudent: make(map[string]int)}
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return tutor.ChatStats{}, fmt.Errorf("scan stats: %w", err)
		}
		stats.ActiveConversations++
		stats.TotalMessages += count
		stats.MessagesPerStudent[id] = count
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
