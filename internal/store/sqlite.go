package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aplatt/steamrail/backend/internal/model/chat"
)

// SQLiteStore handles SQLite database operations. Used when no DATABASE_URL
// is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store at dbPath and initializes the
// schema. If dbPath is empty, defaults to "./data/steamrail.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/steamrail.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	// _txlock=immediate takes the write lock at BEGIN so the counter's
	// read-modify-write transaction cannot deadlock upgrading a read lock.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS key_value_pairs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_log (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		username TEXT NOT NULL,
		message TEXT NOT NULL,
		discord_id TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_chat_log_created_at ON chat_log(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureCounter seeds the counter row at "0" if it does not exist.
func (s *SQLiteStore) EnsureCounter(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO key_value_pairs (key, value) VALUES (?, '0')
	`, key)
	return err
}

// Counter returns the current counter value, 0 when the key is absent.
func (s *SQLiteStore) Counter(ctx context.Context, key string) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM key_value_pairs WHERE key = ?
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// IncrementCounter bumps the counter inside a transaction; SQLite serializes
// writers, so the read-modify-write cannot interleave.
func (s *SQLiteStore) IncrementCounter(ctx context.Context, key string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var value string
	err = tx.QueryRowContext(ctx, `
		SELECT value FROM key_value_pairs WHERE key = ?
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrCounterNotFound
		}
		return 0, err
	}

	current, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		current = 0
	}
	next := current + 1

	if _, err := tx.ExecContext(ctx, `
		UPDATE key_value_pairs SET value = ? WHERE key = ?
	`, strconv.FormatInt(next, 10), key); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// AppendChat inserts a chat log row.
func (s *SQLiteStore) AppendChat(ctx context.Context, rec chat.Record) error {
	var discordID *string
	if rec.DiscordID != "" {
		discordID = &rec.DiscordID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_log (id, created_at, username, message, discord_id, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.CreatedAt.UTC(), rec.Username, rec.Message, discordID, rec.Deleted)
	return err
}

// RecentChat returns the last limit non-deleted messages, oldest first.
func (s *SQLiteStore) RecentChat(ctx context.Context, limit int) ([]chat.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, username, message, COALESCE(discord_id, ''), is_deleted
		FROM chat_log
		WHERE is_deleted = 0
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []chat.Record
	for rows.Next() {
		var rec chat.Record
		var createdAt time.Time
		if err := rows.Scan(&rec.ID, &createdAt, &rec.Username, &rec.Message, &rec.DiscordID, &rec.Deleted); err != nil {
			return nil, err
		}
		rec.CreatedAt = createdAt
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverse(records)
	return records, nil
}
