package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aplatt/steamrail/backend/internal/model/chat"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool and
// initializes the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS key_value_pairs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_log (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		username TEXT NOT NULL,
		message TEXT NOT NULL,
		discord_id TEXT,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_chat_log_created_at ON chat_log(created_at);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureCounter seeds the counter row at "0" if it does not exist.
func (s *PostgresStore) EnsureCounter(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO key_value_pairs (key, value)
		VALUES ($1, '0')
		ON CONFLICT (key) DO NOTHING
	`, key)
	return err
}

// Counter returns the current counter value, 0 when the key is absent.
func (s *PostgresStore) Counter(ctx context.Context, key string) (int64, error) {
	var value string
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM key_value_pairs WHERE key = $1
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// IncrementCounter bumps the counter in a single atomic UPDATE so concurrent
// requests never lose updates.
func (s *PostgresStore) IncrementCounter(ctx context.Context, key string) (int64, error) {
	var value string
	err := s.pool.QueryRow(ctx, `
		UPDATE key_value_pairs
		SET value = ((COALESCE(value, '0'))::bigint + 1)::text
		WHERE key = $1
		RETURNING value
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrCounterNotFound
		}
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// AppendChat inserts a chat log row.
func (s *PostgresStore) AppendChat(ctx context.Context, rec chat.Record) error {
	var discordID *string
	if rec.DiscordID != "" {
		discordID = &rec.DiscordID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_log (id, created_at, username, message, discord_id, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.CreatedAt, rec.Username, rec.Message, discordID, rec.Deleted)
	return err
}

// RecentChat returns the last limit non-deleted messages, oldest first.
func (s *PostgresStore) RecentChat(ctx context.Context, limit int) ([]chat.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, created_at, username, message, COALESCE(discord_id, ''), is_deleted
		FROM chat_log
		WHERE NOT is_deleted
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []chat.Record
	for rows.Next() {
		var rec chat.Record
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Username, &rec.Message, &rec.DiscordID, &rec.Deleted); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverse(records)
	return records, nil
}

func reverse(records []chat.Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
