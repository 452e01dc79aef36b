package store

import (
	"context"
	"errors"

	"github.com/aplatt/steamrail/backend/internal/model/chat"
)

// Keys in the key_value_pairs table.
const (
	KeyVisitCount = "visit_count"
	KeyTimeOnSite = "time_on_site"
)

// ErrCounterNotFound is returned when an increment targets a missing key.
var ErrCounterNotFound = errors.New("counter not found")

// Store defines persistent storage for the visit counters and the chat log.
// PostgresStore, SQLiteStore and MemoryStore all implement this interface.
type Store interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Key-value counters. IncrementCounter is an atomic read-modify-write at
	// the storage layer; concurrent increments must never lose updates.
	EnsureCounter(ctx context.Context, key string) error
	Counter(ctx context.Context, key string) (int64, error)
	IncrementCounter(ctx context.Context, key string) (int64, error)

	// Append-only chat log with soft delete.
	AppendChat(ctx context.Context, rec chat.Record) error
	RecentChat(ctx context.Context, limit int) ([]chat.Record, error)
}
