package chat

import "time"

// Record is a persisted chat log entry. Append-only; rows are never mutated
// except for the soft-delete flag, which moderation tooling may set out-of-band.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"timestamp"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	DiscordID string    `json:"-"`
	Deleted   bool      `json:"is_deleted"`
}
