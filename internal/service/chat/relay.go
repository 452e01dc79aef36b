package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aplatt/steamrail/backend/internal/metrics"
	chatmodel "github.com/aplatt/steamrail/backend/internal/model/chat"
	"github.com/aplatt/steamrail/backend/internal/service/session"
	"github.com/aplatt/steamrail/backend/internal/store"
)

const (
	maxUsernameLen = 20
	maxMessageLen  = 140

	// DefaultLogLimit is the number of messages served to late joiners.
	DefaultLogLimit = 5
	maxLogLimit     = 50

	persistTimeout = 5 * time.Second
)

// Event is the sanitized broadcast payload for a public message.
type Event struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Discord  bool   `json:"discord,omitempty"`
}

// Relay validates, persists and prepares chat messages for fan-out.
type Relay struct {
	sessions *session.Store
	store    store.Store
	log      zerolog.Logger
}

// NewRelay creates the chat relay.
func NewRelay(sessions *session.Store, st store.Store, log zerolog.Logger) *Relay {
	return &Relay{
		sessions: sessions,
		store:    st,
		log:      log.With().Str("component", "chat").Logger(),
	}
}

// Submit sanitizes a raw message, kicks off a best-effort persist, and
// returns the broadcast event. ok is false when the message is empty after
// trimming; validation failures are silent, the sender gets no feedback.
func (r *Relay) Submit(rawUsername, rawMessage, senderToken string) (Event, bool) {
	username := truncate(strings.TrimSpace(rawUsername), maxUsernameLen)
	if username == "" {
		username = "Anonymous"
	}

	message := truncate(strings.TrimSpace(rawMessage), maxMessageLen)
	if message == "" {
		metrics.MessagesDropped.Inc()
		return Event{}, false
	}

	rec := chatmodel.Record{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Username:  username,
		Message:   message,
	}

	ev := Event{Username: username, Message: message}
	if sess, ok := r.sessions.Resolve(senderToken); ok && sess.Linked() {
		ev.Discord = true
		rec.DiscordID = sess.Identity.ID
	}

	// Best-effort durability: a persistence failure is logged and never
	// blocks or fails the broadcast.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.AppendChat(ctx, rec); err != nil {
			metrics.ChatPersistFailures.Inc()
			r.log.Error().Err(err).Str("id", rec.ID).Msg("chat log insert failed")
		}
	}()

	metrics.MessagesBroadcast.Inc()
	return ev, true
}

// RecentLog returns the last limit non-deleted messages, oldest first, for
// initial client sync. A non-positive limit falls back to the default.
func (r *Relay) RecentLog(ctx context.Context, limit int) ([]chatmodel.Record, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	records, err := r.store.RecentChat(ctx, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []chatmodel.Record{}
	}
	return records, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
