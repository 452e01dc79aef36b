package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aplatt/steamrail/backend/internal/config"
	"github.com/aplatt/steamrail/backend/internal/metrics"
	"github.com/aplatt/steamrail/backend/internal/service/auth"
	"github.com/aplatt/steamrail/backend/internal/service/chat"
	"github.com/aplatt/steamrail/backend/internal/service/session"
)

// Hub owns the connection registry and runs the single event loop that all
// socket events and timer ticks funnel through. Registry state is only ever
// touched from that loop, so it needs no locking; each handler runs to
// completion before the next event is taken.
type Hub struct {
	cfg      config.RelayConfig
	sessions *session.Store
	relay    *chat.Relay
	bridge   *auth.Bridge
	log      zerolog.Logger

	register   chan *client
	unregister chan *client
	inbound    chan frame

	clients map[*client]struct{}
	now     func() time.Time
}

// NewHub creates the hub. bridge may be nil when Discord linking is not
// configured; discord_auth frames are then ignored.
func NewHub(cfg config.RelayConfig, sessions *session.Store, relay *chat.Relay, bridge *auth.Bridge, log zerolog.Logger) *Hub {
	return &Hub{
		cfg:        cfg,
		sessions:   sessions,
		relay:      relay,
		bridge:     bridge,
		log:        log.With().Str("component", "relay").Logger(),
		register:   make(chan *client),
		unregister: make(chan *client),
		inbound:    make(chan frame, 64),
		clients:    make(map[*client]struct{}),
		now:        time.Now,
	}
}

// Attach takes ownership of an upgraded socket: registers it with the loop
// and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn) {
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan Envelope, sendQueueSize),
	}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

// Run drives the event loop until ctx is cancelled. The heartbeat ticker both
// probes open connections and sweeps out the ones that have gone quiet past
// the timeout; the same tick expires idle sessions with no live connection.
func (h *Hub) Run(ctx context.Context) {
	probe := time.NewTicker(h.cfg.HeartbeatInterval)
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			metrics.ConnectionsActive.Set(0)
			return

		case c := <-h.register:
			sess := h.sessions.Create()
			c.token = sess.Token
			c.lastSeen = h.now()
			h.clients[c] = struct{}{}
			metrics.ConnectionsActive.Set(float64(len(h.clients)))
			h.log.Info().Int("clients", len(h.clients)).Msg("connection opened")
			h.broadcastCount()

		case c := <-h.unregister:
			h.drop(c)

		case f := <-h.inbound:
			if _, ok := h.clients[f.c]; !ok {
				continue
			}
			// Any inbound frame counts as a liveness signal; that leniency
			// is the contract, not an accident.
			f.c.lastSeen = h.now()
			h.sessions.Touch(f.c.token)
			h.dispatch(f.c, f.env)

		case <-probe.C:
			h.sweep()
		}
	}
}

// dispatch routes one decoded envelope to exactly one handler.
func (h *Hub) dispatch(c *client, env Envelope) {
	switch env.Type {
	case TypePublicMessage:
		h.handlePublicMessage(c, env.Data)
	case TypePing:
		// Echo the payload verbatim so the client can measure RTT.
		c.enqueue(Envelope{Type: TypePong, Data: env.Data})
	case TypeHeartbeat:
		// Liveness already refreshed above; nothing else to do.
	case TypeSessionAuth:
		h.handleSessionAuth(c, env.Data)
	case TypeDiscordAuth:
		h.handleDiscordAuth(c, env.Data)
	default:
		// Unknown types are silently ignored to tolerate version skew.
		h.log.Debug().Str("type", env.Type).Msg("ignoring unknown message type")
	}
}

func (h *Hub) handlePublicMessage(c *client, raw json.RawMessage) {
	var p PublicMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	ev, ok := h.relay.Submit(p.Username, p.Message, c.token)
	if !ok {
		return
	}
	h.broadcast(envelope(TypePublicMessage, ev))
}

// handleSessionAuth rotates the presented token and rebinds the connection in
// one synchronous step: delete old, insert new, rebind, reply. The client
// must persist the pushed token; a stale token on a later reconnect simply
// degrades to a fresh anonymous session.
func (h *Hub) handleSessionAuth(c *client, raw json.RawMessage) {
	var p SessionAuthPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	rotated := h.sessions.Rotate(p.SessionToken)
	prev := c.token
	c.token = rotated.Token
	if prev != "" && prev != p.SessionToken {
		// The anonymous session minted at socket open is now orphaned.
		h.sessions.Discard(prev)
	}

	metrics.SessionsRotated.Inc()
	c.enqueue(envelope(TypeSessionAuth, SessionAuthPayload{SessionToken: rotated.Token}))
}

// handleDiscordAuth verifies the client-supplied access token off-loop and
// links the resulting identity to the connection's session. The profile call
// must not block the event loop.
func (h *Hub) handleDiscordAuth(c *client, raw json.RawMessage) {
	if h.bridge == nil {
		return
	}

	var p DiscordAuthPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	accessToken := p.Token()
	if accessToken == "" {
		return
	}

	token := c.token
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		identity, err := h.bridge.Profile(ctx, accessToken)
		if err != nil {
			metrics.AuthFailures.Inc()
			h.log.Warn().Err(err).Msg("discord link rejected")
			return
		}
		if !h.sessions.LinkIdentity(token, identity) {
			// Token rotated between dispatch and profile fetch; the client
			// will resend after its next session_auth round-trip.
			h.log.Debug().Msg("discord link raced a rotation")
		}
	}()
}

// sweep probes every open connection and force-closes the ones with no
// inbound traffic for longer than the timeout, then expires idle sessions.
func (h *Hub) sweep() {
	now := h.now()
	heartbeat := Envelope{Type: TypeHeartbeat}

	closed := false
	for c := range h.clients {
		if now.Sub(c.lastSeen) > h.cfg.ClientTimeout {
			metrics.ClientTimeouts.Inc()
			h.log.Info().Msg("closing timed out connection")
			h.remove(c)
			closed = true
			continue
		}
		c.enqueue(heartbeat)
	}
	if closed {
		h.broadcastCount()
	}

	active := make(map[string]bool, len(h.clients))
	for c := range h.clients {
		active[c.token] = true
	}
	if expired := h.sessions.ExpireIdle(h.cfg.SessionTTL, active); expired > 0 {
		metrics.SessionsExpired.Add(float64(expired))
		h.log.Info().Int("expired", expired).Msg("expired idle sessions")
	}
}

// drop handles a transport-initiated disconnect. The session itself survives
// for the TTL window so a quick reconnect with the same token can resume.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.remove(c)
	h.log.Info().Int("clients", len(h.clients)).Msg("connection closed")
	h.broadcastCount()
}

func (h *Hub) remove(c *client) {
	delete(h.clients, c)
	h.sessions.Touch(c.token)
	close(c.send)
	metrics.ConnectionsActive.Set(float64(len(h.clients)))
}

func (h *Hub) broadcast(env Envelope) {
	for c := range h.clients {
		if !c.enqueue(env) {
			h.log.Warn().Msg("send queue full, dropping frame")
		}
	}
}

func (h *Hub) broadcastCount() {
	h.broadcast(envelope(TypePlayerCount, PlayerCountPayload{NewCount: len(h.clients)}))
}
