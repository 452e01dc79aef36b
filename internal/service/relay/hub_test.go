package relay_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aplatt/steamrail/backend/internal/config"
	wshandler "github.com/aplatt/steamrail/backend/internal/handler/ws"
	"github.com/aplatt/steamrail/backend/internal/service/auth"
	chatservice "github.com/aplatt/steamrail/backend/internal/service/chat"
	"github.com/aplatt/steamrail/backend/internal/service/relay"
	"github.com/aplatt/steamrail/backend/internal/service/session"
	"github.com/aplatt/steamrail/backend/internal/store"
)

func startRelay(t *testing.T, cfg config.RelayConfig, bridge *auth.Bridge) (string, *session.Store) {
	t.Helper()

	sessions := session.NewStore()
	chatRelay := chatservice.NewRelay(sessions, store.NewMemoryStore(), zerolog.Nop())
	hub := relay.NewHub(cfg, sessions, chatRelay, bridge, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := chi.NewRouter()
	wshandler.New(hub, zerolog.Nop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", sessions
}

func defaultCfg() config.RelayConfig {
	return config.RelayConfig{
		HeartbeatInterval: 50 * time.Millisecond,
		ClientTimeout:     5 * time.Second,
		SessionTTL:        time.Minute,
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) relay.Envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var env relay.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read failed waiting for %s: %v", wantType, err)
		}
		if env.Type == wantType {
			return env
		}
	}
	t.Fatalf("no %s frame before deadline", wantType)
	return relay.Envelope{}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(relay.Envelope{Type: typ, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func playerCount(t *testing.T, env relay.Envelope) int {
	t.Helper()
	var p relay.PlayerCountPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode player count: %v", err)
	}
	return p.NewCount
}

func TestConnectBroadcastsPresence(t *testing.T) {
	url, _ := startRelay(t, defaultCfg(), nil)

	connA := dial(t, url)
	if got := playerCount(t, readUntil(t, connA, relay.TypePlayerCount)); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}

	connB := dial(t, url)
	if got := playerCount(t, readUntil(t, connB, relay.TypePlayerCount)); got != 2 {
		t.Fatalf("expected count 2 on B, got %d", got)
	}
	if got := playerCount(t, readUntil(t, connA, relay.TypePlayerCount)); got != 2 {
		t.Fatalf("expected count 2 on A, got %d", got)
	}
}

func TestPingEchoesPayloadVerbatim(t *testing.T) {
	url, _ := startRelay(t, defaultCfg(), nil)
	conn := dial(t, url)

	send(t, conn, relay.TypePing, map[string]float64{"t0": 1234567.25})

	env := readUntil(t, conn, relay.TypePong)
	var p struct {
		T0 float64 `json:"t0"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode pong: %v", err)
	}
	if p.T0 != 1234567.25 {
		t.Fatalf("t0 not echoed verbatim: %v", p.T0)
	}
}

func TestSessionAuthAlwaysRotates(t *testing.T) {
	url, sessions := startRelay(t, defaultCfg(), nil)
	conn := dial(t, url)

	send(t, conn, relay.TypeSessionAuth, relay.SessionAuthPayload{SessionToken: "stale-token"})
	env := readUntil(t, conn, relay.TypeSessionAuth)

	var first relay.SessionAuthPayload
	if err := json.Unmarshal(env.Data, &first); err != nil {
		t.Fatalf("decode session_auth: %v", err)
	}
	if first.SessionToken == "" || first.SessionToken == "stale-token" {
		t.Fatalf("expected fresh token, got %q", first.SessionToken)
	}

	// Resuming with the pushed token rotates again and kills the old one.
	send(t, conn, relay.TypeSessionAuth, relay.SessionAuthPayload{SessionToken: first.SessionToken})
	env = readUntil(t, conn, relay.TypeSessionAuth)

	var second relay.SessionAuthPayload
	if err := json.Unmarshal(env.Data, &second); err != nil {
		t.Fatalf("decode session_auth: %v", err)
	}
	if second.SessionToken == first.SessionToken {
		t.Fatal("rotation must mint a new token")
	}

	if _, ok := sessions.Resolve(first.SessionToken); ok {
		t.Fatal("rotated-away token must not resolve")
	}
	if _, ok := sessions.Resolve(second.SessionToken); !ok {
		t.Fatal("current token must resolve")
	}
}

func TestPublicMessageSanitizedOnBroadcast(t *testing.T) {
	url, _ := startRelay(t, defaultCfg(), nil)

	sender := dial(t, url)
	receiver := dial(t, url)
	readUntil(t, receiver, relay.TypePlayerCount)

	send(t, sender, relay.TypePublicMessage, relay.PublicMessagePayload{
		Username: "   ",
		Message:  "  " + strings.Repeat("y", 200),
	})

	env := readUntil(t, receiver, relay.TypePublicMessage)
	var ev chatservice.Event
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if ev.Username != "Anonymous" {
		t.Fatalf("expected Anonymous, got %q", ev.Username)
	}
	if len(ev.Message) != 140 {
		t.Fatalf("expected truncation to 140, got %d", len(ev.Message))
	}
	if ev.Discord {
		t.Fatal("anonymous sender must not carry the discord flag")
	}
}

func TestMalformedAndUnknownFramesKeepConnectionOpen(t *testing.T) {
	url, _ := startRelay(t, defaultCfg(), nil)
	conn := dial(t, url)
	readUntil(t, conn, relay.TypePlayerCount)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	send(t, conn, "future_fancy_type", map[string]string{"v": "2"})

	// The connection must still answer pings.
	send(t, conn, relay.TypePing, map[string]float64{"t0": 1})
	readUntil(t, conn, relay.TypePong)
}

func TestSilentConnectionTimedOut(t *testing.T) {
	cfg := config.RelayConfig{
		HeartbeatInterval: 30 * time.Millisecond,
		ClientTimeout:     120 * time.Millisecond,
		SessionTTL:        time.Minute,
	}
	url, _ := startRelay(t, cfg, nil)

	silent := dial(t, url)
	chatty := dial(t, url)
	readUntil(t, chatty, relay.TypePlayerCount)

	// The chatty client echoes heartbeats to stay alive; the silent one sends
	// nothing at all.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = chatty.WriteJSON(relay.Envelope{Type: relay.TypeHeartbeat})
			}
		}
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		env := readUntil(t, chatty, relay.TypePlayerCount)
		if playerCount(t, env) == 1 {
			// Presence decremented: the silent connection was closed.
			_ = silent.SetReadDeadline(time.Now().Add(time.Second))
			for {
				if _, _, err := silent.ReadMessage(); err != nil {
					return
				}
			}
		}
	}
	t.Fatal("silent connection was never timed out")
}

func TestDiscordAuthLinksSession(t *testing.T) {
	profile := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/@me" || r.Header.Get("Authorization") != "Bearer linked-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"555","username":"engineer","global_name":"Engineer"}`)
	}))
	defer profile.Close()

	bridge := auth.NewBridge(config.DiscordConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		APIBase:      profile.URL,
	}, zerolog.Nop())

	url, _ := startRelay(t, defaultCfg(), bridge)
	conn := dial(t, url)
	readUntil(t, conn, relay.TypePlayerCount)

	send(t, conn, relay.TypeDiscordAuth, relay.DiscordAuthPayload{AccessToken: "linked-token"})

	// Linking happens off-loop; poll until a broadcast carries the flag.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		send(t, conn, relay.TypePublicMessage, relay.PublicMessagePayload{Username: "eng", Message: "all aboard"})
		env := readUntil(t, conn, relay.TypePublicMessage)
		var ev chatservice.Event
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			t.Fatalf("decode broadcast: %v", err)
		}
		if ev.Discord {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("identity was never linked to the session")
}
