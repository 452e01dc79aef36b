package relay

import "encoding/json"

// Wire message types. The set is closed: the dispatcher matches exhaustively
// and ignores anything else, which is the deliberate tolerance for
// forward/backward protocol skew.
const (
	TypePublicMessage = "public_message"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeHeartbeat     = "heartbeat"
	TypePlayerCount   = "update_player_count"
	TypeSessionAuth   = "session_auth"
	TypeDiscordAuth   = "discord_auth"
)

// Envelope is the bidirectional wire frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PublicMessagePayload is the inbound chat payload before sanitization.
type PublicMessagePayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// SessionAuthPayload carries the token in both directions: the client
// presents its stored token, the server replies with the rotated one, and the
// client must overwrite its stored copy.
type SessionAuthPayload struct {
	SessionToken string `json:"session_token"`
}

// DiscordAuthPayload notifies the server of an external-identity linkage.
// Older clients send discord_token, newer ones access_token.
type DiscordAuthPayload struct {
	AccessToken  string `json:"access_token"`
	DiscordToken string `json:"discord_token"`
}

// Token returns whichever token field the client populated.
func (p DiscordAuthPayload) Token() string {
	if p.AccessToken != "" {
		return p.AccessToken
	}
	return p.DiscordToken
}

// PlayerCountPayload is the presence broadcast.
type PlayerCountPayload struct {
	NewCount int `json:"newCount"`
}

// envelope marshals a typed payload into a wire frame. Payloads are our own
// types, so a marshal failure is a programming error.
func envelope(typ string, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic("relay: marshal outbound payload: " + err.Error())
	}
	return Envelope{Type: typ, Data: raw}
}
