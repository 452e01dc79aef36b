package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aplatt/steamrail/backend/internal/config"
	"github.com/aplatt/steamrail/backend/internal/model/session"
)

// ErrExchangeFailed is returned when the OAuth provider rejects the code or
// the token. Codes are single-use, so the exchange is never retried.
var ErrExchangeFailed = errors.New("discord exchange failed")

// Bridge performs the Discord OAuth code -> token -> profile exchange.
type Bridge struct {
	cfg    config.DiscordConfig
	client *http.Client
	log    zerolog.Logger
}

// NewBridge creates the auth bridge.
func NewBridge(cfg config.DiscordConfig, log zerolog.Logger) *Bridge {
	return &Bridge{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("component", "auth").Logger(),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type profileResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

// Exchange trades an authorization code for the linked Discord identity via
// two chained calls: the token endpoint, then the profile endpoint with the
// bearer token. Failure at either step is an authentication failure.
func (b *Bridge) Exchange(ctx context.Context, code string) (session.ExternalIdentity, error) {
	if code == "" {
		return session.ExternalIdentity{}, fmt.Errorf("%w: empty authorization code", ErrExchangeFailed)
	}

	form := url.Values{}
	form.Set("client_id", b.cfg.ClientID)
	form.Set("client_secret", b.cfg.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", b.cfg.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.APIBase+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return session.ExternalIdentity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return session.ExternalIdentity{}, fmt.Errorf("%w: token request: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b.log.Warn().Int("status", resp.StatusCode).Msg("token endpoint rejected code")
		return session.ExternalIdentity{}, fmt.Errorf("%w: token endpoint status %d", ErrExchangeFailed, resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&token); err != nil {
		return session.ExternalIdentity{}, fmt.Errorf("%w: decode token response: %v", ErrExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return session.ExternalIdentity{}, fmt.Errorf("%w: empty access token", ErrExchangeFailed)
	}

	return b.Profile(ctx, token.AccessToken)
}

// Profile fetches the Discord identity for an access token. Also used by the
// websocket discord_auth notification, where the client already holds a token.
func (b *Bridge) Profile(ctx context.Context, accessToken string) (session.ExternalIdentity, error) {
	if accessToken == "" {
		return session.ExternalIdentity{}, fmt.Errorf("%w: empty access token", ErrExchangeFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.APIBase+"/users/@me", nil)
	if err != nil {
		return session.ExternalIdentity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := b.client.Do(req)
	if err != nil {
		return session.ExternalIdentity{}, fmt.Errorf("%w: profile request: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b.log.Warn().Int("status", resp.StatusCode).Msg("profile endpoint rejected token")
		return session.ExternalIdentity{}, fmt.Errorf("%w: profile endpoint status %d", ErrExchangeFailed, resp.StatusCode)
	}

	var profile profileResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&profile); err != nil {
		return session.ExternalIdentity{}, fmt.Errorf("%w: decode profile response: %v", ErrExchangeFailed, err)
	}
	if profile.ID == "" {
		return session.ExternalIdentity{}, fmt.Errorf("%w: profile missing id", ErrExchangeFailed)
	}

	name := profile.GlobalName
	if name == "" {
		name = profile.Username
	}

	return session.ExternalIdentity{ID: profile.ID, DisplayName: name}, nil
}
