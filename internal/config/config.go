package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all service configuration.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Relay   RelayConfig
	Discord DiscordConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Store:   loadStoreConfig(),
		Relay:   relay,
		Discord: loadDiscordConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr        string
	Env         string
	CORSOrigins []string
}

// IsDevelopment reports whether the service runs in development mode.
func (c ServerConfig) IsDevelopment() bool {
	return c.Env == "development"
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	addr := port
	if !strings.Contains(port, ":") {
		if strings.Contains(port, " ") {
			return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
		}
		// Allow passing either ":3000"/"127.0.0.1:3000" or a bare port.
		addr = ":" + port
	}

	var origins []string
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		for _, entry := range strings.Split(raw, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				origins = append(origins, entry)
			}
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return ServerConfig{
		Addr:        addr,
		Env:         getEnvOrDefault("ENV", "development"),
		CORSOrigins: origins,
	}, nil
}

// StoreConfig selects the persistence backend: postgres when DATABASE_URL is
// set, a local SQLite file otherwise.
type StoreConfig struct {
	DatabaseURL string
	SQLitePath  string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "./data/steamrail.db"),
	}
}

// RelayConfig holds websocket liveness tuning.
type RelayConfig struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	SessionTTL        time.Duration
}

func loadRelayConfig() (RelayConfig, error) {
	interval, err := parseSecondsEnv("HEARTBEAT_INTERVAL", 3*time.Second)
	if err != nil {
		return RelayConfig{}, err
	}

	timeout, err := parseSecondsEnv("CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return RelayConfig{}, err
	}

	ttl, err := parseSecondsEnv("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return RelayConfig{}, err
	}

	if timeout <= interval {
		return RelayConfig{}, fmt.Errorf("CLIENT_TIMEOUT (%s) must exceed HEARTBEAT_INTERVAL (%s)", timeout, interval)
	}

	return RelayConfig{
		HeartbeatInterval: interval,
		ClientTimeout:     timeout,
		SessionTTL:        ttl,
	}, nil
}

// DiscordConfig describes the OAuth application used for identity linking.
type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIBase      string
}

// Enabled reports whether the required OAuth credentials are present.
func (c DiscordConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func loadDiscordConfig() DiscordConfig {
	return DiscordConfig{
		ClientID:     strings.TrimSpace(os.Getenv("DISCORD_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("DISCORD_CLIENT_SECRET")),
		RedirectURI:  strings.TrimSpace(os.Getenv("DISCORD_REDIRECT_URI")),
		APIBase:      getEnvOrDefault("DISCORD_API_BASE", "https://discord.com/api/v10"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: want a positive integer of seconds", key, raw)
	}
	return time.Duration(seconds) * time.Second, nil
}
