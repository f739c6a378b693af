package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all Guardian coordinator settings, loaded from GUARDIAN_* env
// vars. Everything is validated up front so a misconfigured process fails at
// startup, not mid-call.
type Config struct {
	Addr string

	// DatabaseURL is the Postgres DSN for the session store.
	DatabaseURL string
	// RedisURL backs the claim registry, command bus, and takeover limiter.
	RedisURL string

	// IngestSecret is the shared bearer for service-to-service routes
	// (/guardian/events, /worker/claim-room).
	IngestSecret string

	// API keys for the dashboard surface, keyed by bearer value. The mapped
	// name becomes the operator identity on takeovers and room tokens.
	AdminAPIKeys map[string]string
	AgentAPIKeys map[string]string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Claim registry
	ClaimTTL time.Duration

	// Takeover rate limit (per operator, rolling window).
	TakeoverLimit  int
	TakeoverWindow time.Duration

	// Live status stream
	StreamPollInterval  time.Duration
	SSEPingInterval     time.Duration
	StreamMaxDuration   time.Duration
	WSWriteTimeout      time.Duration
	StreamBufferEvents  int
	MaxStreamsPerCaller int

	// HTTP-level limits (in-memory, per principal).
	LimitRPS   float64
	LimitBurst int

	// Media-room service credentials. Optional: token issuance fails with a
	// config error when unset, everything else keeps working.
	MediaRoomHostURL  string
	MediaRoomWSURL    string
	MediaRoomAPIKey   string
	MediaRoomSecret   string
	MediaRoomTokenTTL time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

// LoadFromEnv builds a Config from the environment.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("GUARDIAN_ADDR", ":8080"),
		DatabaseURL:         strings.TrimSpace(os.Getenv("GUARDIAN_DATABASE_URL")),
		RedisURL:            envOr("GUARDIAN_REDIS_URL", "redis://localhost:6379/0"),
		IngestSecret:        strings.TrimSpace(os.Getenv("GUARDIAN_INGEST_SECRET")),
		AdminAPIKeys:        make(map[string]string),
		AgentAPIKeys:        make(map[string]string),
		CORSAllowedOrigins:  make(map[string]struct{}),
		ClaimTTL:            envDurationOr("GUARDIAN_CLAIM_TTL", time.Hour),
		TakeoverLimit:       envIntOr("GUARDIAN_TAKEOVER_LIMIT", 10),
		TakeoverWindow:      envDurationOr("GUARDIAN_TAKEOVER_WINDOW", time.Minute),
		StreamPollInterval:  envDurationOr("GUARDIAN_STREAM_POLL_INTERVAL", 5*time.Second),
		SSEPingInterval:     envDurationOr("GUARDIAN_SSE_PING_INTERVAL", 15*time.Second),
		StreamMaxDuration:   envDurationOr("GUARDIAN_STREAM_MAX_DURATION", 2*time.Hour),
		WSWriteTimeout:      envDurationOr("GUARDIAN_WS_WRITE_TIMEOUT", 5*time.Second),
		StreamBufferEvents:  envIntOr("GUARDIAN_STREAM_BUFFER_EVENTS", 64),
		MaxStreamsPerCaller: envIntOr("GUARDIAN_MAX_STREAMS_PER_CALLER", 4),
		LimitRPS:            envFloat64Or("GUARDIAN_RATE_LIMIT_RPS", 10.0),
		LimitBurst:          envIntOr("GUARDIAN_RATE_LIMIT_BURST", 20),
		MediaRoomHostURL:    strings.TrimSpace(os.Getenv("GUARDIAN_MEDIAROOM_HOST_URL")),
		MediaRoomWSURL:      strings.TrimSpace(os.Getenv("GUARDIAN_MEDIAROOM_WS_URL")),
		MediaRoomAPIKey:     strings.TrimSpace(os.Getenv("GUARDIAN_MEDIAROOM_API_KEY")),
		MediaRoomSecret:     strings.TrimSpace(os.Getenv("GUARDIAN_MEDIAROOM_API_SECRET")),
		MediaRoomTokenTTL:   envDurationOr("GUARDIAN_MEDIAROOM_TOKEN_TTL", time.Hour),
		ReadHeaderTimeout:   envDurationOr("GUARDIAN_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("GUARDIAN_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	var err error
	cfg.AdminAPIKeys, err = parseAPIKeys(os.Getenv("GUARDIAN_ADMIN_API_KEYS"))
	if err != nil {
		return Config{}, fmt.Errorf("GUARDIAN_ADMIN_API_KEYS: %w", err)
	}
	cfg.AgentAPIKeys, err = parseAPIKeys(os.Getenv("GUARDIAN_AGENT_API_KEYS"))
	if err != nil {
		return Config{}, fmt.Errorf("GUARDIAN_AGENT_API_KEYS: %w", err)
	}

	for _, origin := range splitCSV(os.Getenv("GUARDIAN_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("GUARDIAN_DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("GUARDIAN_REDIS_URL must not be empty")
	}
	if cfg.IngestSecret == "" {
		return Config{}, fmt.Errorf("GUARDIAN_INGEST_SECRET must be set")
	}
	if cfg.ClaimTTL <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_CLAIM_TTL must be > 0")
	}
	if cfg.TakeoverLimit <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_TAKEOVER_LIMIT must be > 0")
	}
	if cfg.TakeoverWindow <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_TAKEOVER_WINDOW must be > 0")
	}
	if cfg.StreamPollInterval <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_STREAM_POLL_INTERVAL must be > 0")
	}
	if cfg.SSEPingInterval <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_SSE_PING_INTERVAL must be > 0")
	}
	if cfg.StreamMaxDuration <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_STREAM_MAX_DURATION must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.StreamBufferEvents <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_STREAM_BUFFER_EVENTS must be > 0")
	}
	if cfg.MaxStreamsPerCaller <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_MAX_STREAMS_PER_CALLER must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("GUARDIAN_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("GUARDIAN_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.MediaRoomTokenTTL <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_MEDIAROOM_TOKEN_TTL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("GUARDIAN_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if len(cfg.AdminAPIKeys) == 0 && len(cfg.AgentAPIKeys) == 0 {
		return Config{}, fmt.Errorf("at least one of GUARDIAN_ADMIN_API_KEYS or GUARDIAN_AGENT_API_KEYS must be set")
	}

	// MediaRoom credentials are all-or-nothing.
	set := 0
	for _, v := range []string{cfg.MediaRoomHostURL, cfg.MediaRoomWSURL, cfg.MediaRoomAPIKey, cfg.MediaRoomSecret} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 4 {
		return Config{}, fmt.Errorf("GUARDIAN_MEDIAROOM_* must be set together (host url, ws url, api key, api secret)")
	}

	return cfg, nil
}

// MediaRoomConfigured reports whether media-room credentials are present.
func (c Config) MediaRoomConfigured() bool {
	return c.MediaRoomHostURL != "" && c.MediaRoomWSURL != "" && c.MediaRoomAPIKey != "" && c.MediaRoomSecret != ""
}

// parseAPIKeys parses "name:key,name2:key2" into key => name.
func parseAPIKeys(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range splitCSV(raw) {
		name, key, ok := strings.Cut(entry, ":")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("entry %q must be name:key", entry)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(name)
	}
	return out, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
