package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultInstructions is the system prompt sent with every session
// configuration unless overridden through the environment.
const DefaultInstructions = `Act as a realtime audio output real estate agent for Australian properties. Speak in an emotive, friendly tone. Keep responses short and conversational.

IMPORTANT: When users ask about properties, USE the search_properties function to find real listings. When they want details, use get_property_details.

Guidelines:
- Always ask a short follow-up after each answer.
- When presenting properties, briefly mention key details then ask what they'd like to know more.
- Keep responses to 5-20 words unless asked for more.
- Never leave the user with a dead end.`

type Config struct {
	Addr string

	// CORS / websocket origin allowlist. Empty => any origin is accepted.
	AllowedOrigins map[string]struct{}

	// Upstream realtime session.
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIVoice      string
	Instructions     string
	HandshakeTimeout time.Duration

	// Property lookup service. The key is optional: when unset the gateway
	// starts anyway and the lookup tools answer with an error payload.
	RapidAPIKey   string
	RapidAPIHost  string
	LookupTimeout time.Duration

	// Live session limits.
	MaxClientFrameBytes int64
	MaxSessionDuration  time.Duration

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOICE_GATEWAY_ADDR", ":8000"),
		AllowedOrigins:      make(map[string]struct{}),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("VOICE_GATEWAY_OPENAI_API_KEY")),
		OpenAIBaseURL:       envOr("VOICE_GATEWAY_OPENAI_BASE_URL", "wss://api.openai.com/v1/realtime"),
		OpenAIModel:         envOr("VOICE_GATEWAY_OPENAI_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		OpenAIVoice:         envOr("VOICE_GATEWAY_OPENAI_VOICE", "alloy"),
		Instructions:        envOr("VOICE_GATEWAY_INSTRUCTIONS", DefaultInstructions),
		HandshakeTimeout:    envDurationOr("VOICE_GATEWAY_HANDSHAKE_TIMEOUT", 10*time.Second),
		RapidAPIKey:         strings.TrimSpace(os.Getenv("VOICE_GATEWAY_RAPIDAPI_KEY")),
		RapidAPIHost:        envOr("VOICE_GATEWAY_RAPIDAPI_HOST", "realty-in-au.p.rapidapi.com"),
		LookupTimeout:       envDurationOr("VOICE_GATEWAY_LOOKUP_TIMEOUT", 15*time.Second),
		MaxClientFrameBytes: envInt64Or("VOICE_GATEWAY_MAX_CLIENT_FRAME_BYTES", 1<<20), // 1 MiB
		MaxSessionDuration:  envDurationOr("VOICE_GATEWAY_MAX_SESSION_DURATION", 30*time.Minute),
		ReadHeaderTimeout:   envDurationOr("VOICE_GATEWAY_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VOICE_GATEWAY_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("VOICE_GATEWAY_CORS_ORIGINS")) {
		cfg.AllowedOrigins[origin] = struct{}{}
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_OPENAI_API_KEY must be set")
	}
	if !strings.HasPrefix(cfg.OpenAIBaseURL, "ws://") && !strings.HasPrefix(cfg.OpenAIBaseURL, "wss://") {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_OPENAI_BASE_URL must be a ws:// or wss:// URL")
	}
	if strings.TrimSpace(cfg.OpenAIModel) == "" {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_OPENAI_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.OpenAIVoice) == "" {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_OPENAI_VOICE must not be empty")
	}
	if strings.TrimSpace(cfg.RapidAPIHost) == "" {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_RAPIDAPI_HOST must not be empty")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LookupTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_LOOKUP_TIMEOUT must be > 0")
	}
	if cfg.MaxClientFrameBytes <= 0 {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_MAX_CLIENT_FRAME_BYTES must be > 0")
	}
	if cfg.MaxSessionDuration < 0 {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_MAX_SESSION_DURATION must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICE_GATEWAY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

// LookupEnabled reports whether the property lookup service is configured.
func (c Config) LookupEnabled() bool {
	return c.RapidAPIKey != ""
}

// OriginAllowed reports whether origin may open a voice session. An empty
// allowlist admits everything.
func (c Config) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	_, ok := c.AllowedOrigins[origin]
	return ok
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
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
