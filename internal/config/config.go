package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the narration gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service (e.g. https://xxx.ngrok-free.dev when
	// behind a tunnel). Used for logging the WebSocket endpoint; clients
	// connect to wss://<this-host>/streams/narrate.
	// Optional; if unset, logs ws://localhost:PORT/streams/narrate.
	NarrationGatewayURL string `envconfig:"NARRATION_GATEWAY_URL" default:""`

	// Live audio backend configuration
	BackendURL    string `envconfig:"BACKEND_URL" default:"wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"`
	BackendAPIKey string `envconfig:"BACKEND_API_KEY" required:"true"`
	BackendModel  string `envconfig:"BACKEND_MODEL" default:"models/gemini-2.0-flash-live-001"`
	BackendVoice  string `envconfig:"BACKEND_VOICE" default:"Charon"`

	// Session timeouts
	ConnectTimeout   int `envconfig:"CONNECT_TIMEOUT" default:"10"`   // seconds to establish the backend session
	HandshakeTimeout int `envconfig:"HANDSHAKE_TIMEOUT" default:"10"` // seconds to wait for the setup acknowledgement

	// Playback scheduling configuration
	FallbackSampleRate int `envconfig:"FALLBACK_SAMPLE_RATE" default:"24000"` // Sample rate assumed when a fragment omits one
	PrimingOffsetMs    int `envconfig:"PRIMING_OFFSET_MS" default:"80"`       // Forward shift of the first fragment to absorb jitter
	SafetyMarginMs     int `envconfig:"SAFETY_MARGIN_MS" default:"10"`        // Minimum lead time when scheduling behind the clock
	IdleGraceMs        int `envconfig:"IDLE_GRACE_MS" default:"200"`          // Quiet time after the last fragment before an utterance may finish
	IdlePollMs         int `envconfig:"IDLE_POLL_MS" default:"150"`           // Re-check interval while waiting for the stream to quiesce

	// Output pacing configuration
	OutputSampleRate int     `envconfig:"OUTPUT_SAMPLE_RATE" default:"24000"` // Sample rate of the paced output stream
	PacerTickMs      int     `envconfig:"PACER_TICK_MS" default:"20"`         // Pacing interval for outgoing audio
	AudioBufferSize  int     `envconfig:"AUDIO_BUFFER_SIZE" default:"16384"`  // Ring buffer size in bytes for outgoing audio
	OutputGain       float64 `envconfig:"OUTPUT_GAIN" default:"1.0"`          // Linear gain applied by the output chain
	CaptureDir       string  `envconfig:"CAPTURE_DIR" default:""`             // When set, narrated audio is also written as WAV files here

	// Resilience configuration (caller-side only; the engine never retries)
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Validate required fields
	if cfg.BackendAPIKey == "" {
		return nil, fmt.Errorf("BACKEND_API_KEY is required")
	}
	if cfg.FallbackSampleRate <= 0 {
		return nil, fmt.Errorf("FALLBACK_SAMPLE_RATE must be positive")
	}
	if cfg.OutputSampleRate <= 0 {
		return nil, fmt.Errorf("OUTPUT_SAMPLE_RATE must be positive")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
