package configs

import (
	"fmt"
	"time"

	"github.com/hilthontt/quizchat/internal/infrastructure/env"
	"github.com/hilthontt/quizchat/internal/infrastructure/logging"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Chat    ChatConfig           `koanf:"chat"`
	Socket  SocketConfig         `koanf:"socket"`
	Store   StoreConfig          `koanf:"store"`
	Logger  logging.LoggerConfig `koanf:"logger"`
	Tracing TracingConfig        `koanf:"tracing"`
	Debug   DebugConfig          `koanf:"debug"`
	Sentry  SentryConfig         `koanf:"sentry"`
}

type ChatConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	Token   string `koanf:"token"`
	// UserID is derived from the token when zero.
	UserID int64 `koanf:"user_id"`
	// Display fields copied into every sent message. Empty fields fall
	// back to the token's profile claims.
	Username       string        `koanf:"username"`
	FullName       string        `koanf:"full_name"`
	Avatar         string        `koanf:"avatar" validate:"omitempty,url"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// Zero disables client side throttling of REST calls.
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	RequestBurst      int           `koanf:"request_burst" validate:"gte=0"`
	BreakerFailures   uint32        `koanf:"breaker_failures"`
	BreakerCooldown   time.Duration `koanf:"breaker_cooldown"`
	MaxImageDimension int           `koanf:"max_image_dimension" validate:"gte=0"`
}

type SocketConfig struct {
	Path                 string        `koanf:"path" validate:"required,startswith=/"`
	HeartbeatInterval    time.Duration `koanf:"heartbeat_interval"`
	ReconnectBaseDelay   time.Duration `koanf:"reconnect_base_delay"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts" validate:"gte=0"`
	HandshakeTimeout     time.Duration `koanf:"handshake_timeout"`
	WriteTimeout         time.Duration `koanf:"write_timeout"`
}

type StoreConfig struct {
	DedupWindow     time.Duration `koanf:"dedup_window"`
	TypingExpiry    time.Duration `koanf:"typing_expiry"`
	TypingIdle      time.Duration `koanf:"typing_idle"`
	HistoryPageSize int           `koanf:"history_page_size" validate:"gte=1,lte=500"`
	SeenCapacity    int           `koanf:"seen_capacity" validate:"gte=0"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint" validate:"required_if=Enabled true"`
	Environment string `koanf:"environment"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN string `koanf:"dsn" validate:"omitempty,url"`
}

type DebugConfig struct {
	Addr      string          `koanf:"addr" validate:"omitempty,hostname_port"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerTimeFrame int           `koanf:"requests_per_time_frame"`
	TimeFrame            time.Duration `koanf:"time_frame"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load from YAML file if it exists
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Only return error if file was explicitly provided but failed to load
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Apply defaults and environment variable overrides
	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	// Chat defaults
	setDefault(k, "chat.request_timeout", 15*time.Second)
	setDefault(k, "chat.requests_per_second", 10.0)
	setDefault(k, "chat.request_burst", 20)
	setDefault(k, "chat.breaker_failures", 5)
	setDefault(k, "chat.breaker_cooldown", 30*time.Second)
	setDefault(k, "chat.max_image_dimension", 2048)

	// Socket defaults
	setDefault(k, "socket.path", "/ws")
	setDefault(k, "socket.heartbeat_interval", 30*time.Second)
	setDefault(k, "socket.reconnect_base_delay", time.Second)
	setDefault(k, "socket.max_reconnect_attempts", 5)
	setDefault(k, "socket.handshake_timeout", 10*time.Second)
	setDefault(k, "socket.write_timeout", 10*time.Second)

	// Store defaults
	setDefault(k, "store.dedup_window", 5*time.Second)
	setDefault(k, "store.typing_expiry", 3*time.Second)
	setDefault(k, "store.typing_idle", 2*time.Second)
	setDefault(k, "store.history_page_size", 50)
	setDefault(k, "store.seen_capacity", 10000)

	// Logger defaults
	setDefault(k, "logger.file_path", "./logs/")
	setDefault(k, "logger.encoding", "json")
	setDefault(k, "logger.level", "info")
	setDefault(k, "logger.logger", "zap")

	// Tracing defaults
	setDefault(k, "tracing.endpoint", "http://localhost:4318/v1/traces")
	setDefault(k, "tracing.environment", "development")

	// Debug surface defaults
	setDefault(k, "debug.rate_limit.requests_per_time_frame", 120)
	setDefault(k, "debug.rate_limit.time_frame", time.Minute)
}

func applyEnvOverrides(k *koanf.Koanf) {
	// Chat config from env
	if baseURL := env.GetString("CHAT_BASE_URL", ""); baseURL != "" {
		k.Set("chat.base_url", baseURL)
	}
	if token := env.GetString("CHAT_TOKEN", ""); token != "" {
		k.Set("chat.token", token)
	}
	if userID := env.GetInt("CHAT_USER_ID", 0); userID > 0 {
		k.Set("chat.user_id", int64(userID))
	}
	if username := env.GetString("CHAT_USERNAME", ""); username != "" {
		k.Set("chat.username", username)
	}
	if fullName := env.GetString("CHAT_FULL_NAME", ""); fullName != "" {
		k.Set("chat.full_name", fullName)
	}

	// Socket config from env
	if heartbeat := env.GetInt("SOCKET_HEARTBEAT_SECONDS", 0); heartbeat > 0 {
		k.Set("socket.heartbeat_interval", time.Duration(heartbeat)*time.Second)
	}
	if attempts := env.GetInt("SOCKET_MAX_RECONNECT_ATTEMPTS", 0); attempts > 0 {
		k.Set("socket.max_reconnect_attempts", attempts)
	}

	// Logger config from env
	if level := env.GetString("LOGGER_LEVEL", ""); level != "" {
		k.Set("logger.level", level)
	}
	if backend := env.GetString("LOGGER_LOGGER", ""); backend != "" {
		k.Set("logger.logger", backend)
	}
	if filePath := env.GetString("LOGGER_FILE_PATH", ""); filePath != "" {
		k.Set("logger.file_path", filePath)
	}

	// Tracing config from env
	if enabled := env.GetBool("TRACING_ENABLED", false); enabled {
		k.Set("tracing.enabled", true)
	}
	if endpoint := env.GetString("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", ""); endpoint != "" {
		k.Set("tracing.endpoint", endpoint)
	}

	if dsn := env.GetString("SENTRY_DSN", ""); dsn != "" {
		k.Set("sentry.dsn", dsn)
	}

	if addr := env.GetString("DEBUG_ADDR", ""); addr != "" {
		k.Set("debug.addr", addr)
	}
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}
