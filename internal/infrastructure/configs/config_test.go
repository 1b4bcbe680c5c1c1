package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHAT_BASE_URL", "http://localhost:8080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Chat.BaseURL)
	assert.Equal(t, "/ws", cfg.Socket.Path)
	assert.Equal(t, 30*time.Second, cfg.Socket.HeartbeatInterval)
	assert.Equal(t, time.Second, cfg.Socket.ReconnectBaseDelay)
	assert.Equal(t, 5, cfg.Socket.MaxReconnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.Store.DedupWindow)
	assert.Equal(t, 3*time.Second, cfg.Store.TypingExpiry)
	assert.Equal(t, "zap", cfg.Logger.Logger)
	assert.Equal(t, 120, cfg.Debug.RateLimit.RequestsPerTimeFrame)
	assert.Equal(t, uint32(5), cfg.Chat.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.Chat.BreakerCooldown)
	assert.Equal(t, time.Minute, cfg.Debug.RateLimit.TimeFrame)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
chat:
  base_url: https://quiz.example.com
  token: abc
  user_id: 42
  username: ada
  full_name: Ada Lovelace
  avatar: https://cdn.example.com/ada.png
socket:
  heartbeat_interval: 10s
  max_reconnect_attempts: 3
store:
  typing_expiry: 1s
logger:
  logger: zerolog
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://quiz.example.com", cfg.Chat.BaseURL)
	assert.Equal(t, "abc", cfg.Chat.Token)
	assert.Equal(t, int64(42), cfg.Chat.UserID)
	assert.Equal(t, "ada", cfg.Chat.Username)
	assert.Equal(t, "Ada Lovelace", cfg.Chat.FullName)
	assert.Equal(t, "https://cdn.example.com/ada.png", cfg.Chat.Avatar)
	assert.Equal(t, 10*time.Second, cfg.Socket.HeartbeatInterval)
	assert.Equal(t, 3, cfg.Socket.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Store.TypingExpiry)
	assert.Equal(t, 2*time.Second, cfg.Store.TypingIdle)
	assert.Equal(t, "zerolog", cfg.Logger.Logger)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  base_url: http://a\n"), 0o600))
	t.Setenv("CHAT_BASE_URL", "http://b")
	t.Setenv("SOCKET_MAX_RECONNECT_ATTEMPTS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://b", cfg.Chat.BaseURL)
	assert.Equal(t, 9, cfg.Socket.MaxReconnectAttempts)
}

func TestLoadDisplayFromEnv(t *testing.T) {
	t.Setenv("CHAT_BASE_URL", "http://localhost:8080")
	t.Setenv("CHAT_USERNAME", "grace")
	t.Setenv("CHAT_FULL_NAME", "Grace Hopper")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "grace", cfg.Chat.Username)
	assert.Equal(t, "Grace Hopper", cfg.Chat.FullName)
	assert.Empty(t, cfg.Chat.Avatar)
}

func TestLoadRequiresBaseURL(t *testing.T) {
	t.Setenv("CHAT_BASE_URL", "")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadReportsInvalidKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
chat:
  base_url: not a url
store:
  history_page_size: 900
logger:
  logger: logrus
tracing:
  enabled: true
  endpoint: ""
debug:
  addr: "nope"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CHAT_BASE_URL", "")

	_, err := Load(path)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "chat.base_url failed url")
	assert.Contains(t, msg, "store.history_page_size failed lte=500")
	assert.Contains(t, msg, "logger.logger failed oneof=zap zerolog")
	assert.Contains(t, msg, "debug.addr failed hostname_port")
}
