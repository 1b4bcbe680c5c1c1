package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	for _, backend := range []string{"zap", "zerolog"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			l := NewLogger(&LoggerConfig{
				FilePath: dir,
				Encoding: "json",
				Level:    "info",
				Logger:   backend,
			})

			l.Info(Socket, Connect, "connected", map[ExtraKey]any{Endpoint: "ws://localhost"})
			l.Debug(Socket, Connect, "filtered out", nil)

			data, err := os.ReadFile(filepath.Join(dir, "chat.log"))
			require.NoError(t, err)
			assert.Contains(t, string(data), "connected")
			assert.Contains(t, string(data), "ws://localhost")
			assert.NotContains(t, string(data), "filtered out")
		})
	}
}

func TestNewLoggerUnsupported(t *testing.T) {
	assert.Panics(t, func() {
		NewLogger(&LoggerConfig{Logger: "logrus"})
	})
}

func TestPrepareLogInfoDoesNotMutateExtra(t *testing.T) {
	extra := map[ExtraKey]any{PeerID: 7}
	params := prepareLogInfo(Store, Dedup, extra)

	assert.Len(t, extra, 1)
	assert.Len(t, params, 6)
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Init()
	l.Error(General, Startup, "ignored", nil)
}
