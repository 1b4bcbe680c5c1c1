package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hilthontt/quizchat/internal/infrastructure/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	state        ws.State
	reconnecting bool
}

func (f fakeConn) State() ws.State          { return f.state }
func (f fakeConn) ReconnectScheduled() bool { return f.reconnecting }

type fakeErrors struct{ err error }

func (f fakeErrors) LastError() error { return f.err }

func decode(t *testing.T, rec *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGetHealthAlwaysOK(t *testing.T) {
	h := NewHandler(fakeConn{state: ws.StateConnecting, reconnecting: true}, fakeErrors{err: errors.New("boom")})
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h.startedAt = start
	h.now = func() time.Time { return start.Add(90*time.Second + 300*time.Millisecond) }

	rec := httptest.NewRecorder()
	h.GetHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1m30s", resp.Uptime)
	assert.Equal(t, "2024-01-01T12:01:30Z", resp.Timestamp)
	assert.Equal(t, "connecting", resp.Connection)
	assert.True(t, resp.Reconnecting)
	assert.Equal(t, "boom", resp.LastError)
}

func TestGetReadyFollowsSocketState(t *testing.T) {
	tests := []struct {
		name   string
		state  ws.State
		status int
	}{
		{"open", ws.StateOpen, http.StatusOK},
		{"connecting", ws.StateConnecting, http.StatusServiceUnavailable},
		{"disconnected", ws.StateDisconnected, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(fakeConn{state: tt.state}, nil)
			rec := httptest.NewRecorder()
			h.GetReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.state.String(), decode(t, rec).Connection)
		})
	}
}
