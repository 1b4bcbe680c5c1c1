package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apisdk "github.com/hilthontt/quizchat/api-sdk"
	"github.com/hilthontt/quizchat/api-sdk/option"
	"github.com/hilthontt/quizchat/internal/application/chat"
	"github.com/hilthontt/quizchat/internal/chattest"
	"github.com/hilthontt/quizchat/internal/infrastructure/configs"
	"github.com/hilthontt/quizchat/internal/infrastructure/metrics"
	"github.com/hilthontt/quizchat/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/quizchat/internal/infrastructure/ws"
	conversationsHandler "github.com/hilthontt/quizchat/internal/presentation/handler/conversations"
	healthHandler "github.com/hilthontt/quizchat/internal/presentation/handler/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "secret"

type fixture struct {
	srv     *chattest.Server
	manager *ws.Manager
	client  *chat.Client
	handler http.Handler
}

func newFixture(t *testing.T, limiter ratelimiter.Limiter) *fixture {
	t.Helper()

	srv := chattest.NewServer(chattest.Options{Token: token, EchoSends: true})
	t.Cleanup(srv.Close)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	manager := ws.NewManager(ws.Config{
		URL:                srv.WSURL(),
		ReconnectBaseDelay: 10 * time.Millisecond,
		WriteTimeout:       time.Second,
	}, nil, nil, m)
	backend := apisdk.NewClient(
		option.WithBaseURL(srv.URL),
		option.WithBearerToken(token),
		option.WithHTTPClient(srv.Client()),
	)
	client := chat.NewClient(chat.Config{LocalUserID: 1}, manager, backend, nil, m)
	client.Attach(manager)
	t.Cleanup(func() {
		_ = manager.Disconnect()
		client.Close()
	})

	app := NewApplication(
		configs.DebugConfig{Addr: "127.0.0.1:0"},
		healthHandler.NewHandler(manager, client),
		conversationsHandler.NewHandler(client, nil),
		reg,
		nil,
		limiter,
	)

	return &fixture{srv: srv, manager: manager, client: client, handler: app.Mount()}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:5555"
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestReadyFollowsConnection(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/ready", "").Code)

	require.NoError(t, f.manager.Connect(context.Background()))
	rec := f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connection":"open"`)
}

func TestSendThroughDebugSurface(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Connect(context.Background()))

	rec := f.do(http.MethodPost, "/debug/conversations/2/messages", `{"body":"from the debug port"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Eventually(t, func() bool {
		msgs := f.client.Messages(2)
		return len(msgs) == 1 && strings.HasPrefix(msgs[0].ID, "srv-")
	}, 2*time.Second, 5*time.Millisecond)

	rec = f.do(http.MethodGet, "/debug/conversations", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quizchat_socket_frames_sent_total")
}

func TestDebugVars(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/debug/vars", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "memstats")
}

func TestRateLimitAndCors(t *testing.T) {
	f := newFixture(t, ratelimiter.NewFixedWindow(2, time.Hour))

	assert.Equal(t, http.StatusOK, f.do(http.MethodOptions, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)

	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
