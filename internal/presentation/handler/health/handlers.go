package health

import (
	"net/http"
	"time"

	"github.com/hilthontt/quizchat/internal/infrastructure/json"
	"github.com/hilthontt/quizchat/internal/infrastructure/ws"
)

type Connection interface {
	State() ws.State
	ReconnectScheduled() bool
}

type ErrorSource interface {
	LastError() error
}

type Handler struct {
	conn      Connection
	errors    ErrorSource
	startedAt time.Time
	now       func() time.Time
}

func NewHandler(conn Connection, errors ErrorSource) *Handler {
	return &Handler{
		conn:      conn,
		errors:    errors,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// GetHealth is the liveness probe: the process answers, whatever the socket
// is doing.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	_ = json.Write(w, http.StatusOK, h.report("ok"))
}

// GetReady fails while the chat socket is not open.
func (h *Handler) GetReady(w http.ResponseWriter, r *http.Request) {
	if h.conn.State() != ws.StateOpen {
		_ = json.Write(w, http.StatusServiceUnavailable, h.report("unhealthy"))
		return
	}
	_ = json.Write(w, http.StatusOK, h.report("ok"))
}

func (h *Handler) report(status string) healthResponse {
	now := h.now()
	resp := healthResponse{
		Status:       status,
		Timestamp:    now.UTC().Format(time.RFC3339),
		Uptime:       now.Sub(h.startedAt).Truncate(time.Second).String(),
		Connection:   h.conn.State().String(),
		Reconnecting: h.conn.ReconnectScheduled(),
	}
	if h.errors != nil {
		if err := h.errors.LastError(); err != nil {
			resp.LastError = err.Error()
		}
	}
	return resp
}
