package health

// healthResponse reports the process and its chat socket.
type healthResponse struct {
	Status       string `json:"status" example:"ok" enum:"ok,unhealthy"`
	Timestamp    string `json:"timestamp" example:"2024-01-01T12:00:00Z"`
	Uptime       string `json:"uptime" example:"2h30m45s"`
	Connection   string `json:"connection" example:"open" enum:"disconnected,connecting,open,closing"`
	Reconnecting bool   `json:"reconnecting"`
	LastError    string `json:"lastError,omitempty"`
}
