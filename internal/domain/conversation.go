package domain

type Conversation struct {
	PeerID        int64        `json:"peerId"`
	Peer          UserDisplay  `json:"peer"`
	LastMessage   *ChatMessage `json:"lastMessage,omitempty"`
	UnreadCount   int          `json:"unreadCount"`
	IsOpen        bool         `json:"isOpen"`
	Confirmed     int          `json:"confirmed"`
	HistoryLoaded bool         `json:"historyLoaded"`
	HasMore       bool         `json:"hasMore"`
}

type PresenceEntry struct {
	User        UserDisplay `json:"user"`
	OnlineSince int64       `json:"onlineSince"`
}

// ServerError is an advisory error frame sent by the chat server.
type ServerError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e ServerError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}
