package conversations

import "github.com/hilthontt/quizchat/internal/domain"

type sendMessageRequest struct {
	Body string `json:"body"`
}

type listResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Count         int                   `json:"count"`
}

type conversationResponse struct {
	domain.Conversation
	Typing   bool                 `json:"typing"`
	Online   bool                 `json:"online"`
	Messages []domain.ChatMessage `json:"messages"`
}
