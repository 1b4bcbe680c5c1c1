// Package conversations exposes the local conversation store for inspection
// and lets an operator push a text message through the normal send path.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/hilthontt/quizchat/internal/infrastructure/json"
	"github.com/hilthontt/quizchat/internal/infrastructure/logging"
)

type Chat interface {
	Conversations() []domain.Conversation
	Conversation(peer int64) (domain.Conversation, bool)
	Messages(peer int64) []domain.ChatMessage
	Typing(peer int64) bool
	IsOnline(peer int64) bool
	SendMessage(ctx context.Context, peer int64, text string) (domain.ChatMessage, error)
	MarkRead(ctx context.Context, peer int64) error
}

type Handler struct {
	chat   Chat
	logger logging.Logger
}

func NewHandler(chat Chat, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{chat: chat, logger: logger}
}

func (h *Handler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	convs := h.chat.Conversations()
	if convs == nil {
		convs = []domain.Conversation{}
	}
	_ = json.Write(w, http.StatusOK, listResponse{Conversations: convs, Count: len(convs)})
}

func (h *Handler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	peer, err := peerParam(r)
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}

	conv, ok := h.chat.Conversation(peer)
	if !ok {
		json.WriteNotFoundError(w, domain.ErrUnknownPeer.Error())
		return
	}

	msgs := h.chat.Messages(peer)
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	_ = json.Write(w, http.StatusOK, conversationResponse{
		Conversation: conv,
		Typing:       h.chat.Typing(peer),
		Online:       h.chat.IsOnline(peer),
		Messages:     msgs,
	})
}

func (h *Handler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	peer, err := peerParam(r)
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}

	var req sendMessageRequest
	if err := json.Read(w, r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		json.WriteValidationError(w, fmt.Errorf("body is empty: %w", domain.ErrInvalidInput))
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), peer, req.Body)
	if err != nil {
		h.logger.Error(logging.Http, logging.Api, "send failed", map[logging.ExtraKey]any{
			logging.PeerID:       peer,
			logging.MessageID:    msg.ID,
			logging.ErrorMessage: err.Error(),
		})
		// The optimistic copy stays in the store; report it with the failure.
		_ = json.Write(w, http.StatusBadGateway, msg)
		return
	}

	_ = json.Write(w, http.StatusCreated, msg)
}

func (h *Handler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	peer, err := peerParam(r)
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if err := h.chat.MarkRead(r.Context(), peer); err != nil {
		h.logger.Error(logging.Http, logging.Api, "mark read failed", map[logging.ExtraKey]any{
			logging.PeerID:       peer,
			logging.ErrorMessage: err.Error(),
		})
		json.WriteInternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func peerParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "peerId")
	if raw == "" {
		return 0, errors.New("peer ID is missing")
	}
	peer, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || peer <= 0 {
		return 0, fmt.Errorf("peer ID %q is not a positive integer: %w", raw, domain.ErrInvalidInput)
	}
	return peer, nil
}
