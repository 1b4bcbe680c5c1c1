package apisdk

import (
	"context"
	"net/http"
	"slices"
	"strconv"

	"github.com/hilthontt/quizchat/api-sdk/internal/requestconfig"
	"github.com/hilthontt/quizchat/api-sdk/option"
	"github.com/hilthontt/quizchat/internal/domain"
)

type ConversationService struct {
	Options []option.RequestOption
}

func NewConversationService(opts ...option.RequestOption) *ConversationService {
	return &ConversationService{opts}
}

func (c *ConversationService) List(ctx context.Context, limit int, opts ...option.RequestOption) ([]domain.Conversation, error) {
	opts = slices.Concat(c.Options, opts)

	path := "api/conversations"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var raw []byte
	if err := requestconfig.ExecuteNewRequest(ctx, http.MethodGet, path, nil, &raw, opts...); err != nil {
		return nil, err
	}
	return decodeConversations(raw), nil
}
