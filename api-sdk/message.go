package apisdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/hilthontt/quizchat/api-sdk/internal/requestconfig"
	"github.com/hilthontt/quizchat/api-sdk/option"
	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/tidwall/gjson"
)

type MessageService struct {
	Options []option.RequestOption
}

func NewMessageService(opts ...option.RequestOption) *MessageService {
	m := &MessageService{opts}
	return m
}

type SendMessageParams struct {
	// ID is the temporary id the message is shown under until the server
	// answers.
	ID        string `json:"id,omitempty"`
	Body      string `json:"body"`
	Kind      string `json:"kind"`
	Media     string `json:"media,omitempty"`
	Audio     string `json:"audio,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func SendMessageParamsFrom(msg domain.ChatMessage) SendMessageParams {
	return SendMessageParams{
		ID:        msg.ID,
		Body:      msg.Body,
		Kind:      msg.Kind.String(),
		Media:     msg.Media,
		Audio:     msg.Audio,
		Timestamp: msg.Timestamp,
	}
}

func (m *MessageService) Send(ctx context.Context, peerID int64, body SendMessageParams, opts ...option.RequestOption) (string, error) {
	opts = slices.Concat(m.Options, opts)
	if peerID == 0 {
		return "", ErrMissingPeerID
	}

	path := fmt.Sprintf("api/messages/%d", peerID)
	var raw []byte
	if err := requestconfig.ExecuteNewRequest(ctx, http.MethodPost, path, body, &raw, opts...); err != nil {
		return "", err
	}

	id := gjson.GetBytes(raw, "id").String()
	if id == "" {
		id = gjson.GetBytes(raw, "message.id").String()
	}
	if id == "" {
		return "", ErrMissingID
	}
	return id, nil
}

type HistoryParams struct {
	Limit  int
	Before int64
}

func (p HistoryParams) URLQuery() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Before > 0 {
		q.Set("before", strconv.FormatInt(p.Before, 10))
	}
	return q
}

// History fetches one page. The server answers newest first; the page is
// returned ascending.
func (m *MessageService) History(ctx context.Context, peerID int64, params HistoryParams, opts ...option.RequestOption) (domain.History, error) {
	opts = slices.Concat(m.Options, opts)
	if peerID == 0 {
		return domain.History{}, ErrMissingPeerID
	}

	path := fmt.Sprintf("api/messages/%d", peerID)
	if q := params.URLQuery().Encode(); q != "" {
		path += "?" + q
	}

	var raw []byte
	if err := requestconfig.ExecuteNewRequest(ctx, http.MethodGet, path, nil, &raw, opts...); err != nil {
		return domain.History{}, err
	}
	return decodeHistory(raw), nil
}

func (m *MessageService) MarkRead(ctx context.Context, peerID int64, opts ...option.RequestOption) error {
	opts = slices.Concat(m.Options, opts)
	if peerID == 0 {
		return ErrMissingPeerID
	}

	path := fmt.Sprintf("api/messages/%d/read", peerID)
	return requestconfig.ExecuteNewRequest(ctx, http.MethodPost, path, nil, nil, opts...)
}
