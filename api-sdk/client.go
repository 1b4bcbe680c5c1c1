package apisdk

import (
	"context"
	"io"
	"net/http"
	"os"
	"slices"

	"github.com/hilthontt/quizchat/api-sdk/internal/requestconfig"
	"github.com/hilthontt/quizchat/api-sdk/option"
	"github.com/hilthontt/quizchat/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Client struct {
	Options      []option.RequestOption
	Message      *MessageService
	Conversation *ConversationService
	Media        *MediaService
}

func DefaultClientOptions() []option.RequestOption {
	defaults := []option.RequestOption{
		option.WithEnvironmentLocal(),
		option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	if o, ok := os.LookupEnv("CHAT_BASE_URL"); ok {
		defaults = append(defaults, option.WithBaseURL(o))
	}
	if o, ok := os.LookupEnv("CHAT_TOKEN"); ok {
		defaults = append(defaults, option.WithBearerToken(o))
	}
	return defaults
}

func NewClient(opts ...option.RequestOption) *Client {
	opts = append(DefaultClientOptions(), opts...)

	return &Client{
		Options:      opts,
		Message:      NewMessageService(opts...),
		Conversation: NewConversationService(opts...),
		Media:        NewMediaService(opts...),
	}
}

func (c *Client) Execute(ctx context.Context, method, path string, params, res any, opts ...option.RequestOption) error {
	opts = slices.Concat(c.Options, opts)
	return requestconfig.ExecuteNewRequest(ctx, method, path, params, res, opts...)
}

func (c *Client) Get(ctx context.Context, path string, params, res any, opts ...option.RequestOption) error {
	return c.Execute(ctx, http.MethodGet, path, params, res, opts...)
}

func (c *Client) Post(ctx context.Context, path string, params, res any, opts ...option.RequestOption) error {
	return c.Execute(ctx, http.MethodPost, path, params, res, opts...)
}

// SendMessage posts msg to peer and returns the id the server assigned.
func (c *Client) SendMessage(ctx context.Context, peerID int64, msg domain.ChatMessage) (string, error) {
	return c.Message.Send(ctx, peerID, SendMessageParamsFrom(msg))
}

// History returns one page of messages older than before, ascending. A zero
// before fetches the newest page.
func (c *Client) History(ctx context.Context, peerID int64, limit int, before int64) (domain.History, error) {
	return c.Message.History(ctx, peerID, HistoryParams{Limit: limit, Before: before})
}

func (c *Client) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	return c.Conversation.List(ctx, limit)
}

func (c *Client) MarkRead(ctx context.Context, peerID int64) error {
	return c.Message.MarkRead(ctx, peerID)
}

func (c *Client) UploadMedia(ctx context.Context, filename string, r io.Reader) (string, error) {
	return c.Media.Upload(ctx, filename, r)
}
