package apisdk_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	apisdk "github.com/hilthontt/quizchat/api-sdk"
	"github.com/hilthontt/quizchat/api-sdk/option"
	"github.com/hilthontt/quizchat/internal/chattest"
	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(srv *chattest.Server, token string) *apisdk.Client {
	return apisdk.NewClient(
		option.WithBaseURL(srv.URL),
		option.WithBearerToken(token),
		option.WithHTTPClient(srv.Client()),
	)
}

func TestSendMessage(t *testing.T) {
	srv := chattest.NewServer(chattest.Options{Token: "tok"})
	defer srv.Close()

	c := newClient(srv, "tok")
	id, err := c.SendMessage(context.Background(), 2, domain.ChatMessage{
		ID:        "temp-1",
		Body:      "hello",
		Kind:      domain.KindSticker,
		Media:     "sticker-3",
		Timestamp: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", id)

	sends := srv.RestSends()
	require.Len(t, sends, 1)
	assert.Equal(t, int64(2), sends[0].PeerID)
	assert.Equal(t, "hello", sends[0].Body["body"])
	assert.Equal(t, "sticker", sends[0].Body["kind"])
	assert.Equal(t, "sticker-3", sends[0].Body["media"])
	assert.Equal(t, "temp-1", sends[0].Body["id"])
}

func TestSendMessageRequiresPeer(t *testing.T) {
	c := apisdk.NewClient(option.WithBaseURL("http://127.0.0.1:1"))
	_, err := c.SendMessage(context.Background(), 0, domain.ChatMessage{Body: "x"})
	assert.ErrorIs(t, err, apisdk.ErrMissingPeerID)
}

func TestUnauthorizedReturnsAPIError(t *testing.T) {
	srv := chattest.NewServer(chattest.Options{Token: "tok"})
	defer srv.Close()

	c := newClient(srv, "wrong")
	_, err := c.History(context.Background(), 2, 10, 0)
	require.Error(t, err)

	var apiErr *apisdk.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Message)
	assert.Equal(t, http.StatusUnauthorized, apisdk.StatusCode(err))
}

func TestHistoryIsAscendingAndPaged(t *testing.T) {
	srv := chattest.NewServer(chattest.Options{})
	defer srv.Close()

	srv.SetHistory(2, []domain.ChatMessage{
		{ID: "m1", SenderID: 2, ReceiverID: 1, Body: "one", Timestamp: 100},
		{ID: "m2", SenderID: 1, ReceiverID: 2, Body: "two", Timestamp: 200},
		{ID: "m3", SenderID: 2, ReceiverID: 1, Body: "three", Timestamp: 300},
	})

	c := newClient(srv, "")
	page, err := c.History(context.Background(), 2, 2, 0)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, 2, page.Count)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m2", page.Messages[0].ID)
	assert.Equal(t, "m3", page.Messages[1].ID)
	assert.Equal(t, int64(2), page.Messages[1].Sender.ID)

	older, err := c.History(context.Background(), 2, 2, 200)
	require.NoError(t, err)
	assert.False(t, older.HasMore)
	require.Len(t, older.Messages, 1)
	assert.Equal(t, "m1", older.Messages[0].ID)
}

func TestListConversations(t *testing.T) {
	srv := chattest.NewServer(chattest.Options{})
	defer srv.Close()

	last := domain.ChatMessage{ID: "m9", SenderID: 5, ReceiverID: 1, Body: "later", Timestamp: 900}
	srv.SetConversations([]domain.Conversation{
		{Peer: domain.UserDisplay{ID: 5, Username: "eve"}, LastMessage: &last, UnreadCount: 3},
	})

	convs, err := newClient(srv, "").ListConversations(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, int64(5), convs[0].PeerID)
	assert.Equal(t, "eve", convs[0].Peer.Username)
	assert.Nil(t, convs[0].Peer.Avatar)
	assert.Equal(t, 3, convs[0].UnreadCount)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "later", convs[0].LastMessage.Body)
}

func TestMarkReadAndUpload(t *testing.T) {
	srv := chattest.NewServer(chattest.Options{})
	defer srv.Close()

	c := newClient(srv, "")
	require.NoError(t, c.MarkRead(context.Background(), 4))
	assert.Equal(t, []int64{4}, srv.MarkedRead())

	url, err := c.UploadMedia(context.Background(), "/tmp/cat.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/cat.png", url)
	assert.Equal(t, []string{"cat.png"}, srv.Uploads())
}

func TestMiddlewareWrapsRequests(t *testing.T) {
	srv := chattest.NewServer(chattest.Options{})
	defer srv.Close()

	var order []string
	mw := func(name string) option.Middleware {
		return func(r *http.Request, next option.MiddlewareNext) (*http.Response, error) {
			order = append(order, name+">")
			resp, err := next(r)
			order = append(order, "<"+name)
			return resp, err
		}
	}

	c := newClient(srv, "")
	err := c.Message.MarkRead(context.Background(), 3, option.WithMiddleware(mw("a"), mw("b")), option.WithDebugLog(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a>", "b>", "<b", "<a"}, order)
}
