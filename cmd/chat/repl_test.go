package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	apisdk "github.com/hilthontt/quizchat/api-sdk"
	"github.com/hilthontt/quizchat/api-sdk/option"
	"github.com/hilthontt/quizchat/internal/application/chat"
	"github.com/hilthontt/quizchat/internal/chattest"
	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/hilthontt/quizchat/internal/infrastructure/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr string
	}{
		{line: "", want: command{}},
		{line: "   ", want: command{}},
		{line: "hello there", want: command{name: "say", text: "hello there"}},
		{line: "/open 42", want: command{name: "open", args: []string{"42"}}},
		{line: "/OPEN 42", want: command{name: "open", args: []string{"42"}}},
		{line: "/sticker cat", want: command{name: "sticker", args: []string{"cat"}}},
		{line: "/sticker cat meow.mp3", want: command{name: "sticker", args: []string{"cat", "meow.mp3"}}},
		{line: "/quit", want: command{name: "quit", args: []string{}}},
		{line: "/open", wantErr: "wrong number of arguments for /open"},
		{line: "/close now", wantErr: "wrong number of arguments for /close"},
		{line: "/dance", wantErr: "unknown command /dance"},
		{line: "/", wantErr: "usage"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.name, got.name)
			assert.Equal(t, tt.want.text, got.text)
			assert.ElementsMatch(t, tt.want.args, got.args)
		})
	}
}

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2024, 1, 1, 9, 5, 7, 0, time.Local).UnixMilli()

	tests := []struct {
		name string
		msg  domain.ChatMessage
		want string
	}{
		{"own text", domain.ChatMessage{SenderID: 1, Body: "hi", Timestamp: ts}, "[09:05:07] me: hi"},
		{"named peer", domain.ChatMessage{SenderID: 2, Sender: domain.UserDisplay{Username: "ana"}, Body: "yo", Timestamp: ts}, "[09:05:07] ana: yo"},
		{"markup stripped", domain.ChatMessage{SenderID: 2, Body: "<b>bold</b> & <script>x()</script>plain", Timestamp: ts}, "[09:05:07] #2: bold & plain"},
		{"anonymous peer", domain.ChatMessage{SenderID: 3, Body: "hey", Timestamp: ts}, "[09:05:07] #3: hey"},
		{"sticker", domain.ChatMessage{SenderID: 3, Kind: domain.KindSticker, Media: "cat", Audio: "a.mp3", Timestamp: ts}, "[09:05:07] #3: [sticker cat] [audio a.mp3]"},
		{"image", domain.ChatMessage{SenderID: 3, Kind: domain.KindImage, Media: "https://cdn/x.png", Timestamp: ts}, "[09:05:07] #3: [image https://cdn/x.png]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMessage(tt.msg, 1))
		})
	}
}

func TestREPLOfflineSession(t *testing.T) {
	srv := chattest.NewServer(chattest.Options{Token: "secret"})
	defer srv.Close()
	srv.SetHistory(2, []domain.ChatMessage{
		{ID: "h1", SenderID: 2, ReceiverID: 1, Body: "are you there", Timestamp: 100},
	})

	manager := ws.NewManager(ws.Config{URL: srv.WSURL()}, nil, nil, nil)
	backend := apisdk.NewClient(
		option.WithBaseURL(srv.URL),
		option.WithBearerToken("secret"),
		option.WithHTTPClient(srv.Client()),
	)
	client := chat.NewClient(chat.Config{LocalUserID: 1}, manager, backend, nil, nil)
	defer client.Close()

	var out bytes.Buffer
	r := newREPL(client, &out, 1)

	in := strings.NewReader(strings.Join([]string{
		"/emoji 👋",
		"/open 2",
		"offline hello",
		"/quit",
		"never reached",
	}, "\n"))
	require.NoError(t, r.run(context.Background(), in))

	text := out.String()
	assert.Contains(t, text, "no open conversation")
	assert.Contains(t, text, "-- conversation with #2 --")
	assert.Contains(t, text, "#2: are you there")

	sends := srv.RestSends()
	require.Len(t, sends, 1)
	assert.Equal(t, "offline hello", sends[0].Body["body"])

	msgs := client.Messages(2)
	require.Len(t, msgs, 2)
	assert.Equal(t, "srv-1", msgs[1].ID)
}

func TestREPLStopsAtEOF(t *testing.T) {
	srv := chattest.NewServer(chattest.Options{Token: "secret"})
	defer srv.Close()

	manager := ws.NewManager(ws.Config{URL: srv.WSURL()}, nil, nil, nil)
	client := chat.NewClient(chat.Config{LocalUserID: 1}, manager, apisdk.NewClient(option.WithBaseURL(srv.URL)), nil, nil)
	defer client.Close()

	var out bytes.Buffer
	require.NoError(t, newREPL(client, &out, 1).run(context.Background(), strings.NewReader("/list\n")))
	assert.Contains(t, out.String(), "no conversations")
}
