package wire

import (
	"errors"
	"math"
	"testing"

	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func avatar(s string) *string { return &s }

func sampleMessage() domain.ChatMessage {
	return domain.ChatMessage{
		ID:         "srv-1",
		SenderID:   1,
		Sender:     domain.UserDisplay{ID: 1, Username: "ana", FullName: "Ana Lee", Avatar: avatar("a.png")},
		ReceiverID: 2,
		Body:       "hello",
		Timestamp:  1700000000123,
		Kind:       domain.KindSticker,
		Media:      "sticker-9",
		Audio:      "meow.ogg",
	}
}

func TestEncodeRequestSendMessage(t *testing.T) {
	msg := sampleMessage()
	b, err := EncodeRequest(NewSendMessage("chat_1_2", 2, msg))
	require.NoError(t, err)

	got, err := DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, RequestSendMessage, got.Type)
	assert.Equal(t, "chat_1_2", got.RoomID)
	require.NotNil(t, got.SendMessage)
	assert.Equal(t, int64(2), got.SendMessage.TargetUserID)
	assert.Equal(t, msg, got.SendMessage.Message)
}

func TestEncodeRequestFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"zero target", NewSendMessage("chat_1_2", 0, sampleMessage()), ErrMissingTarget},
		{"nil send payload", Request{Type: RequestSendMessage}, ErrMissingPayload},
		{"nil typing payload", Request{Type: RequestTyping}, ErrMissingPayload},
		{"unknown type", Request{Type: "shout"}, ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeRequest(tt.req)
			assert.Nil(t, b)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestEncodeRequestEmptyPayloads(t *testing.T) {
	for _, req := range []Request{NewJoinRoom("chat_1_2"), NewLeaveRoom("chat_1_2"), NewJoinPresence(), NewPing()} {
		t.Run(string(req.Type), func(t *testing.T) {
			b, err := EncodeRequest(req)
			require.NoError(t, err)

			// The oneof selector is present even though the payload is empty.
			var sawPayload bool
			require.NoError(t, forEachField(b, func(num protowire.Number, f field) error {
				if num == requestPayloadField[req.Type] {
					sawPayload = true
				}
				return nil
			}))
			assert.True(t, sawPayload)

			got, err := DecodeRequest(b)
			require.NoError(t, err)
			assert.Equal(t, req, got)
		})
	}
}

func TestTypingRequestRoundTrip(t *testing.T) {
	b, err := EncodeRequest(NewTyping("chat_3_4", 4, true))
	require.NoError(t, err)

	got, err := DecodeRequest(b)
	require.NoError(t, err)
	require.NotNil(t, got.Typing)
	assert.True(t, got.Typing.IsTyping)
	assert.Equal(t, int64(4), got.Typing.TargetUserID)
}

func TestEventRoundTrip(t *testing.T) {
	msg := sampleMessage()
	events := []Event{
		{Type: EventNewMessage, RoomID: "chat_1_2", Message: &msg},
		{Type: EventNewMessageNotification, Notification: &Notification{Message: msg, FromUserID: 1, RoomID: "chat_1_2"}},
		{Type: EventTyping, RoomID: "chat_1_2", Typing: &TypingEvent{UserID: 1, IsTyping: true}},
		{Type: EventJoinedRoom, RoomID: "chat_1_2", Room: &RoomEvent{RoomID: "chat_1_2", UserID: 1}},
		{Type: EventLeftRoom, RoomID: "chat_1_2", Room: &RoomEvent{RoomID: "chat_1_2"}},
		{Type: EventError, Error: &domain.ServerError{Code: "RATE", Message: "slow down"}},
		{Type: EventPong, Pong: &PongEvent{Timestamp: 99}},
		{Type: EventPresenceList, Presence: []domain.PresenceEntry{
			{User: domain.UserDisplay{ID: 5, Username: "eve"}, OnlineSince: 10},
			{User: domain.UserDisplay{ID: 6, Username: "bob"}, OnlineSince: 20},
		}},
		{Type: EventUserOnline, User: &PresenceUser{User: domain.UserDisplay{ID: 7, Username: "kim"}, Timestamp: 30}},
		{Type: EventUserOffline, User: &PresenceUser{User: domain.UserDisplay{ID: 7, Username: "kim"}, Timestamp: 40}},
	}

	for _, ev := range events {
		t.Run(string(ev.Type), func(t *testing.T) {
			b, err := EncodeEvent(ev)
			require.NoError(t, err)

			got, err := DecodeEvent(b)
			require.NoError(t, err)
			assert.Equal(t, ev, got)
		})
	}
}

func TestDecodeEventTolerant(t *testing.T) {
	t.Run("missing payload defaults to zero", func(t *testing.T) {
		var e encoder
		e.string(fieldType, string(EventNewMessage))

		ev, err := DecodeEvent(e.b)
		require.NoError(t, err)
		require.NotNil(t, ev.Message)
		assert.Equal(t, domain.ChatMessage{}, *ev.Message)
	})

	t.Run("unknown fields are skipped", func(t *testing.T) {
		var p encoder
		p.string(msgID, "m1")
		p.int64(99, 12345)
		p.b = protowire.AppendTag(p.b, 98, protowire.Fixed32Type)
		p.b = protowire.AppendFixed32(p.b, 7)

		var e encoder
		e.string(fieldType, string(EventNewMessage))
		e.int64(50, 1)
		e.message(eventPayloadField[EventNewMessage], p.b)

		ev, err := DecodeEvent(e.b)
		require.NoError(t, err)
		assert.Equal(t, "m1", ev.Message.ID)
	})

	t.Run("wrong wire type yields zero value", func(t *testing.T) {
		var p encoder
		p.string(msgTimestamp, "not a varint")
		p.string(msgBody, "hi")

		var e encoder
		e.string(fieldType, string(EventNewMessage))
		e.message(eventPayloadField[EventNewMessage], p.b)

		ev, err := DecodeEvent(e.b)
		require.NoError(t, err)
		assert.Zero(t, ev.Message.Timestamp)
		assert.Equal(t, "hi", ev.Message.Body)
	})

	t.Run("unknown event type", func(t *testing.T) {
		var e encoder
		e.string(fieldType, "reaction")

		ev, err := DecodeEvent(e.b)
		require.NoError(t, err)
		assert.Equal(t, EventType("reaction"), ev.Type)
	})

	t.Run("unknown kind is plain text", func(t *testing.T) {
		var p encoder
		p.string(msgKind, "hologram")

		var e encoder
		e.string(fieldType, string(EventNewMessage))
		e.message(eventPayloadField[EventNewMessage], p.b)

		ev, err := DecodeEvent(e.b)
		require.NoError(t, err)
		assert.Equal(t, domain.KindPlainText, ev.Message.Kind)
	})
}

func TestDecodeEventNormalizesAvatar(t *testing.T) {
	var u encoder
	u.int64(userID, 3)
	u.string(userAvatar, "   ")

	var p encoder
	p.message(presenceUser, u.b)

	var e encoder
	e.string(fieldType, string(EventUserOnline))
	e.message(eventPayloadField[EventUserOnline], p.b)

	ev, err := DecodeEvent(e.b)
	require.NoError(t, err)
	assert.Nil(t, ev.User.User.Avatar)
}

func TestDecodeEventMalformed(t *testing.T) {
	tests := map[string][]byte{
		"truncated tag":    {0x80},
		"truncated length": {0x0a, 0x05, 'a'},
		"bad nested":       append([]byte{0x0a, 0x0b}, append([]byte("new-message"), 0x52, 0x02, 0x0a, 0x09)...),
	}

	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent(b)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestParseWideInt(t *testing.T) {
	tests := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{int64(9007199254740993), 9007199254740993, false},
		{42, 42, false},
		{"42", 42, false},
		{" 17 ", 17, false},
		{"9223372036854775807", 9223372036854775807, false},
		{float64(12), 12, false},
		{12.5, 0, true},
		{float64(math.MaxInt64), 0, true},
		{-float64(1 << 63), math.MinInt64, false},
		{math.Inf(-1), 0, true},
		{"abc", 0, true},
		{uint64(1 << 63), 0, true},
		{nil, 0, true},
		{true, 0, true},
	}

	for _, tt := range tests {
		got, err := ParseWideInt(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrNotInteger, "input %v", tt.in)
			continue
		}
		require.NoError(t, err, "input %v", tt.in)
		assert.Equal(t, tt.want, got)
	}
}
