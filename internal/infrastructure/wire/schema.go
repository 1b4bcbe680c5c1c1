// Package wire encodes and decodes the binary frames exchanged over the chat
// socket. The schema lives in chat.proto; frames are plain protobuf.
package wire

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

type RequestType string

const (
	RequestSendMessage  RequestType = "send-message"
	RequestTyping       RequestType = "typing"
	RequestJoinRoom     RequestType = "join-room"
	RequestLeaveRoom    RequestType = "leave-room"
	RequestJoinPresence RequestType = "join-presence"
	RequestPing         RequestType = "ping"
)

type EventType string

const (
	EventNewMessage             EventType = "new-message"
	EventTyping                 EventType = "typing"
	EventJoinedRoom             EventType = "joined-room"
	EventLeftRoom               EventType = "left-room"
	EventError                  EventType = "error"
	EventPong                   EventType = "pong"
	EventPresenceList           EventType = "presence-list"
	EventUserOnline             EventType = "user-online"
	EventUserOffline            EventType = "user-offline"
	EventNewMessageNotification EventType = "new-message-notification"
)

var (
	ErrMissingTarget  = errors.New("send-message request has no target user")
	ErrMissingPayload = errors.New("request payload is missing")
	ErrUnknownType    = errors.New("unknown frame type")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrNotInteger     = errors.New("value is not an integer")
)

// Envelope fields, shared by ClientRequest and ServerEvent.
const (
	fieldType   protowire.Number = 1
	fieldRoomID protowire.Number = 2
)

// ClientRequest payload selectors.
var requestPayloadField = map[RequestType]protowire.Number{
	RequestSendMessage:  10,
	RequestTyping:       11,
	RequestJoinRoom:     12,
	RequestLeaveRoom:    13,
	RequestJoinPresence: 14,
	RequestPing:         15,
}

// ServerEvent payload selectors.
var eventPayloadField = map[EventType]protowire.Number{
	EventNewMessage:             10,
	EventTyping:                 11,
	EventJoinedRoom:             12,
	EventLeftRoom:               13,
	EventError:                  14,
	EventPong:                   15,
	EventPresenceList:           16,
	EventUserOnline:             17,
	EventUserOffline:            18,
	EventNewMessageNotification: 19,
}

// UserInfo
const (
	userID       protowire.Number = 1
	userUsername protowire.Number = 2
	userFullName protowire.Number = 3
	userAvatar   protowire.Number = 4
)

// SendMessagePayload
const (
	sendTarget    protowire.Number = 1
	sendID        protowire.Number = 2
	sendSenderID  protowire.Number = 3
	sendSender    protowire.Number = 4
	sendBody      protowire.Number = 5
	sendTimestamp protowire.Number = 6
	sendKind      protowire.Number = 7
	sendMedia     protowire.Number = 8
	sendAudio     protowire.Number = 9
)

// TypingPayload
const (
	typingIsTyping protowire.Number = 1
	typingTarget   protowire.Number = 2
)

// MessageEvent
const (
	msgID         protowire.Number = 1
	msgSenderID   protowire.Number = 2
	msgSender     protowire.Number = 3
	msgBody       protowire.Number = 4
	msgTimestamp  protowire.Number = 5
	msgKind       protowire.Number = 6
	msgMedia      protowire.Number = 7
	msgAudio      protowire.Number = 8
	msgReceiverID protowire.Number = 9
)

// TypingEvent
const (
	typingEvUserID   protowire.Number = 1
	typingEvIsTyping protowire.Number = 2
)

// RoomEvent
const (
	roomEvRoomID protowire.Number = 1
	roomEvUserID protowire.Number = 2
)

// ErrorEvent
const (
	errMessage protowire.Number = 1
	errCode    protowire.Number = 2
)

// PongEvent
const pongTimestamp protowire.Number = 1

// PresenceEntry / PresenceUser share the layout {user = 1, ts = 2}.
const (
	presenceUser protowire.Number = 1
	presenceTS   protowire.Number = 2
)

// PresenceList
const presenceListUsers protowire.Number = 1

// NotificationEvent
const (
	notifMessage    protowire.Number = 1
	notifFromUserID protowire.Number = 2
	notifRoomID     protowire.Number = 3
)
