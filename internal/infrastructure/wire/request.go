package wire

import (
	"fmt"

	"github.com/hilthontt/quizchat/internal/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

// Request is an outbound frame. Exactly one payload matches Type; join,
// leave, presence and ping requests carry none.
type Request struct {
	Type        RequestType
	RoomID      string
	SendMessage *SendMessagePayload
	Typing      *TypingPayload
}

type SendMessagePayload struct {
	TargetUserID int64
	Message      domain.ChatMessage
}

type TypingPayload struct {
	IsTyping     bool
	TargetUserID int64
}

func NewSendMessage(roomID string, target int64, msg domain.ChatMessage) Request {
	return Request{
		Type:        RequestSendMessage,
		RoomID:      roomID,
		SendMessage: &SendMessagePayload{TargetUserID: target, Message: msg},
	}
}

func NewTyping(roomID string, target int64, isTyping bool) Request {
	return Request{
		Type:   RequestTyping,
		RoomID: roomID,
		Typing: &TypingPayload{IsTyping: isTyping, TargetUserID: target},
	}
}

func NewJoinRoom(roomID string) Request {
	return Request{Type: RequestJoinRoom, RoomID: roomID}
}

func NewLeaveRoom(roomID string) Request {
	return Request{Type: RequestLeaveRoom, RoomID: roomID}
}

func NewJoinPresence() Request {
	return Request{Type: RequestJoinPresence}
}

func NewPing() Request {
	return Request{Type: RequestPing}
}

// EncodeRequest fails closed: a send-message without a target is rejected
// before any bytes are produced.
func EncodeRequest(r Request) ([]byte, error) {
	num, ok := requestPayloadField[r.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}

	var payload []byte
	switch r.Type {
	case RequestSendMessage:
		if r.SendMessage == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingPayload, r.Type)
		}
		if r.SendMessage.TargetUserID == 0 {
			return nil, ErrMissingTarget
		}
		payload = encodeSendMessage(r.SendMessage)
	case RequestTyping:
		if r.Typing == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingPayload, r.Type)
		}
		var e encoder
		e.bool(typingIsTyping, r.Typing.IsTyping)
		e.int64(typingTarget, r.Typing.TargetUserID)
		payload = e.b
	}

	var e encoder
	e.string(fieldType, string(r.Type))
	e.string(fieldRoomID, r.RoomID)
	e.message(num, payload)
	return e.b, nil
}

func encodeSendMessage(p *SendMessagePayload) []byte {
	m := p.Message

	var e encoder
	e.int64(sendTarget, p.TargetUserID)
	e.string(sendID, m.ID)
	e.int64(sendSenderID, m.SenderID)
	e.message(sendSender, encodeUser(m.Sender))
	e.string(sendBody, m.Body)
	e.int64(sendTimestamp, m.Timestamp)
	e.string(sendKind, m.Kind.String())
	e.string(sendMedia, m.Media)
	e.string(sendAudio, m.Audio)
	return e.b
}

// DecodeRequest is the server side of EncodeRequest.
func DecodeRequest(b []byte) (Request, error) {
	var (
		r        Request
		payloads = map[protowire.Number][]byte{}
	)

	err := forEachField(b, func(num protowire.Number, f field) error {
		switch num {
		case fieldType:
			r.Type = RequestType(f.string())
		case fieldRoomID:
			r.RoomID = f.string()
		default:
			if sub, ok := f.sub(); ok {
				payloads[num] = sub
			}
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	num, ok := requestPayloadField[r.Type]
	if !ok {
		return r, nil
	}
	payload := payloads[num]

	switch r.Type {
	case RequestSendMessage:
		p, err := decodeSendMessage(payload)
		if err != nil {
			return Request{}, err
		}
		r.SendMessage = &p
	case RequestTyping:
		var p TypingPayload
		err := forEachField(payload, func(num protowire.Number, f field) error {
			switch num {
			case typingIsTyping:
				p.IsTyping = f.bool()
			case typingTarget:
				p.TargetUserID = f.int64()
			}
			return nil
		})
		if err != nil {
			return Request{}, err
		}
		r.Typing = &p
	}

	return r, nil
}

func decodeSendMessage(b []byte) (SendMessagePayload, error) {
	var p SendMessagePayload
	err := forEachField(b, func(num protowire.Number, f field) error {
		switch num {
		case sendTarget:
			p.TargetUserID = f.int64()
		case sendID:
			p.Message.ID = f.string()
		case sendSenderID:
			p.Message.SenderID = f.int64()
		case sendSender:
			if sub, ok := f.sub(); ok {
				u, err := decodeUser(sub)
				if err != nil {
					return err
				}
				p.Message.Sender = u
			}
		case sendBody:
			p.Message.Body = f.string()
		case sendTimestamp:
			p.Message.Timestamp = f.int64()
		case sendKind:
			p.Message.Kind = domain.ParseMessageKind(f.string())
		case sendMedia:
			p.Message.Media = f.string()
		case sendAudio:
			p.Message.Audio = f.string()
		}
		return nil
	})
	p.Message.ReceiverID = p.TargetUserID
	return p, err
}
