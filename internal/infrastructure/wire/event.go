package wire

import (
	"fmt"

	"github.com/hilthontt/quizchat/internal/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

// Event is a decoded inbound frame. The field matching Type is always
// non-nil after DecodeEvent, zero-valued when the frame omitted it.
type Event struct {
	Type         EventType
	RoomID       string
	Message      *domain.ChatMessage
	Notification *Notification
	Typing       *TypingEvent
	Room         *RoomEvent
	Error        *domain.ServerError
	Pong         *PongEvent
	Presence     []domain.PresenceEntry
	User         *PresenceUser
}

type Notification struct {
	Message    domain.ChatMessage
	FromUserID int64
	RoomID     string
}

type TypingEvent struct {
	UserID   int64
	IsTyping bool
}

type RoomEvent struct {
	RoomID string
	UserID int64
}

type PongEvent struct {
	Timestamp int64
}

type PresenceUser struct {
	User      domain.UserDisplay
	Timestamp int64
}

// DecodeEvent never fails on missing or unknown fields; only a frame that is
// not valid protobuf yields ErrMalformedFrame.
func DecodeEvent(b []byte) (Event, error) {
	var (
		ev       Event
		payloads = map[protowire.Number][]byte{}
	)

	err := forEachField(b, func(num protowire.Number, f field) error {
		switch num {
		case fieldType:
			ev.Type = EventType(f.string())
		case fieldRoomID:
			ev.RoomID = f.string()
		default:
			if sub, ok := f.sub(); ok {
				payloads[num] = sub
			}
		}
		return nil
	})
	if err != nil {
		return Event{}, err
	}

	num, ok := eventPayloadField[ev.Type]
	if !ok {
		return ev, nil
	}
	payload := payloads[num]

	switch ev.Type {
	case EventNewMessage:
		m, err := decodeMessage(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Message = &m

	case EventNewMessageNotification:
		var n Notification
		err = forEachField(payload, func(num protowire.Number, f field) error {
			switch num {
			case notifMessage:
				if sub, ok := f.sub(); ok {
					m, err := decodeMessage(sub)
					if err != nil {
						return err
					}
					n.Message = m
				}
			case notifFromUserID:
				n.FromUserID = f.int64()
			case notifRoomID:
				n.RoomID = f.string()
			}
			return nil
		})
		ev.Notification = &n

	case EventTyping:
		var t TypingEvent
		err = forEachField(payload, func(num protowire.Number, f field) error {
			switch num {
			case typingEvUserID:
				t.UserID = f.int64()
			case typingEvIsTyping:
				t.IsTyping = f.bool()
			}
			return nil
		})
		ev.Typing = &t

	case EventJoinedRoom, EventLeftRoom:
		var r RoomEvent
		err = forEachField(payload, func(num protowire.Number, f field) error {
			switch num {
			case roomEvRoomID:
				r.RoomID = f.string()
			case roomEvUserID:
				r.UserID = f.int64()
			}
			return nil
		})
		if r.RoomID == "" {
			r.RoomID = ev.RoomID
		}
		ev.Room = &r

	case EventError:
		var se domain.ServerError
		err = forEachField(payload, func(num protowire.Number, f field) error {
			switch num {
			case errMessage:
				se.Message = f.string()
			case errCode:
				se.Code = f.string()
			}
			return nil
		})
		ev.Error = &se

	case EventPong:
		var p PongEvent
		err = forEachField(payload, func(num protowire.Number, f field) error {
			if num == pongTimestamp {
				p.Timestamp = f.int64()
			}
			return nil
		})
		ev.Pong = &p

	case EventPresenceList:
		ev.Presence = []domain.PresenceEntry{}
		err = forEachField(payload, func(num protowire.Number, f field) error {
			if num != presenceListUsers {
				return nil
			}
			sub, ok := f.sub()
			if !ok {
				return nil
			}
			u, err := decodePresenceUser(sub)
			if err != nil {
				return err
			}
			ev.Presence = append(ev.Presence, domain.PresenceEntry{User: u.User, OnlineSince: u.Timestamp})
			return nil
		})

	case EventUserOnline, EventUserOffline:
		u, derr := decodePresenceUser(payload)
		err = derr
		ev.User = &u
	}

	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

func decodeMessage(b []byte) (domain.ChatMessage, error) {
	var m domain.ChatMessage
	err := forEachField(b, func(num protowire.Number, f field) error {
		switch num {
		case msgID:
			m.ID = f.string()
		case msgSenderID:
			m.SenderID = f.int64()
		case msgSender:
			if sub, ok := f.sub(); ok {
				u, err := decodeUser(sub)
				if err != nil {
					return err
				}
				m.Sender = u
			}
		case msgBody:
			m.Body = f.string()
		case msgTimestamp:
			m.Timestamp = f.int64()
		case msgKind:
			m.Kind = domain.ParseMessageKind(f.string())
		case msgMedia:
			m.Media = f.string()
		case msgAudio:
			m.Audio = f.string()
		case msgReceiverID:
			m.ReceiverID = f.int64()
		}
		return nil
	})
	if m.Sender.ID == 0 {
		m.Sender.ID = m.SenderID
	}
	return m, err
}

func decodePresenceUser(b []byte) (PresenceUser, error) {
	var p PresenceUser
	err := forEachField(b, func(num protowire.Number, f field) error {
		switch num {
		case presenceUser:
			if sub, ok := f.sub(); ok {
				u, err := decodeUser(sub)
				if err != nil {
					return err
				}
				p.User = u
			}
		case presenceTS:
			p.Timestamp = f.int64()
		}
		return nil
	})
	return p, err
}

// EncodeEvent is the server side of DecodeEvent.
func EncodeEvent(ev Event) ([]byte, error) {
	num, ok := eventPayloadField[ev.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, ev.Type)
	}

	var p encoder
	switch ev.Type {
	case EventNewMessage:
		if ev.Message != nil {
			p.b = encodeMessage(*ev.Message)
		}
	case EventNewMessageNotification:
		if n := ev.Notification; n != nil {
			p.message(notifMessage, encodeMessage(n.Message))
			p.int64(notifFromUserID, n.FromUserID)
			p.string(notifRoomID, n.RoomID)
		}
	case EventTyping:
		if t := ev.Typing; t != nil {
			p.int64(typingEvUserID, t.UserID)
			p.bool(typingEvIsTyping, t.IsTyping)
		}
	case EventJoinedRoom, EventLeftRoom:
		if r := ev.Room; r != nil {
			p.string(roomEvRoomID, r.RoomID)
			p.int64(roomEvUserID, r.UserID)
		}
	case EventError:
		if se := ev.Error; se != nil {
			p.string(errMessage, se.Message)
			p.string(errCode, se.Code)
		}
	case EventPong:
		if ev.Pong != nil {
			p.int64(pongTimestamp, ev.Pong.Timestamp)
		}
	case EventPresenceList:
		for _, entry := range ev.Presence {
			p.message(presenceListUsers, encodePresenceUser(PresenceUser{User: entry.User, Timestamp: entry.OnlineSince}))
		}
	case EventUserOnline, EventUserOffline:
		if ev.User != nil {
			p.b = encodePresenceUser(*ev.User)
		}
	}

	var e encoder
	e.string(fieldType, string(ev.Type))
	e.string(fieldRoomID, ev.RoomID)
	e.message(num, p.b)
	return e.b, nil
}

func encodeMessage(m domain.ChatMessage) []byte {
	var e encoder
	e.string(msgID, m.ID)
	e.int64(msgSenderID, m.SenderID)
	e.message(msgSender, encodeUser(m.Sender))
	e.string(msgBody, m.Body)
	e.int64(msgTimestamp, m.Timestamp)
	e.string(msgKind, m.Kind.String())
	e.string(msgMedia, m.Media)
	e.string(msgAudio, m.Audio)
	e.int64(msgReceiverID, m.ReceiverID)
	return e.b
}

func encodePresenceUser(p PresenceUser) []byte {
	var e encoder
	e.message(presenceUser, encodeUser(p.User))
	e.int64(presenceTS, p.Timestamp)
	return e.b
}
