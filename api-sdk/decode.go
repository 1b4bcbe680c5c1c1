package apisdk

import (
	"math"
	"slices"
	"time"

	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/hilthontt/quizchat/internal/infrastructure/wire"
	"github.com/tidwall/gjson"
)

// The backend is loose about types: ids arrive as strings or numbers and
// timestamps as epoch milliseconds or RFC 3339 strings.

func wideInt(r gjson.Result) int64 {
	var v any
	switch r.Type {
	case gjson.String:
		v = r.Str
	case gjson.Number:
		v = r.Raw
	default:
		return 0
	}
	n, err := wire.ParseWideInt(v)
	if err != nil && r.Type == gjson.Number {
		// Fractions and exponent forms are truncated; out of range is zero.
		n, err = wire.ParseWideInt(math.Trunc(r.Num))
	}
	if err != nil {
		return 0
	}
	return n
}

func timestamp(r gjson.Result) int64 {
	if r.Type == gjson.String {
		if t, err := time.Parse(time.RFC3339Nano, r.Str); err == nil {
			return t.UnixMilli()
		}
	}
	return wideInt(r)
}

func firstOf(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func decodeUser(r gjson.Result) domain.UserDisplay {
	return domain.UserDisplay{
		ID:       wideInt(firstOf(r, "id", "userId")),
		Username: r.Get("username").String(),
		FullName: firstOf(r, "fullName", "full_name", "name").String(),
		Avatar:   domain.NormalizeAvatar(r.Get("avatar").String()),
	}
}

func decodeMessage(r gjson.Result) domain.ChatMessage {
	msg := domain.ChatMessage{
		ID:         r.Get("id").String(),
		SenderID:   wideInt(firstOf(r, "senderId", "sender_id", "sender.id")),
		ReceiverID: wideInt(firstOf(r, "receiverId", "receiver_id")),
		Body:       firstOf(r, "body", "content").String(),
		Timestamp:  timestamp(firstOf(r, "timestamp", "createdAt")),
		Media:      r.Get("media").String(),
		Audio:      r.Get("audio").String(),
	}

	if sender := r.Get("sender"); sender.IsObject() {
		msg.Sender = decodeUser(sender)
	}
	if msg.Sender.ID == 0 {
		msg.Sender.ID = msg.SenderID
	}

	kind := r.Get("kind")
	if kind.Type == gjson.Number {
		if n := kind.Int(); n >= 0 && n <= int64(domain.KindImage) {
			msg.Kind = domain.MessageKind(n)
		}
	} else {
		msg.Kind = domain.ParseMessageKind(kind.String())
	}

	return msg
}

func decodeHistory(raw []byte) domain.History {
	root := gjson.ParseBytes(raw)

	var msgs []domain.ChatMessage
	root.Get("messages").ForEach(func(_, v gjson.Result) bool {
		msgs = append(msgs, decodeMessage(v))
		return true
	})
	slices.Reverse(msgs)

	count := len(msgs)
	if c := root.Get("count"); c.Exists() {
		count = int(c.Int())
	}

	return domain.History{
		Messages: msgs,
		HasMore:  root.Get("hasMore").Bool(),
		Count:    count,
	}
}

func decodeConversations(raw []byte) []domain.Conversation {
	root := gjson.ParseBytes(raw)
	list := root.Get("conversations")
	if !list.IsArray() && root.IsArray() {
		list = root
	}

	var out []domain.Conversation
	list.ForEach(func(_, v gjson.Result) bool {
		conv := domain.Conversation{
			Peer:        decodeUser(v.Get("peer")),
			UnreadCount: int(v.Get("unreadCount").Int()),
		}
		conv.PeerID = wideInt(v.Get("peerId"))
		if conv.PeerID == 0 {
			conv.PeerID = conv.Peer.ID
		}
		if conv.Peer.ID == 0 {
			conv.Peer.ID = conv.PeerID
		}
		if last := v.Get("lastMessage"); last.IsObject() {
			msg := decodeMessage(last)
			conv.LastMessage = &msg
		}
		if conv.PeerID != 0 {
			out = append(out, conv)
		}
		return true
	})
	return out
}
