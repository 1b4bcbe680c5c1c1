package domain

import (
	"strings"
)

// TempIDPrefix marks identifiers generated locally for optimistic inserts.
const TempIDPrefix = "temp-"

type MessageKind uint8

const (
	KindPlainText MessageKind = iota
	KindEmoji
	KindSticker
	KindImage
)

var kindNames = [...]string{
	KindPlainText: "text",
	KindEmoji:     "emoji",
	KindSticker:   "sticker",
	KindImage:     "image",
}

func (k MessageKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindPlainText]
}

// ParseMessageKind never fails: anything unknown is plain text.
func ParseMessageKind(s string) MessageKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "emoji":
		return KindEmoji
	case "sticker":
		return KindSticker
	case "image":
		return KindImage
	default:
		return KindPlainText
	}
}

type UserDisplay struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	FullName string  `json:"fullName"`
	Avatar   *string `json:"avatar,omitempty"`
}

type ChatMessage struct {
	ID         string      `json:"id"`
	SenderID   int64       `json:"senderId"`
	Sender     UserDisplay `json:"sender"`
	ReceiverID int64       `json:"receiverId,omitempty"`
	Body       string      `json:"body"`
	Timestamp  int64       `json:"timestamp"`
	Kind       MessageKind `json:"kind"`
	Media      string      `json:"media,omitempty"`
	Audio      string      `json:"audio,omitempty"`
}

func (m ChatMessage) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// PeerOf returns the other participant of m as seen by localUserID.
func (m ChatMessage) PeerOf(localUserID int64) int64 {
	if m.SenderID == localUserID {
		return m.ReceiverID
	}
	return m.SenderID
}

// NormalizeAvatar maps empty or whitespace-only avatar references to nil.
func NormalizeAvatar(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// History is one page of messages for a conversation, ascending by timestamp.
type History struct {
	Messages []ChatMessage
	HasMore  bool
	Count    int
}
