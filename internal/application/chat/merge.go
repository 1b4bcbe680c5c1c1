package chat

import (
	"sort"
	"strings"
	"time"

	"github.com/hilthontt/quizchat/internal/domain"
)

const (
	DefaultDedupWindow  = 5 * time.Second
	DefaultSeenCapacity = 10_000
)

// Outcome is what merging one inbound message did to a conversation.
type Outcome int

const (
	// Duplicate means the message was already recorded and was dropped.
	Duplicate Outcome = iota
	// Promoted means a pending local message took over the server id.
	Promoted
	// ReplacedTruncated means a shorter copy was replaced by this one.
	ReplacedTruncated
	// DiscardedTruncated means a longer copy was already stored.
	DiscardedTruncated
	Appended
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Promoted:
		return "promoted"
	case ReplacedTruncated:
		return "replaced_truncated"
	case DiscardedTruncated:
		return "discarded_truncated"
	case Appended:
		return "appended"
	default:
		return "unknown"
	}
}

// Confirmed reports whether the outcome adds a server-confirmed message.
func (o Outcome) Confirmed() bool {
	return o == Promoted || o == Appended
}

// Merger reconciles a message with one conversation's list. The list is
// always sorted ascending by timestamp.
type Merger struct {
	// Window bounds the timestamp drift between a pending local message and
	// its server echo.
	Window time.Duration
}

func NewMerger(window time.Duration) Merger {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return Merger{Window: window}
}

// Merge returns the updated list. The input slice may be reused.
func (m Merger) Merge(list []domain.ChatMessage, msg domain.ChatMessage, localUserID int64) ([]domain.ChatMessage, Outcome) {
	if !msg.IsTemporary() && msg.ID != "" {
		for _, existing := range list {
			if !existing.IsTemporary() && existing.ID == msg.ID {
				return list, Duplicate
			}
		}
	}

	if msg.SenderID == localUserID {
		if i := m.pendingMatch(list, msg, localUserID); i >= 0 {
			list = removeAt(list, i)
			return insertSorted(list, msg), Promoted
		}
		return insertSorted(list, msg), Appended
	}

	for i, existing := range list {
		if !truncatedCopy(existing, msg) {
			continue
		}
		if len(msg.Body) > len(existing.Body) {
			list[i] = msg
			return list, ReplacedTruncated
		}
		return list, DiscardedTruncated
	}

	return insertSorted(list, msg), Appended
}

// pendingMatch finds the oldest temporary local message that msg confirms.
func (m Merger) pendingMatch(list []domain.ChatMessage, msg domain.ChatMessage, localUserID int64) int {
	window := m.Window.Milliseconds()
	for i, existing := range list {
		if !existing.IsTemporary() || existing.SenderID != localUserID {
			continue
		}
		if existing.Kind != msg.Kind || existing.Body != msg.Body || existing.Media != msg.Media {
			continue
		}
		if abs(existing.Timestamp-msg.Timestamp) <= window {
			return i
		}
	}
	return -1
}

// truncatedCopy reports whether a and b are the same delivery cut at
// different lengths.
func truncatedCopy(a, b domain.ChatMessage) bool {
	if a.SenderID != b.SenderID || a.Kind != b.Kind || a.Timestamp != b.Timestamp {
		return false
	}
	if a.Kind != domain.KindPlainText && a.Media != b.Media {
		return false
	}
	return strings.Contains(a.Body, b.Body) || strings.Contains(b.Body, a.Body)
}

// insertSorted keeps arrival order among equal timestamps.
func insertSorted(list []domain.ChatMessage, msg domain.ChatMessage) []domain.ChatMessage {
	i := sort.Search(len(list), func(i int) bool { return list[i].Timestamp > msg.Timestamp })
	list = append(list, domain.ChatMessage{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list
}

func removeAt(list []domain.ChatMessage, i int) []domain.ChatMessage {
	return append(list[:i], list[i+1:]...)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

type seenKey struct {
	id        string
	timestamp int64
}

// Seen remembers which (id, timestamp) pairs were already processed, so a
// message arriving through both the room and the notification path is only
// merged once. The oldest entries are evicted first once full.
type Seen struct {
	capacity int
	set      map[seenKey]struct{}
	order    []seenKey
}

func NewSeen(capacity int) *Seen {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &Seen{
		capacity: capacity,
		set:      make(map[seenKey]struct{}, capacity),
	}
}

// Mark records the pair and reports whether it was new. Temporary and
// empty ids are never recorded.
func (s *Seen) Mark(id string, timestamp int64) bool {
	if id == "" || strings.HasPrefix(id, domain.TempIDPrefix) {
		return true
	}

	key := seenKey{id: id, timestamp: timestamp}
	if _, ok := s.set[key]; ok {
		return false
	}

	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.set, oldest)
	}
	s.order = append(s.order, key)
	s.set[key] = struct{}{}
	return true
}

func (s *Seen) Has(id string, timestamp int64) bool {
	_, ok := s.set[seenKey{id: id, timestamp: timestamp}]
	return ok
}

func (s *Seen) Len() int {
	return len(s.order)
}
