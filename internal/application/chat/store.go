package chat

import (
	"cmp"
	"maps"
	"slices"
	"sync"

	"github.com/hilthontt/quizchat/internal/domain"
)

type conversationState struct {
	conv     domain.Conversation
	messages []domain.ChatMessage
	typing   bool
}

// Store is the in-memory state of every conversation of the session, keyed
// by peer id. Accessors return copies.
type Store struct {
	localUserID int64
	merger      Merger
	seen        *Seen

	mu       sync.Mutex
	convs    map[int64]*conversationState
	presence map[int64]domain.PresenceEntry
	active   *int64
}

func NewStore(localUserID int64, merger Merger, seen *Seen) *Store {
	if seen == nil {
		seen = NewSeen(DefaultSeenCapacity)
	}
	return &Store{
		localUserID: localUserID,
		merger:      merger,
		seen:        seen,
		convs:       make(map[int64]*conversationState),
		presence:    make(map[int64]domain.PresenceEntry),
	}
}

func (s *Store) LocalUserID() int64 {
	return s.localUserID
}

func (s *Store) conversationLocked(peer int64) *conversationState {
	c, ok := s.convs[peer]
	if !ok {
		c = &conversationState{conv: domain.Conversation{
			PeerID: peer,
			Peer:   domain.UserDisplay{ID: peer},
		}}
		c.conv.IsOpen = s.active != nil && *s.active == peer
		s.convs[peer] = c
	}
	return c
}

func (c *conversationState) refreshLastMessage() {
	if len(c.messages) == 0 {
		return
	}
	last := c.messages[len(c.messages)-1]
	c.conv.LastMessage = &last
}

// Merge folds an inbound message into peer's conversation. live marks
// messages pushed over the socket; only those count as unread.
func (s *Store) Merge(peer int64, msg domain.ChatMessage, live bool) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(peer, msg, live)
}

func (s *Store) mergeLocked(peer int64, msg domain.ChatMessage, live bool) Outcome {
	c := s.conversationLocked(peer)

	if !s.seen.Mark(msg.ID, msg.Timestamp) {
		return Duplicate
	}

	var outcome Outcome
	c.messages, outcome = s.merger.Merge(c.messages, msg, s.localUserID)

	if outcome == Duplicate || outcome == DiscardedTruncated {
		return outcome
	}
	if outcome.Confirmed() {
		c.conv.Confirmed++
	}
	if msg.SenderID == peer && msg.Sender.Username != "" {
		c.conv.Peer = msg.Sender
	}
	if live && outcome == Appended && msg.SenderID != s.localUserID && !c.conv.IsOpen {
		c.conv.UnreadCount++
	}
	c.refreshLastMessage()
	return outcome
}

// InsertOptimistic stores a message the local user just sent, before the
// server has seen it.
func (s *Store) InsertOptimistic(peer int64, msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conversationLocked(peer)
	c.messages = insertSorted(c.messages, msg)
	c.refreshLastMessage()
}

// Promote gives the pending message tempID the id the server assigned. If
// the server copy already arrived the pending one is dropped instead.
func (s *Store) Promote(peer int64, tempID, serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[peer]
	if !ok {
		return false
	}

	i := slices.IndexFunc(c.messages, func(m domain.ChatMessage) bool { return m.ID == tempID })
	if i < 0 {
		return false
	}

	if slices.ContainsFunc(c.messages, func(m domain.ChatMessage) bool { return m.ID == serverID }) {
		c.messages = removeAt(c.messages, i)
		c.refreshLastMessage()
		return true
	}

	c.messages[i].ID = serverID
	s.seen.Mark(serverID, c.messages[i].Timestamp)
	c.conv.Confirmed++
	c.refreshLastMessage()
	return true
}

// ApplyHistory merges one history page into peer's conversation. Messages
// already present are kept; the page never overwrites local state.
func (s *Store) ApplyHistory(peer int64, page domain.History, newest bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conversationLocked(peer)
	for _, msg := range page.Messages {
		s.mergeLocked(peer, msg, false)
	}
	if newest {
		c.conv.HistoryLoaded = true
	}
	c.conv.HasMore = page.HasMore
}

func (s *Store) HistoryLoaded(peer int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[peer]
	return ok && c.conv.HistoryLoaded
}

// InvalidateHistory forces the next open of peer to refetch history.
func (s *Store) InvalidateHistory(peer int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.convs[peer]; ok {
		c.conv.HistoryLoaded = false
	}
}

// Open focuses peer, or nothing when peer is nil. It returns the unread
// count that was cleared and whether history still has to be loaded.
func (s *Store) Open(peer *int64) (cleared int, needsHistory bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		if prev, ok := s.convs[*s.active]; ok {
			prev.conv.IsOpen = false
		}
		s.active = nil
	}
	if peer == nil {
		return 0, false
	}

	id := *peer
	s.active = &id
	c := s.conversationLocked(id)
	c.conv.IsOpen = true
	cleared = c.conv.UnreadCount
	c.conv.UnreadCount = 0
	return cleared, !c.conv.HistoryLoaded
}

func (s *Store) Active() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return 0, false
	}
	return *s.active, true
}

func (s *Store) ResetUnread(peer int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[peer]
	if !ok {
		return 0
	}
	n := c.conv.UnreadCount
	c.conv.UnreadCount = 0
	return n
}

// Hydrate seeds conversations from the server's list. Local state wins
// where it is newer.
func (s *Store) Hydrate(convs []domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range convs {
		if in.PeerID == 0 {
			continue
		}
		c := s.conversationLocked(in.PeerID)
		if in.Peer.Username != "" || in.Peer.FullName != "" {
			c.conv.Peer = in.Peer
		}
		if in.LastMessage != nil && (c.conv.LastMessage == nil || in.LastMessage.Timestamp > c.conv.LastMessage.Timestamp) {
			last := *in.LastMessage
			c.conv.LastMessage = &last
		}
		if !c.conv.IsOpen {
			c.conv.UnreadCount = max(c.conv.UnreadCount, in.UnreadCount)
		}
	}
}

func (s *Store) SetTyping(peer int64, typing bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conversationLocked(peer)
	changed := c.typing != typing
	c.typing = typing
	return changed
}

func (s *Store) Typing(peer int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[peer]
	return ok && c.typing
}

// ReplacePresence swaps the whole snapshot.
func (s *Store) ReplacePresence(entries []domain.PresenceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.presence = make(map[int64]domain.PresenceEntry, len(entries))
	for _, e := range entries {
		if e.User.ID != 0 {
			s.presence[e.User.ID] = e
		}
	}
}

func (s *Store) SetOnline(entry domain.PresenceEntry) {
	if entry.User.ID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[entry.User.ID] = entry
}

func (s *Store) SetOffline(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence, userID)
}

func (s *Store) IsOnline(peer int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.presence[peer]
	return ok
}

func (s *Store) Presence() map[int64]domain.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.presence)
}

func (s *Store) Messages(peer int64) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[peer]
	if !ok {
		return nil
	}
	return slices.Clone(c.messages)
}

// OldestTimestamp is the timestamp of the first stored message, or 0.
func (s *Store) OldestTimestamp(peer int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[peer]
	if !ok || len(c.messages) == 0 {
		return 0
	}
	return c.messages[0].Timestamp
}

func (s *Store) UnreadCount(peer int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[peer]
	if !ok {
		return 0
	}
	return c.conv.UnreadCount
}

func (s *Store) Conversation(peer int64) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[peer]
	if !ok {
		return domain.Conversation{}, false
	}
	return c.snapshot(), true
}

// Conversations lists every conversation, most recent activity first.
func (s *Store) Conversations() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, c.snapshot())
	}
	slices.SortFunc(out, func(a, b domain.Conversation) int {
		if n := cmp.Compare(lastTimestamp(b), lastTimestamp(a)); n != 0 {
			return n
		}
		return cmp.Compare(a.PeerID, b.PeerID)
	})
	return out
}

func (c *conversationState) snapshot() domain.Conversation {
	conv := c.conv
	if conv.LastMessage != nil {
		last := *conv.LastMessage
		conv.LastMessage = &last
	}
	return conv
}

func lastTimestamp(c domain.Conversation) int64 {
	if c.LastMessage == nil {
		return 0
	}
	return c.LastMessage.Timestamp
}
