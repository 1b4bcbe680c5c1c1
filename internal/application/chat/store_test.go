package chat

import (
	"testing"

	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(local, NewMerger(0), NewSeen(0))
}

func TestStoreUnreadAccounting(t *testing.T) {
	s := newTestStore()

	for i, body := range []string{"a", "b", "c"} {
		s.Merge(2, text("in-"+body, 2, int64(100+i), body), true)
	}
	s.Merge(2, domain.ChatMessage{ID: "mine", SenderID: local, ReceiverID: 2, Body: "reply", Timestamp: 200}, true)
	assert.Equal(t, 3, s.UnreadCount(2))

	peer := int64(2)
	cleared, needsHistory := s.Open(&peer)
	assert.Equal(t, 3, cleared)
	assert.True(t, needsHistory)
	assert.Zero(t, s.UnreadCount(2))

	s.Merge(2, text("in-d", 2, 300, "d"), true)
	assert.Zero(t, s.UnreadCount(2), "open conversation stays read")

	s.Open(nil)
	s.Merge(2, text("in-e", 2, 400, "e"), true)
	assert.Equal(t, 1, s.UnreadCount(2))
}

func TestStoreDuplicateDeliveryCountsOnce(t *testing.T) {
	s := newTestStore()
	msg := text("srv-9", 2, 100, "once")

	assert.Equal(t, Appended, s.Merge(2, msg, true))
	assert.Equal(t, Duplicate, s.Merge(2, msg, true))

	assert.Len(t, s.Messages(2), 1)
	assert.Equal(t, 1, s.UnreadCount(2))

	conv, ok := s.Conversation(2)
	require.True(t, ok)
	assert.Equal(t, 1, conv.Confirmed)
}

func TestStoreHistoryDoesNotCountUnread(t *testing.T) {
	s := newTestStore()
	s.ApplyHistory(2, domain.History{
		Messages: []domain.ChatMessage{text("h1", 2, 10, "old"), text("h2", local, 20, "older reply")},
		HasMore:  true,
	}, true)

	assert.Zero(t, s.UnreadCount(2))
	assert.True(t, s.HistoryLoaded(2))
	conv, _ := s.Conversation(2)
	assert.True(t, conv.HasMore)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "h2", conv.LastMessage.ID)

	// A second page merges rather than replaces.
	s.ApplyHistory(2, domain.History{Messages: []domain.ChatMessage{text("h0", 2, 5, "oldest")}}, false)
	assert.Equal(t, []string{"h0", "h1", "h2"}, ids(s.Messages(2)))
	assert.Equal(t, int64(5), s.OldestTimestamp(2))

	s.InvalidateHistory(2)
	assert.False(t, s.HistoryLoaded(2))
	assert.Len(t, s.Messages(2), 3)
}

func TestStorePromote(t *testing.T) {
	s := newTestStore()
	s.InsertOptimistic(2, text("temp-a", local, 100, "hello"))

	assert.True(t, s.Promote(2, "temp-a", "srv-1"))
	assert.Equal(t, []string{"srv-1"}, ids(s.Messages(2)))
	assert.False(t, s.Promote(2, "temp-a", "srv-1"))

	// The socket echo of the same message is now a duplicate.
	assert.Equal(t, Duplicate, s.Merge(2, text("srv-1", local, 150, "hello"), true))
	assert.Len(t, s.Messages(2), 1)
}

func TestStorePromoteDropsPendingWhenEchoWon(t *testing.T) {
	s := newTestStore()
	s.InsertOptimistic(2, text("temp-a", local, 100, "hello"))
	s.InsertOptimistic(2, text("temp-b", local, 100_000, "different"))
	s.Merge(2, text("srv-1", local, 90_000, "hello"), true)

	assert.True(t, s.Promote(2, "temp-a", "srv-1"))
	assert.Equal(t, []string{"srv-1", "temp-b"}, ids(s.Messages(2)))
}

func TestStoreHydrate(t *testing.T) {
	s := newTestStore()
	s.Merge(3, text("live", 3, 500, "fresh"), true)

	s.Hydrate([]domain.Conversation{
		{PeerID: 3, Peer: domain.UserDisplay{ID: 3, Username: "cy"}, LastMessage: &domain.ChatMessage{ID: "old", Timestamp: 100}, UnreadCount: 4},
		{PeerID: 4, Peer: domain.UserDisplay{ID: 4, Username: "di"}, LastMessage: &domain.ChatMessage{ID: "x", Timestamp: 50}},
		{PeerID: 0},
	})

	convs := s.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, int64(3), convs[0].PeerID)
	assert.Equal(t, "cy", convs[0].Peer.Username)
	assert.Equal(t, "live", convs[0].LastMessage.ID)
	assert.Equal(t, 4, convs[0].UnreadCount)
	assert.Equal(t, int64(4), convs[1].PeerID)
}

func TestStorePresence(t *testing.T) {
	s := newTestStore()
	s.ReplacePresence([]domain.PresenceEntry{
		{User: domain.UserDisplay{ID: 2}, OnlineSince: 1},
		{User: domain.UserDisplay{ID: 3}, OnlineSince: 2},
	})
	assert.True(t, s.IsOnline(2))

	s.SetOffline(2)
	s.SetOnline(domain.PresenceEntry{User: domain.UserDisplay{ID: 4}, OnlineSince: 9})
	assert.False(t, s.IsOnline(2))
	assert.True(t, s.IsOnline(4))
	assert.Len(t, s.Presence(), 2)

	s.ReplacePresence(nil)
	assert.Empty(t, s.Presence())
}

func TestStoreAccessorsReturnCopies(t *testing.T) {
	s := newTestStore()
	s.Merge(2, text("a", 2, 1, "x"), true)

	msgs := s.Messages(2)
	msgs[0].Body = "changed"
	assert.Equal(t, "x", s.Messages(2)[0].Body)
	assert.Nil(t, s.Messages(99))
}
