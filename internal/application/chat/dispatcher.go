package chat

import (
	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/hilthontt/quizchat/internal/infrastructure/logging"
	"github.com/hilthontt/quizchat/internal/infrastructure/wire"
	"github.com/hilthontt/quizchat/internal/infrastructure/ws"
)

// HandleEvent applies one decoded socket event. The manager calls it from a
// single goroutine, so events are applied in arrival order.
func (c *Client) HandleEvent(ev wire.Event) {
	switch ev.Type {
	case wire.EventNewMessage:
		if ev.Message != nil {
			c.receive(*ev.Message, ev.RoomID)
		}
	case wire.EventNewMessageNotification:
		c.handleNotification(ev)
	case wire.EventTyping:
		c.handleTyping(ev)
	case wire.EventPresenceList:
		c.store.ReplacePresence(ev.Presence)
		c.notify(UpdatePresence, 0)
	case wire.EventUserOnline:
		if ev.User != nil {
			c.store.SetOnline(domain.PresenceEntry{User: ev.User.User, OnlineSince: ev.User.Timestamp})
			c.notify(UpdatePresence, ev.User.User.ID)
		}
	case wire.EventUserOffline:
		if ev.User != nil {
			c.store.SetOffline(ev.User.User.ID)
			c.notify(UpdatePresence, ev.User.User.ID)
		}
	case wire.EventError:
		if ev.Error != nil {
			c.logger.Warn(logging.Socket, logging.Dispatch, "server error frame", map[logging.ExtraKey]any{
				logging.ErrorMessage: ev.Error.Error(),
			})
			c.setLastError(*ev.Error)
		}
	case wire.EventJoinedRoom, wire.EventLeftRoom, wire.EventPong:
		c.logger.Debug(logging.Socket, logging.Dispatch, "acknowledged", map[logging.ExtraKey]any{
			logging.FrameType: string(ev.Type),
			logging.RoomID:    ev.RoomID,
		})
	default:
		c.logger.Debug(logging.Socket, logging.Dispatch, "ignoring unknown event", map[logging.ExtraKey]any{
			logging.FrameType: string(ev.Type),
		})
	}
}

// handleNotification merges a message delivered outside its room and joins
// that room so later messages arrive directly.
func (c *Client) handleNotification(ev wire.Event) {
	n := ev.Notification
	if n == nil {
		return
	}

	msg := n.Message
	if msg.SenderID == 0 {
		msg.SenderID = n.FromUserID
	}
	if msg.Sender.ID == 0 {
		msg.Sender.ID = msg.SenderID
	}

	roomID := n.RoomID
	if roomID == "" {
		roomID = ev.RoomID
	}
	if roomID != "" {
		if err := c.transport.JoinRoom(roomID); err != nil {
			c.logger.Debug(logging.Socket, logging.Dispatch, "failed to join notified room", map[logging.ExtraKey]any{
				logging.RoomID:       roomID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}

	c.receive(msg, roomID)
}

func (c *Client) receive(msg domain.ChatMessage, roomID string) {
	if msg.ID == "" || msg.SenderID == 0 {
		c.logger.Warn(logging.Store, logging.Dedup, "dropping message without id or sender", map[logging.ExtraKey]any{
			logging.MessageID: msg.ID,
			logging.RoomID:    roomID,
		})
		return
	}

	peer := c.peerFor(msg, roomID)
	if peer == 0 {
		c.logger.Warn(logging.Store, logging.Dedup, "dropping message without a peer", map[logging.ExtraKey]any{
			logging.MessageID: msg.ID,
			logging.RoomID:    roomID,
		})
		return
	}

	outcome := c.store.Merge(peer, msg, true)
	c.metrics.MergeOutcomes.WithLabelValues(outcome.String()).Inc()
	c.logger.Debug(logging.Store, logging.Dedup, "message merged", map[logging.ExtraKey]any{
		logging.PeerID:    peer,
		logging.MessageID: msg.ID,
		logging.Outcome:   outcome.String(),
	})

	if outcome != Duplicate && outcome != DiscardedTruncated {
		c.notify(UpdateMessages, peer)
	}
}

// peerFor resolves which conversation msg belongs to: the sender, unless
// the local user wrote it, then the receiver or the other room member.
func (c *Client) peerFor(msg domain.ChatMessage, roomID string) int64 {
	local := c.cfg.LocalUserID
	if peer := msg.PeerOf(local); peer != 0 && peer != local {
		return peer
	}
	if peer, ok := ws.PeerFromRoomID(roomID, local); ok {
		return peer
	}
	return 0
}

// handleTyping sets the peer's typing flag. A start without a matching
// stop expires after TypingExpiry.
func (c *Client) handleTyping(ev wire.Event) {
	if ev.Typing == nil {
		return
	}

	peer := ev.Typing.UserID
	if peer == 0 {
		peer, _ = ws.PeerFromRoomID(ev.RoomID, c.cfg.LocalUserID)
	}
	if peer == 0 || peer == c.cfg.LocalUserID {
		return
	}

	if !ev.Typing.IsTyping {
		c.typingExpiry.Stop(peer)
		if c.store.SetTyping(peer, false) {
			c.notify(UpdateTyping, peer)
		}
		return
	}

	if c.store.SetTyping(peer, true) {
		c.notify(UpdateTyping, peer)
	}
	c.typingExpiry.Reset(peer, c.cfg.TypingExpiry, func() {
		if c.store.SetTyping(peer, false) {
			c.notify(UpdateTyping, peer)
		}
	})
}
