// Package chat keeps the client-side state of one-to-one conversations in
// sync with the chat socket and the REST API.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/hilthontt/quizchat/internal/infrastructure/logging"
	"github.com/hilthontt/quizchat/internal/infrastructure/media"
	"github.com/hilthontt/quizchat/internal/infrastructure/metrics"
	"github.com/hilthontt/quizchat/internal/infrastructure/tracing"
	"github.com/hilthontt/quizchat/internal/infrastructure/wire"
	"github.com/hilthontt/quizchat/internal/infrastructure/ws"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultHistoryPageSize   = 50
	DefaultConversationLimit = 50
)

// Transport is the socket side of the client. *ws.Manager implements it.
type Transport interface {
	IsOpen() bool
	Send(req wire.Request) error
	JoinRoom(roomID string) error
	JoinPresence() error
}

// Backend is the REST side of the client. *apisdk.Client implements it.
type Backend interface {
	SendMessage(ctx context.Context, peerID int64, msg domain.ChatMessage) (string, error)
	History(ctx context.Context, peerID int64, limit int, before int64) (domain.History, error)
	ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error)
	MarkRead(ctx context.Context, peerID int64) error
	UploadMedia(ctx context.Context, filename string, r io.Reader) (string, error)
}

type Config struct {
	LocalUserID int64
	// Self is copied into every message the local user sends.
	Self              domain.UserDisplay
	DedupWindow       time.Duration
	TypingExpiry      time.Duration
	TypingIdle        time.Duration
	HistoryPageSize   int
	SeenCapacity      int
	ConversationLimit int
	// MaxImageDimension bounds uploaded images; zero uploads them as is.
	MaxImageDimension int
}

type UpdateKind int

const (
	UpdateMessages UpdateKind = iota
	UpdateConversations
	UpdateTyping
	UpdatePresence
	UpdateConnection
	UpdateError
)

// Update tells the UI which part of the state to re-read. PeerID is zero
// for updates that are not about one conversation.
type Update struct {
	Kind   UpdateKind
	PeerID int64
}

type Option func(*Client)

func WithScheduler(s Scheduler) Option {
	return func(c *Client) { c.sched = s }
}

// WithClock replaces the clock stamping outgoing messages.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

type Client struct {
	cfg       Config
	store     *Store
	transport Transport
	backend   Backend
	logger    logging.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	sched     Scheduler
	now       func() time.Time

	typingExpiry *peerTimers
	typingIdle   *peerTimers
	updates      chan Update

	mu         sync.Mutex
	typingSent map[int64]bool
	lastErr    error
}

func NewClient(cfg Config, transport Transport, backend Backend, logger logging.Logger, m *metrics.Metrics, opts ...Option) *Client {
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = DefaultTypingExpiry
	}
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = DefaultTypingIdle
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = DefaultHistoryPageSize
	}
	if cfg.ConversationLimit <= 0 {
		cfg.ConversationLimit = DefaultConversationLimit
	}
	if cfg.Self.ID == 0 {
		cfg.Self.ID = cfg.LocalUserID
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}

	c := &Client{
		cfg:        cfg,
		store:      NewStore(cfg.LocalUserID, NewMerger(cfg.DedupWindow), NewSeen(cfg.SeenCapacity)),
		transport:  transport,
		backend:    backend,
		logger:     logger,
		metrics:    m,
		tracer:     tracing.GetTracer("quizchat/chat"),
		sched:      realScheduler{},
		now:        time.Now,
		updates:    make(chan Update, 256),
		typingSent: make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.typingExpiry = newPeerTimers(c.sched)
	c.typingIdle = newPeerTimers(c.sched)
	return c
}

// Attach routes the manager's events and lifecycle callbacks to c.
func (c *Client) Attach(m *ws.Manager) {
	m.SetHandler(c.HandleEvent)
	m.SetOpenHandler(c.HandleOpen)
	m.SetCloseHandler(c.HandleClose)
	m.SetTerminalHandler(c.HandleTerminal)
}

// Start joins the presence channel and hydrates the conversation list. A
// failed hydration is logged, not returned; the socket still delivers.
func (c *Client) Start(ctx context.Context) error {
	if err := c.transport.JoinPresence(); err != nil {
		return fmt.Errorf("failed to join presence: %w", err)
	}
	if err := c.LoadConversations(ctx); err != nil {
		c.logger.Warn(logging.Rest, logging.History, "failed to load conversations", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	return nil
}

// Close stops every pending typing timer.
func (c *Client) Close() {
	c.typingExpiry.StopAll()
	c.typingIdle.StopAll()
}

func (c *Client) Updates() <-chan Update {
	return c.updates
}

func (c *Client) notify(kind UpdateKind, peer int64) {
	select {
	case c.updates <- Update{Kind: kind, PeerID: peer}:
	default:
	}
}

func (c *Client) SendMessage(ctx context.Context, peer int64, text string) (domain.ChatMessage, error) {
	if text == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}
	return c.send(ctx, peer, domain.KindPlainText, text, "", "")
}

func (c *Client) SendEmoji(ctx context.Context, peer int64, glyph string) (domain.ChatMessage, error) {
	if glyph == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: empty emoji", domain.ErrInvalidInput)
	}
	return c.send(ctx, peer, domain.KindEmoji, "", glyph, "")
}

func (c *Client) SendSticker(ctx context.Context, peer int64, stickerID, audio string) (domain.ChatMessage, error) {
	if stickerID == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: empty sticker id", domain.ErrInvalidInput)
	}
	return c.send(ctx, peer, domain.KindSticker, "", stickerID, audio)
}

func (c *Client) SendImage(ctx context.Context, peer int64, url string) (domain.ChatMessage, error) {
	if url == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: empty image url", domain.ErrInvalidInput)
	}
	return c.send(ctx, peer, domain.KindImage, "", url, "")
}

// SendImageFile uploads r, downscaled to MaxImageDimension, and sends the
// stored image.
func (c *Client) SendImageFile(ctx context.Context, peer int64, filename string, r io.Reader) (domain.ChatMessage, error) {
	if c.cfg.MaxImageDimension > 0 {
		scaled, resized, err := media.Downscale(r, filename, c.cfg.MaxImageDimension)
		if err != nil {
			return domain.ChatMessage{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		if resized {
			c.logger.Debug(logging.Rest, logging.Send, "image downscaled before upload", map[logging.ExtraKey]any{
				logging.PeerID: peer,
			})
		}
		r = scaled
	}

	url, err := c.backend.UploadMedia(ctx, filename, r)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("failed to upload image: %w", err)
	}
	return c.SendImage(ctx, peer, url)
}

// SendStickerWithAudio uploads the audio clip and sends it with the sticker.
func (c *Client) SendStickerWithAudio(ctx context.Context, peer int64, stickerID, filename string, r io.Reader) (domain.ChatMessage, error) {
	audio, err := c.backend.UploadMedia(ctx, filename, r)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("failed to upload sticker audio: %w", err)
	}
	return c.SendSticker(ctx, peer, stickerID, audio)
}

// send inserts the message optimistically, then writes it to the socket.
// When the socket is unavailable the REST API takes over; a failure there
// still leaves the optimistic copy in place.
func (c *Client) send(ctx context.Context, peer int64, kind domain.MessageKind, body, media, audio string) (domain.ChatMessage, error) {
	if peer == 0 {
		return domain.ChatMessage{}, domain.ErrUnknownPeer
	}

	ctx, span := c.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.Int64("chat.peer_id", peer),
		attribute.String("chat.kind", kind.String()),
	))
	defer span.End()

	msg := domain.ChatMessage{
		ID:         domain.TempIDPrefix + uuid.NewString(),
		SenderID:   c.cfg.LocalUserID,
		Sender:     c.cfg.Self,
		ReceiverID: peer,
		Body:       body,
		Timestamp:  c.now().UnixMilli(),
		Kind:       kind,
		Media:      media,
		Audio:      audio,
	}

	c.store.InsertOptimistic(peer, msg)
	c.notify(UpdateMessages, peer)

	roomID := ws.RoomID(c.cfg.LocalUserID, peer)
	if err := c.transport.JoinRoom(roomID); err != nil {
		c.logger.Debug(logging.Socket, logging.Send, "failed to join room before send", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
	}

	err := c.transport.Send(wire.NewSendMessage(roomID, peer, msg))
	if err == nil {
		span.SetAttributes(attribute.String("chat.path", "socket"))
		return msg, nil
	}

	c.logger.Info(logging.Store, logging.Send, "socket send failed, using REST", map[logging.ExtraKey]any{
		logging.PeerID:       peer,
		logging.MessageID:    msg.ID,
		logging.ErrorMessage: err.Error(),
	})
	span.SetAttributes(attribute.String("chat.path", "rest"))

	serverID, err := c.backend.SendMessage(ctx, peer, msg)
	if err != nil {
		c.metrics.RestFallbackSend.WithLabelValues("error").Inc()
		c.logger.Warn(logging.Rest, logging.Send, "REST send failed, keeping optimistic message", map[logging.ExtraKey]any{
			logging.PeerID:       peer,
			logging.MessageID:    msg.ID,
			logging.ErrorMessage: err.Error(),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return msg, fmt.Errorf("failed to send message: %w", err)
	}
	c.metrics.RestFallbackSend.WithLabelValues("ok").Inc()

	if c.store.Promote(peer, msg.ID, serverID) {
		msg.ID = serverID
		c.notify(UpdateMessages, peer)
	}
	return msg, nil
}

// SetActiveConversation focuses peer, or no conversation when peer is nil.
// History comes from the session cache when it was loaded before.
func (c *Client) SetActiveConversation(ctx context.Context, peer *int64) error {
	cleared, needsHistory := c.store.Open(peer)
	c.notify(UpdateConversations, 0)
	if peer == nil {
		return nil
	}
	id := *peer

	if err := c.transport.JoinRoom(ws.RoomID(c.cfg.LocalUserID, id)); err != nil {
		c.logger.Debug(logging.Socket, logging.Send, "failed to join room", map[logging.ExtraKey]any{
			logging.PeerID:       id,
			logging.ErrorMessage: err.Error(),
		})
	}

	if cleared > 0 {
		if err := c.backend.MarkRead(ctx, id); err != nil {
			c.logger.Warn(logging.Rest, logging.Send, "failed to mark conversation read", map[logging.ExtraKey]any{
				logging.PeerID:       id,
				logging.ErrorMessage: err.Error(),
			})
		}
	}

	if !needsHistory {
		return nil
	}
	_, err := c.loadHistory(ctx, id, 0)
	return err
}

// LoadOlder fetches the page before the oldest stored message and reports
// whether even older messages exist.
func (c *Client) LoadOlder(ctx context.Context, peer int64) (bool, error) {
	return c.loadHistory(ctx, peer, c.store.OldestTimestamp(peer))
}

func (c *Client) loadHistory(ctx context.Context, peer int64, before int64) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "chat.history", trace.WithAttributes(
		attribute.Int64("chat.peer_id", peer),
		attribute.Int64("chat.before", before),
	))
	defer span.End()

	page, err := c.backend.History(ctx, peer, c.cfg.HistoryPageSize, before)
	if err != nil {
		c.logger.Warn(logging.Rest, logging.History, "failed to load history, keeping cached messages", map[logging.ExtraKey]any{
			logging.PeerID:       peer,
			logging.ErrorMessage: err.Error(),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to load history: %w", err)
	}

	c.store.ApplyHistory(peer, page, before == 0)
	c.logger.Debug(logging.Store, logging.History, "history merged", map[logging.ExtraKey]any{
		logging.PeerID: peer,
		logging.Count:  len(page.Messages),
	})
	c.notify(UpdateMessages, peer)
	return page.HasMore, nil
}

// NotifyTyping sends a typing frame when peer's state changes.
func (c *Client) NotifyTyping(peer int64, isTyping bool) error {
	if peer == 0 {
		return domain.ErrUnknownPeer
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.typingSent[peer] == isTyping {
		return nil
	}
	err := c.transport.Send(wire.NewTyping(ws.RoomID(c.cfg.LocalUserID, peer), peer, isTyping))
	if err != nil {
		return fmt.Errorf("failed to send typing state: %w", err)
	}
	c.typingSent[peer] = isTyping
	return nil
}

// Keystroke reports typing to peer and sends typing-stop once no keystroke
// followed for the idle period.
func (c *Client) Keystroke(peer int64) error {
	if err := c.NotifyTyping(peer, true); err != nil {
		return err
	}
	c.typingIdle.Reset(peer, c.cfg.TypingIdle, func() {
		if err := c.NotifyTyping(peer, false); err != nil {
			c.logger.Debug(logging.Presence, logging.Typing, "failed to send typing stop", map[logging.ExtraKey]any{
				logging.PeerID:       peer,
				logging.ErrorMessage: err.Error(),
			})
		}
	})
	return nil
}

// LoadConversations hydrates the conversation list and joins every room.
func (c *Client) LoadConversations(ctx context.Context) error {
	convs, err := c.backend.ListConversations(ctx, c.cfg.ConversationLimit)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	c.store.Hydrate(convs)
	for _, conv := range convs {
		if conv.PeerID == 0 {
			continue
		}
		if err := c.transport.JoinRoom(ws.RoomID(c.cfg.LocalUserID, conv.PeerID)); err != nil {
			c.logger.Debug(logging.Socket, logging.Send, "failed to join room", map[logging.ExtraKey]any{
				logging.PeerID:       conv.PeerID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}
	c.notify(UpdateConversations, 0)
	return nil
}

// MarkRead clears the unread count locally before telling the server.
func (c *Client) MarkRead(ctx context.Context, peer int64) error {
	c.store.ResetUnread(peer)
	c.notify(UpdateConversations, peer)

	if err := c.backend.MarkRead(ctx, peer); err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return nil
}

// HandleOpen clears the advisory error of the previous connection and, after
// a reconnect, refetches the open conversation since messages may have been
// missed while offline.
func (c *Client) HandleOpen(reconnected bool) {
	c.clearLastError()
	c.notify(UpdateConnection, 0)
	if !reconnected {
		return
	}

	peer, ok := c.store.Active()
	if !ok || !c.store.HistoryLoaded(peer) {
		return
	}
	c.store.InvalidateHistory(peer)
	if _, err := c.loadHistory(context.Background(), peer, 0); err != nil {
		c.setLastError(err)
	}
}

func (c *Client) HandleClose(err error) {
	c.notify(UpdateConnection, 0)
}

func (c *Client) HandleTerminal(err error) {
	c.setLastError(err)
	c.notify(UpdateConnection, 0)
}

func (c *Client) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.notify(UpdateError, 0)
}

func (c *Client) clearLastError() {
	c.mu.Lock()
	had := c.lastErr != nil
	c.lastErr = nil
	c.mu.Unlock()
	if had {
		c.notify(UpdateError, 0)
	}
}

// LastError is the most recent advisory error: a server error frame, a
// failed resync, or exhausted reconnects.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) Messages(peer int64) []domain.ChatMessage {
	return c.store.Messages(peer)
}

func (c *Client) Typing(peer int64) bool {
	return c.store.Typing(peer)
}

func (c *Client) UnreadCount(peer int64) int {
	return c.store.UnreadCount(peer)
}

func (c *Client) IsOnline(peer int64) bool {
	return c.store.IsOnline(peer)
}

func (c *Client) Conversations() []domain.Conversation {
	return c.store.Conversations()
}

func (c *Client) Conversation(peer int64) (domain.Conversation, bool) {
	return c.store.Conversation(peer)
}

func (c *Client) Presence() map[int64]domain.PresenceEntry {
	return c.store.Presence()
}

func (c *Client) Connected() bool {
	return c.transport.IsOpen()
}

// IsTerminal reports whether err means the socket stopped reconnecting.
func IsTerminal(err error) bool {
	return errors.Is(err, ws.ErrReconnectExhausted)
}
