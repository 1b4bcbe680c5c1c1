// Package chattest runs an in-process chat backend that speaks the socket
// protocol and the REST API, for tests.
package chattest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/hilthontt/quizchat/internal/infrastructure/wire"
)

type Options struct {
	// Token is required on the socket query string and as a REST bearer
	// token when non-empty.
	Token string
	// EchoSends makes the server answer every send-message frame with a
	// new-message event carrying a server id.
	EchoSends bool
	// SendStatus overrides the status of POST api/messages/{peerId}.
	SendStatus int
	// HistoryStatus overrides the status of GET api/messages/{peerId}.
	HistoryStatus int
	Online        []domain.PresenceEntry
}

// RestSend is one message received through the REST fallback.
type RestSend struct {
	PeerID int64
	Body   map[string]any
}

type Server struct {
	*httptest.Server

	opts     Options
	upgrader websocket.Upgrader

	mu            sync.Mutex
	conns         []*websocket.Conn
	writeMu       map[*websocket.Conn]*sync.Mutex
	accepted      int
	requests      []wire.Request
	restSends     []RestSend
	marked        []int64
	uploads       []string
	historyCalls  []int64
	history       map[int64][]domain.ChatMessage
	conversations []domain.Conversation
	seq           int
}

func NewServer(opts Options) *Server {
	s := &Server{
		opts:     opts,
		writeMu:  make(map[*websocket.Conn]*sync.Mutex),
		history:  make(map[int64][]domain.ChatMessage),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	r := chi.NewRouter()
	r.Get("/ws", s.serveSocket)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Get("/conversations", s.listConversations)
		r.Post("/media/upload", s.uploadMedia)
		r.Route("/messages/{peerId}", func(r chi.Router) {
			r.Get("/", s.getHistory)
			r.Post("/", s.sendMessage)
			r.Post("/read", s.markRead)
		})
	})

	s.Server = httptest.NewServer(r)
	return s
}

// SetHistory stores msgs for peer; they are served newest first.
func (s *Server) SetHistory(peer int64, msgs []domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[peer] = slices.Clone(msgs)
}

func (s *Server) SetConversations(convs []domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = slices.Clone(convs)
}

func (s *Server) SetSendStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.SendStatus = status
}

func (s *Server) Requests() []wire.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// CountRequests counts received frames of type t, optionally restricted to
// roomID.
func (s *Server) CountRequests(t wire.RequestType, roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.requests {
		if r.Type == t && (roomID == "" || r.RoomID == roomID) {
			n++
		}
	}
	return n
}

func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// Accepted is the number of socket connections upgraded so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *Server) RestSends() []RestSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.restSends)
}

func (s *Server) MarkedRead() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.marked)
}

func (s *Server) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.uploads)
}

func (s *Server) HistoryCalls() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.historyCalls)
}

// Push writes ev to every open socket.
func (s *Server) Push(ev wire.Event) error {
	b, err := wire.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return s.PushRaw(b)
}

// PushRaw writes b as a binary frame to every open socket, without encoding.
func (s *Server) PushRaw(b []byte) error {
	s.mu.Lock()
	conns := slices.Clone(s.conns)
	s.mu.Unlock()

	for _, c := range conns {
		if err := s.write(c, b); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every socket without a close handshake, the way a
// network failure would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.UnderlyingConn().Close()
	}
}

func (s *Server) write(c *websocket.Conn, b []byte) error {
	s.mu.Lock()
	mu := s.writeMu[c]
	s.mu.Unlock()
	if mu == nil {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.WriteMessage(websocket.BinaryMessage, b)
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	if s.opts.Token != "" && r.URL.Query().Get("token") != s.opts.Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.writeMu[conn] = &sync.Mutex{}
	s.accepted++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conns = slices.DeleteFunc(s.conns, func(c *websocket.Conn) bool { return c == conn })
		delete(s.writeMu, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		req, err := wire.DecodeRequest(raw)
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		s.respond(conn, req)
	}
}

func (s *Server) respond(conn *websocket.Conn, req wire.Request) {
	var reply *wire.Event

	switch req.Type {
	case wire.RequestPing:
		reply = &wire.Event{Type: wire.EventPong, Pong: &wire.PongEvent{Timestamp: time.Now().UnixMilli()}}
	case wire.RequestJoinRoom:
		reply = &wire.Event{Type: wire.EventJoinedRoom, RoomID: req.RoomID, Room: &wire.RoomEvent{RoomID: req.RoomID}}
	case wire.RequestLeaveRoom:
		reply = &wire.Event{Type: wire.EventLeftRoom, RoomID: req.RoomID, Room: &wire.RoomEvent{RoomID: req.RoomID}}
	case wire.RequestJoinPresence:
		s.mu.Lock()
		online := slices.Clone(s.opts.Online)
		s.mu.Unlock()
		reply = &wire.Event{Type: wire.EventPresenceList, Presence: online}
	case wire.RequestSendMessage:
		if !s.opts.EchoSends || req.SendMessage == nil {
			return
		}
		msg := req.SendMessage.Message
		msg.ID = s.nextID("srv")
		msg.ReceiverID = req.SendMessage.TargetUserID
		reply = &wire.Event{Type: wire.EventNewMessage, RoomID: req.RoomID, Message: &msg}
	}

	if reply == nil {
		return
	}
	b, err := wire.EncodeEvent(*reply)
	if err != nil {
		return
	}
	_ = s.write(conn, b)
}

func (s *Server) nextID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func peerParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "peerId"), 10, 64)
	return id, err == nil
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	peer, ok := peerParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad peer id"})
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.restSends = append(s.restSends, RestSend{PeerID: peer, Body: body})
	status := s.opts.SendStatus
	s.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": "send rejected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": s.nextID("srv")})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	peer, ok := peerParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad peer id"})
		return
	}

	s.mu.Lock()
	s.historyCalls = append(s.historyCalls, peer)
	status := s.opts.HistoryStatus
	msgs := slices.Clone(s.history[peer])
	s.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": "history unavailable"})
		return
	}

	if before, err := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64); err == nil && before > 0 {
		msgs = slices.DeleteFunc(msgs, func(m domain.ChatMessage) bool { return m.Timestamp >= before })
	}
	slices.SortFunc(msgs, func(a, b domain.ChatMessage) int { return int(b.Timestamp - a.Timestamp) })

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hasMore := false
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
		hasMore = true
	}

	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageJSON(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out, "hasMore": hasMore, "count": len(out)})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	convs := slices.Clone(s.conversations)
	s.mu.Unlock()

	out := make([]map[string]any, 0, len(convs))
	for _, c := range convs {
		item := map[string]any{
			"peer":        userJSON(c.Peer),
			"unreadCount": c.UnreadCount,
		}
		if c.LastMessage != nil {
			item["lastMessage"] = messageJSON(*c.LastMessage)
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	peer, ok := peerParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad peer id"})
		return
	}

	s.mu.Lock()
	s.marked = append(s.marked, peer)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) uploadMedia(w http.ResponseWriter, r *http.Request) {
	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	defer f.Close()
	_, _ = io.Copy(io.Discard, f)

	s.mu.Lock()
	s.uploads = append(s.uploads, header.Filename)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"url": "https://cdn.test/" + header.Filename})
}

// messageJSON mimics the backend, which sends ids as strings.
func messageJSON(m domain.ChatMessage) map[string]any {
	return map[string]any{
		"id":         m.ID,
		"senderId":   strconv.FormatInt(m.SenderID, 10),
		"receiverId": strconv.FormatInt(m.ReceiverID, 10),
		"sender":     userJSON(m.Sender),
		"body":       m.Body,
		"timestamp":  m.Timestamp,
		"kind":       m.Kind.String(),
		"media":      m.Media,
		"audio":      m.Audio,
	}
}

func userJSON(u domain.UserDisplay) map[string]any {
	out := map[string]any{
		"id":       strconv.FormatInt(u.ID, 10),
		"username": u.Username,
		"fullName": u.FullName,
		"avatar":   "",
	}
	if u.Avatar != nil {
		out["avatar"] = *u.Avatar
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WSURL is the socket endpoint of the server with token appended.
func (s *Server) WSURL() string {
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	if s.opts.Token != "" {
		u += "?token=" + s.opts.Token
	}
	return u
}
