package chat

import (
	"context"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/hilthontt/quizchat/internal/infrastructure/wire"
	"github.com/hilthontt/quizchat/internal/infrastructure/ws"
)

type fakeTransport struct {
	mu       sync.Mutex
	open     bool
	sent     []wire.Request
	rooms    []string
	presence int
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) setOpen(open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = open
}

func (f *fakeTransport) Send(req wire.Request) error {
	if _, err := wire.EncodeRequest(req); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return ws.ErrNotConnected
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeTransport) JoinRoom(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.rooms, roomID) {
		f.rooms = append(f.rooms, roomID)
	}
	return nil
}

func (f *fakeTransport) JoinPresence() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence++
	return nil
}

func (f *fakeTransport) requests(t wire.RequestType) []wire.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []wire.Request
	for _, r := range f.sent {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeTransport) joined() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.rooms)
}

type restSend struct {
	peer int64
	msg  domain.ChatMessage
}

type historyCall struct {
	peer   int64
	limit  int
	before int64
}

type fakeBackend struct {
	mu           sync.Mutex
	sendID       string
	sendErr      error
	sends        []restSend
	history      map[int64]domain.History
	historyErr   error
	historyCalls []historyCall
	convs        []domain.Conversation
	marked       []int64
	uploads      []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{history: make(map[int64]domain.History)}
}

func (f *fakeBackend) SendMessage(_ context.Context, peer int64, msg domain.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, restSend{peer: peer, msg: msg})
	return f.sendID, f.sendErr
}

func (f *fakeBackend) History(_ context.Context, peer int64, limit int, before int64) (domain.History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls = append(f.historyCalls, historyCall{peer: peer, limit: limit, before: before})
	if f.historyErr != nil {
		return domain.History{}, f.historyErr
	}
	return f.history[peer], nil
}

func (f *fakeBackend) ListConversations(context.Context, int) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.convs), nil
}

func (f *fakeBackend) MarkRead(_ context.Context, peer int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, peer)
	return nil
}

func (f *fakeBackend) UploadMedia(_ context.Context, filename string, r io.Reader) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filename)
	return "https://cdn.test/" + filename, nil
}

func (f *fakeBackend) calls() []historyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.historyCalls)
}

// fakeScheduler fires timers only when the test advances its clock.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.at <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}
