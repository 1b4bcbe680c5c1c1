package chat

import (
	"sync"
	"time"
)

const (
	DefaultTypingExpiry = 3 * time.Second
	DefaultTypingIdle   = 2 * time.Second
)

type Timer interface {
	Stop() bool
}

// Scheduler runs f after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// peerTimers keeps at most one pending timer per peer. Rearming a peer
// replaces its timer; a replaced timer that already fired is ignored.
type peerTimers struct {
	sched Scheduler

	mu     sync.Mutex
	timers map[int64]*peerTimer
}

type peerTimer struct {
	timer Timer
}

func newPeerTimers(sched Scheduler) *peerTimers {
	return &peerTimers{
		sched:  sched,
		timers: make(map[int64]*peerTimer),
	}
}

func (p *peerTimers) Reset(peer int64, d time.Duration, f func()) {
	entry := &peerTimer{}

	p.mu.Lock()
	if old, ok := p.timers[peer]; ok {
		old.timer.Stop()
	}
	p.timers[peer] = entry
	entry.timer = p.sched.AfterFunc(d, func() {
		p.mu.Lock()
		if p.timers[peer] != entry {
			p.mu.Unlock()
			return
		}
		delete(p.timers, peer)
		p.mu.Unlock()

		f()
	})
	p.mu.Unlock()
}

func (p *peerTimers) Stop(peer int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.timers[peer]; ok {
		old.timer.Stop()
		delete(p.timers, peer)
	}
}

func (p *peerTimers) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for peer, t := range p.timers {
		t.timer.Stop()
		delete(p.timers, peer)
	}
}
