package ws

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

const roomPrefix = "chat_"

// RoomID derives the room two users share. Both sides compute the same id
// without negotiating: the lower user id always comes first.
func RoomID(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s%d_%d", roomPrefix, a, b)
}

// PeerFromRoomID returns the participant of roomID that is not local.
func PeerFromRoomID(roomID string, local int64) (int64, bool) {
	rest, ok := strings.CutPrefix(roomID, roomPrefix)
	if !ok {
		return 0, false
	}
	left, right, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, false
	}
	a, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return 0, false
	}
	b, err := strconv.ParseInt(right, 10, 64)
	if err != nil {
		return 0, false
	}

	switch local {
	case a:
		return b, true
	case b:
		return a, true
	default:
		return 0, false
	}
}

// Registry remembers which rooms and whether the presence channel the
// client asked to join, so they can be re-asserted after a reconnect.
type Registry struct {
	rooms    mapset.Set[string]
	presence bool
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: mapset.NewThreadUnsafeSet[string](),
	}
}

// Add reports whether roomID was not yet registered.
func (r *Registry) Add(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms.Add(roomID)
}

// Rooms returns the registered rooms in lexical order.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.rooms.ToSlice()
	slices.Sort(out)
	return out
}

// SetPresence reports whether the flag changed.
func (r *Registry) SetPresence(joined bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := r.presence != joined
	r.presence = joined
	return changed
}

func (r *Registry) Presence() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.presence
}
