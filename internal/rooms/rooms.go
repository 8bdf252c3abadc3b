// Package rooms keeps the room membership registry: which session handles
// are subscribed to which channel, DM or global room, and fan-out of a
// payload to every current member of a room.
package rooms

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Presence is the room every identified session joins; presence and
// profile changes are broadcast there. It can't collide with channel ids
// (prefixed "ch") or DM ids (two user ids joined by "_").
const Presence = "@presence"

// Deliverer pushes an encoded payload to one session. It returns false when
// the session is gone; late deliveries are dropped, never an error.
type Deliverer interface {
	Deliver(sessionHandle string, payload []byte) bool
}

type Registry struct {
	mutex       sync.RWMutex
	members     map[string]map[string]struct{}
	memberships map[string]map[string]struct{}
	deliverer   Deliverer
	sugar       *zap.SugaredLogger
}

func New(sugar *zap.SugaredLogger, deliverer Deliverer) *Registry {
	return &Registry{
		members:     make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
		deliverer:   deliverer,
		sugar:       sugar,
	}
}

// Join subscribes sessionHandle to roomID, creating the room on first join.
func (r *Registry) Join(roomID, sessionHandle string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	room := r.members[roomID]
	if room == nil {
		room = make(map[string]struct{})
		r.members[roomID] = room
	}
	room[sessionHandle] = struct{}{}

	joined := r.memberships[sessionHandle]
	if joined == nil {
		joined = make(map[string]struct{})
		r.memberships[sessionHandle] = joined
	}
	joined[roomID] = struct{}{}

	r.sugar.Debugf("Session [%s] joined room [%s]", sessionHandle, roomID)
}

// Leave unsubscribes sessionHandle from roomID. Leaving a room the session
// is not in does nothing.
func (r *Registry) Leave(roomID, sessionHandle string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.leaveLocked(roomID, sessionHandle)
}

func (r *Registry) leaveLocked(roomID, sessionHandle string) {
	if room, ok := r.members[roomID]; ok {
		delete(room, sessionHandle)
		// delete room from map if no session is subscribed to it
		if len(room) == 0 {
			delete(r.members, roomID)
		}
	}

	if joined, ok := r.memberships[sessionHandle]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.memberships, sessionHandle)
		}
	}
}

// LeaveAll removes sessionHandle from every room it joined.
func (r *Registry) LeaveAll(sessionHandle string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for roomID := range r.memberships[sessionHandle] {
		r.leaveLocked(roomID, sessionHandle)
	}
}

// MembersOf returns the sessions currently in roomID, sorted.
func (r *Registry) MembersOf(roomID string) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.snapshotLocked(roomID, "")
}

func (r *Registry) snapshotLocked(roomID, except string) []string {
	room := r.members[roomID]
	handles := make([]string, 0, len(room))
	for handle := range room {
		if handle != except {
			handles = append(handles, handle)
		}
	}
	slices.Sort(handles)
	return handles
}

// Broadcast delivers payload to every session in roomID at call time and
// returns how many sessions accepted it.
func (r *Registry) Broadcast(roomID string, payload []byte) int {
	return r.BroadcastExcept(roomID, payload, "")
}

// BroadcastExcept is Broadcast without the except session.
func (r *Registry) BroadcastExcept(roomID string, payload []byte, except string) int {
	r.mutex.RLock()
	handles := r.snapshotLocked(roomID, except)
	r.mutex.RUnlock()

	r.sugar.Debugf("Sending message to %d sessions in room [%s]", len(handles), roomID)

	delivered := 0
	for _, handle := range handles {
		if r.deliverer.Deliver(handle, payload) {
			delivered++
		} else {
			r.sugar.Debugf("Session [%s] in room [%s] is gone, skipping", handle, roomID)
		}
	}
	return delivered
}
