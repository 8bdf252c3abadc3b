// Package presence tracks which live sessions belong to which user and
// derives online status from that: a user is online while at least one of
// their sessions is connected.
package presence

import (
	"slices"
	"sync"

	"desacordo-backend/internal/models"
)

type Tracker struct {
	mutex     sync.RWMutex
	bySession map[string]string
	byUser    map[string]map[string]struct{}
}

func New() *Tracker {
	return &Tracker{
		bySession: make(map[string]string),
		byUser:    make(map[string]map[string]struct{}),
	}
}

// MarkOnline registers sessionHandle for userID and reports whether it is the
// user's first live session. Registering the same handle twice is harmless.
func (t *Tracker) MarkOnline(userID, sessionHandle string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if owner, ok := t.bySession[sessionHandle]; ok {
		if owner == userID {
			return false
		}
		t.removeLocked(sessionHandle)
	}

	sessions := t.byUser[userID]
	first := len(sessions) == 0
	if sessions == nil {
		sessions = make(map[string]struct{})
		t.byUser[userID] = sessions
	}
	sessions[sessionHandle] = struct{}{}
	t.bySession[sessionHandle] = userID

	return first
}

// MarkOffline forgets sessionHandle. ok is false for unknown handles;
// wasLast is true when the user has no sessions left.
func (t *Tracker) MarkOffline(sessionHandle string) (userID string, wasLast bool, ok bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	userID, ok = t.bySession[sessionHandle]
	if !ok {
		return "", false, false
	}
	wasLast = t.removeLocked(sessionHandle)
	return userID, wasLast, true
}

func (t *Tracker) removeLocked(sessionHandle string) bool {
	userID := t.bySession[sessionHandle]
	delete(t.bySession, sessionHandle)

	sessions := t.byUser[userID]
	delete(sessions, sessionHandle)
	if len(sessions) == 0 {
		delete(t.byUser, userID)
		return true
	}
	return false
}

func (t *Tracker) IsOnline(userID string) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return len(t.byUser[userID]) > 0
}

func (t *Tracker) Status(userID string) string {
	if t.IsOnline(userID) {
		return models.StatusOnline
	}
	return models.StatusOffline
}

// Sessions returns the live session handles of userID in a stable order.
func (t *Tracker) Sessions(userID string) []string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	handles := make([]string, 0, len(t.byUser[userID]))
	for handle := range t.byUser[userID] {
		handles = append(handles, handle)
	}
	slices.Sort(handles)
	return handles
}

// OnlineUsers is the number of users with at least one live session.
func (t *Tracker) OnlineUsers() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return len(t.byUser)
}

// SessionCount is the number of live sessions across all users.
func (t *Tracker) SessionCount() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return len(t.bySession)
}
