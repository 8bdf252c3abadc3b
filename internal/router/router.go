// Package router is the application protocol state machine: it authorizes
// each inbound event against the directory, applies the mutation and fans
// the result out to the sessions that must see it.
//
// All events are handled under one mutex and every fan-out is queued before
// it is released, so sessions observe mutations in commit order.
package router

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"desacordo-backend/internal/directory"
	"desacordo-backend/internal/events"
	"desacordo-backend/internal/metrics"
	"desacordo-backend/internal/models"
	"desacordo-backend/internal/presence"
	"desacordo-backend/internal/rooms"
)

type session struct {
	handle string
	userID string
}

type handlerFunc func(s session, event events.Inbound) error

type Router struct {
	mutex    sync.Mutex
	sugar    *zap.SugaredLogger
	store    *directory.Store
	presence *presence.Tracker
	rooms    *rooms.Registry
	sessions rooms.Deliverer
	metrics  *metrics.Metrics
	handlers map[string]handlerFunc
	profiles ProfileListener
}

// ProfileListener is told about every committed profile change.
type ProfileListener interface {
	ProfileUpdated(user models.User)
}

// New wires a router. sessions delivers frames to single sessions and is
// normally the same gateway the room registry delivers through.
func New(sugar *zap.SugaredLogger, store *directory.Store, tracker *presence.Tracker, registry *rooms.Registry, sessions rooms.Deliverer, m *metrics.Metrics) *Router {
	r := &Router{
		sugar:    sugar,
		store:    store,
		presence: tracker,
		rooms:    registry,
		sessions: sessions,
		metrics:  m,
	}

	r.handlers = map[string]handlerFunc{
		events.JoinServer:           r.resync,
		events.JoinChannel:          r.joinChannel,
		events.SendMessage:          r.sendMessage,
		events.CreateServer:         r.createServer,
		events.UpdateServerSettings: r.updateServerSettings,
		events.CreateRole:           r.createRole,
		events.AssignRole:           r.assignRole,
		events.CreateChannel:        r.createChannel,
		events.GenerateInvite:       r.generateInvite,
		events.JoinViaInvite:        r.joinViaInvite,
		events.JoinVoice:            r.voice,
		events.LeaveVoice:           r.voice,
		events.UpdateProfile:        r.updateProfile,
		events.SendFriendRequest:    r.sendFriendRequest,
		events.AcceptFriendRequest:  r.replyFriendRequest,
		events.RejectFriendRequest:  r.replyFriendRequest,
		events.RemoveFriend:         r.removeFriend,
		events.BoostServer:          r.boostServer,
		events.Typing:               r.typing,
	}

	return r
}

// Identify moves a connected session to the identified state: it goes
// online, joins the presence room and receives its personalized view.
func (r *Router) Identify(sessionHandle, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, err := r.store.GetUser(userID); err != nil {
		return fmt.Errorf("identifying user [%s]: %w", userID, err)
	}

	first := r.presence.MarkOnline(userID, sessionHandle)
	r.rooms.Join(rooms.Presence, sessionHandle)
	r.updateGauges()

	r.sugar.Debugf("Session [%s] identified as user [%s]", sessionHandle, userID)

	if first {
		r.broadcast(rooms.Presence, events.UserStatusChange, events.StatusChange{UserID: userID, Status: models.StatusOnline})
	}

	r.pushSync(session{handle: sessionHandle, userID: userID})
	return nil
}

// Dispatch handles one decoded event of an identified session. A failing or
// panicking handler only produces an error event for that session.
func (r *Router) Dispatch(sessionHandle, userID string, event events.Inbound) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	kind := event.Kind()
	s := session{handle: sessionHandle, userID: userID}

	r.metrics.EventsTotal.WithLabelValues(kind).Inc()
	start := time.Now()
	defer func() {
		r.metrics.EventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	defer func() {
		if rec := recover(); rec != nil {
			r.sugar.Errorf("Handler for %s panicked: %v\n%s", kind, rec, debug.Stack())
			r.reject(s, kind, fmt.Errorf("panic: %v", rec))
		}
	}()

	if identified, ok := event.(events.Identified); ok && identified.ActorID() != userID {
		r.reject(s, kind, ErrImpersonation)
		return
	}

	handler, ok := r.handlers[kind]
	if !ok {
		r.reject(s, kind, events.ErrUnknownKind)
		return
	}

	if err := handler(s, event); err != nil {
		r.reject(s, kind, err)
	}
}

// Disconnect is the close path of a session. Presence goes offline only when
// the user's last session closes; that also empties the user's voice seats.
func (r *Router) Disconnect(sessionHandle string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.rooms.LeaveAll(sessionHandle)

	userID, wasLast, ok := r.presence.MarkOffline(sessionHandle)
	if !ok {
		return
	}
	r.updateGauges()

	r.sugar.Debugf("Session [%s] of user [%s] disconnected", sessionHandle, userID)

	if !wasLast {
		return
	}

	r.broadcast(rooms.Presence, events.UserStatusChange, events.StatusChange{UserID: userID, Status: models.StatusOffline})

	for _, server := range r.store.LeaveAllVoice(userID) {
		r.pushServerUpdate(server)
	}
}

func (r *Router) SetProfileListener(l ProfileListener) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.profiles = l
}

// UserRegistered announces a new account to everyone connected.
func (r *Router) UserRegistered(user models.User) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.broadcast(rooms.Presence, events.UserRegistered, r.publicProfile(user))
}

func (r *Router) reject(s session, kind string, err error) {
	errorKind := Classify(err)
	r.metrics.EventErrorsTotal.WithLabelValues(kind, string(errorKind)).Inc()

	if errorKind == events.ErrorInternal {
		r.sugar.Errorf("Event %s of user [%s] failed: %v", kind, s.userID, err)
	} else {
		r.sugar.Warnf("Event %s of user [%s] rejected: %v", kind, s.userID, err)
	}

	r.sessions.Deliver(s.handle, errorFrame(kind, err))
}

func (r *Router) updateGauges() {
	r.metrics.Sessions.Set(float64(r.presence.SessionCount()))
	r.metrics.OnlineUsers.Set(float64(r.presence.OnlineUsers()))
}

// ---- fan-out helpers ----

func (r *Router) encode(kind string, payload any) ([]byte, bool) {
	frame, err := events.Encode(kind, payload)
	if err != nil {
		r.sugar.Error(err)
		return nil, false
	}
	return frame, true
}

func (r *Router) pushToSession(sessionHandle, kind string, payload any) {
	if frame, ok := r.encode(kind, payload); ok {
		r.sessions.Deliver(sessionHandle, frame)
	}
}

// pushToUser delivers to every live session of userID; offline users get
// nothing.
func (r *Router) pushToUser(userID, kind string, payload any) {
	handles := r.presence.Sessions(userID)
	if len(handles) == 0 {
		return
	}
	frame, ok := r.encode(kind, payload)
	if !ok {
		return
	}
	for _, handle := range handles {
		r.sessions.Deliver(handle, frame)
	}
}

func (r *Router) broadcast(roomID, kind string, payload any) {
	if frame, ok := r.encode(kind, payload); ok {
		r.rooms.Broadcast(roomID, frame)
	}
}

// pushServerUpdate sends the server to every live session of every member,
// whatever room they are viewing.
func (r *Router) pushServerUpdate(server models.Server) {
	frame, ok := r.encode(events.ServerUpdated, server)
	if !ok {
		return
	}
	for _, memberID := range server.MemberIDs {
		for _, handle := range r.presence.Sessions(memberID) {
			r.sessions.Deliver(handle, frame)
		}
	}
}

// publicProfile strips private fields and annotates live status.
func (r *Router) publicProfile(user models.User) models.User {
	user.Email = ""
	user.Status = r.presence.Status(user.ID)
	return user
}

func (r *Router) pushSync(s session) {
	users := r.store.ListUsers()
	for i := range users {
		if users[i].ID == s.userID {
			users[i].Status = r.presence.Status(s.userID)
			continue
		}
		users[i] = r.publicProfile(users[i])
	}

	r.pushToSession(s.handle, events.SyncUsers, users)
	r.pushToSession(s.handle, events.SyncServers, r.store.ServersFor(s.userID))
	r.pushToSession(s.handle, events.SyncDMs, r.store.OpenDMs(s.userID))
	r.pushToSession(s.handle, events.SyncFriendRequests, r.store.ListPendingRequestsFor(s.userID))
}

// hydrate attaches the current sender profile to each message.
func (r *Router) hydrate(messages []models.Message) []models.Message {
	senders := make(map[string]*models.User)
	for i := range messages {
		senderID := messages[i].SenderID
		sender, ok := senders[senderID]
		if !ok {
			if user, err := r.store.GetUser(senderID); err == nil {
				profile := r.publicProfile(user)
				sender = &profile
			}
			senders[senderID] = sender
		}
		messages[i].Sender = sender
	}
	return messages
}
