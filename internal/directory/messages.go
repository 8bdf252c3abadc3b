package directory

import (
	"slices"

	"desacordo-backend/internal/models"
)

// channelExistsLocked accepts server channels and DM rooms whose two
// participants are known users.
func (s *Store) channelExistsLocked(channelID string) bool {
	if _, ok := s.channelServer[channelID]; ok {
		return true
	}
	a, b, ok := models.ParseDMChannelID(channelID)
	if !ok {
		return false
	}
	_, aExists := s.users[a]
	_, bExists := s.users[b]
	return aExists && bExists
}

// RecordMessage appends msg to its channel. The store issues the message ID
// and a timestamp that never goes below the channel's previous message.
func (s *Store) RecordMessage(msg models.Message) (models.Message, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.channelExistsLocked(msg.ChannelID) {
		return models.Message{}, ErrNotFound
	}
	if _, ok := s.users[msg.SenderID]; !ok {
		return models.Message{}, ErrNotFound
	}

	id, err := s.ids.NewID()
	if err != nil {
		return models.Message{}, err
	}
	msg.ID = id
	msg.Sender = nil

	msg.Timestamp = s.now().UTC()
	history := s.messages[msg.ChannelID]
	if n := len(history); n > 0 && msg.Timestamp.Before(history[n-1].Timestamp) {
		msg.Timestamp = history[n-1].Timestamp
	}

	attachments := make([]models.Attachment, len(msg.Attachments))
	for i, attachment := range msg.Attachments {
		if attachment.ID == "" {
			attachmentID, err := s.ids.NewID()
			if err != nil {
				return models.Message{}, err
			}
			attachment.ID = attachmentID
		}
		attachments[i] = attachment
	}
	msg.Attachments = attachments

	s.messages[msg.ChannelID] = append(history, msg)

	return msg, nil
}

// ListMessages returns the channel history in commit order, which is also
// ascending timestamp order.
func (s *Store) ListMessages(channelID string) []models.Message {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	history := slices.Clone(s.messages[channelID])
	if history == nil {
		history = []models.Message{}
	}
	return history
}

// UpsertOpenDM records that userID has the DM with recipientID open.
// It reports whether the record is new.
func (s *Store) UpsertOpenDM(userID, recipientID, channelID string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.users[userID]; !ok {
		return false, ErrNotFound
	}
	if _, ok := s.users[recipientID]; !ok {
		return false, ErrNotFound
	}
	if channelID != models.DMChannelID(userID, recipientID) {
		return false, ErrWrongChannelType
	}

	if slices.Contains(s.openDMs[userID], channelID) {
		return false, nil
	}
	s.openDMs[userID] = append(s.openDMs[userID], channelID)
	return true, nil
}

// OpenDMs returns userID's open DM channels, newest first, named after the
// other participant's current username.
func (s *Store) OpenDMs(userID string) []models.Channel {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	open := s.openDMs[userID]
	channels := make([]models.Channel, 0, len(open))
	for i := len(open) - 1; i >= 0; i-- {
		channels = append(channels, s.dmChannelLocked(open[i], userID))
	}
	return channels
}

// DMChannel builds the DM channel object as seen by userID.
func (s *Store) DMChannel(channelID, userID string) (models.Channel, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if _, ok := models.OtherParticipant(channelID, userID); !ok {
		return models.Channel{}, ErrNotFound
	}
	return s.dmChannelLocked(channelID, userID), nil
}

func (s *Store) dmChannelLocked(channelID, userID string) models.Channel {
	recipientID, _ := models.OtherParticipant(channelID, userID)
	name := recipientID
	if recipient, ok := s.users[recipientID]; ok {
		name = recipient.UserName
	}
	return models.Channel{
		ID:          channelID,
		Name:        name,
		Type:        models.ChannelTypeDM,
		RecipientID: recipientID,
	}
}

// ---- friends ----

func pairKey(a, b string) string {
	return models.DMChannelID(a, b)
}

func samePair(req *models.FriendRequest, a, b string) bool {
	return pairKey(req.FromUserID, req.ToUserID) == pairKey(a, b)
}

func (s *Store) CreateFriendRequest(fromUserID, toUserID string) (models.FriendRequest, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if fromUserID == toUserID {
		return models.FriendRequest{}, ErrSelfRequest
	}
	from, ok := s.users[fromUserID]
	if !ok {
		return models.FriendRequest{}, ErrNotFound
	}
	if _, ok := s.users[toUserID]; !ok {
		return models.FriendRequest{}, ErrNotFound
	}
	if slices.Contains(from.FriendIDs, toUserID) {
		return models.FriendRequest{}, ErrAlreadyFriends
	}
	for _, id := range s.requestOrder {
		req := s.requests[id]
		if req.Status != models.FriendRequestRejected && samePair(req, fromUserID, toUserID) {
			return models.FriendRequest{}, ErrDuplicateRequest
		}
	}

	id, err := s.ids.NewID()
	if err != nil {
		return models.FriendRequest{}, err
	}
	req := &models.FriendRequest{
		ID:         id,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     models.FriendRequestPending,
	}
	s.requests[id] = req
	s.requestOrder = append(s.requestOrder, id)

	return *req, nil
}

// AcceptFriendRequest makes the two users friends. Only the addressee may
// accept. Accepting an already accepted request changes nothing.
func (s *Store) AcceptFriendRequest(requestID, userID string) (models.User, models.User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return models.User{}, models.User{}, ErrNotFound
	}
	if req.ToUserID != userID {
		return models.User{}, models.User{}, ErrNotAddressee
	}
	if req.Status == models.FriendRequestRejected {
		return models.User{}, models.User{}, ErrRequestClosed
	}

	from, fromOK := s.users[req.FromUserID]
	to, toOK := s.users[req.ToUserID]
	if !fromOK || !toOK {
		return models.User{}, models.User{}, ErrNotFound
	}

	req.Status = models.FriendRequestAccepted
	if !slices.Contains(from.FriendIDs, to.ID) {
		from.FriendIDs = append(from.FriendIDs, to.ID)
	}
	if !slices.Contains(to.FriendIDs, from.ID) {
		to.FriendIDs = append(to.FriendIDs, from.ID)
	}

	return from.Clone(), to.Clone(), nil
}

// RejectFriendRequest closes a pending request. The addressee rejects it,
// the sender may withdraw it.
func (s *Store) RejectFriendRequest(requestID, userID string) (models.FriendRequest, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return models.FriendRequest{}, ErrNotFound
	}
	if req.ToUserID != userID && req.FromUserID != userID {
		return models.FriendRequest{}, ErrNotAddressee
	}
	if req.Status != models.FriendRequestPending {
		return models.FriendRequest{}, ErrRequestClosed
	}

	req.Status = models.FriendRequestRejected
	return *req, nil
}

// RemoveFriend ends the friendship on both sides and forgets the request
// that created it, so either side may send a new one later.
func (s *Store) RemoveFriend(userID, friendID string) (models.User, models.User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return models.User{}, models.User{}, ErrNotFound
	}
	friend, ok := s.users[friendID]
	if !ok {
		return models.User{}, models.User{}, ErrNotFound
	}
	if !slices.Contains(user.FriendIDs, friendID) {
		return models.User{}, models.User{}, ErrNotFound
	}

	user.FriendIDs = slices.DeleteFunc(user.FriendIDs, func(id string) bool { return id == friendID })
	friend.FriendIDs = slices.DeleteFunc(friend.FriendIDs, func(id string) bool { return id == userID })

	s.requestOrder = slices.DeleteFunc(s.requestOrder, func(id string) bool {
		if samePair(s.requests[id], userID, friendID) {
			delete(s.requests, id)
			return true
		}
		return false
	})

	return user.Clone(), friend.Clone(), nil
}

// ListPendingRequestsFor returns the pending requests addressed to userID.
func (s *Store) ListPendingRequestsFor(userID string) []models.FriendRequest {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	pending := []models.FriendRequest{}
	for _, id := range s.requestOrder {
		req := s.requests[id]
		if req.ToUserID == userID && req.Status == models.FriendRequestPending {
			pending = append(pending, *req)
		}
	}
	return pending
}
