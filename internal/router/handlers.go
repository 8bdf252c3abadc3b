package router

import (
	"strings"

	"desacordo-backend/internal/directory"
	"desacordo-backend/internal/events"
	"desacordo-backend/internal/models"
	"desacordo-backend/internal/rooms"
)

// resync answers a repeated join_server with a fresh personalized view.
func (r *Router) resync(s session, _ events.Inbound) error {
	r.pushSync(s)
	return nil
}

// authorizeChannel checks that userID may read from and post to channelID.
// For server channels it returns the channel; DM rooms yield the peer's id.
func (r *Router) authorizeChannel(channelID, userID string) (models.Channel, string, error) {
	if models.IsDMChannelID(channelID) {
		peerID, ok := models.OtherParticipant(channelID, userID)
		if !ok {
			return models.Channel{}, "", ErrNotParticipant
		}
		if _, err := r.store.GetUser(peerID); err != nil {
			return models.Channel{}, "", err
		}
		return models.Channel{ID: channelID, Type: models.ChannelTypeDM}, peerID, nil
	}

	channel, server, err := r.store.FindChannel(channelID)
	if err != nil {
		return models.Channel{}, "", err
	}
	if !server.IsMember(userID) {
		return models.Channel{}, "", directory.ErrNotMember
	}
	return channel, "", nil
}

// joinChannel subscribes the session to the room. Rooms joined earlier
// stay joined. Text and DM rooms answer with their history.
func (r *Router) joinChannel(s session, event events.Inbound) error {
	ev := event.(*events.JoinChannelEvent)

	channel, _, err := r.authorizeChannel(ev.ChannelID, s.userID)
	if err != nil {
		return err
	}

	r.rooms.Join(channel.ID, s.handle)

	if channel.Type == models.ChannelTypeVoice {
		return nil
	}
	history := r.hydrate(r.store.ListMessages(channel.ID))
	r.pushToSession(s.handle, events.ChannelHistory, events.History{ChannelID: channel.ID, Messages: history})
	return nil
}

func (r *Router) sendMessage(s session, event events.Inbound) error {
	ev := event.(*events.SendMessageEvent)

	if ev.SenderID != "" && ev.SenderID != s.userID {
		return ErrImpersonation
	}
	if strings.TrimSpace(ev.Content) == "" && len(ev.Attachments) == 0 {
		return events.ErrInvalidPayload
	}

	channel, peerID, err := r.authorizeChannel(ev.ChannelID, s.userID)
	if err != nil {
		return err
	}
	if channel.Type == models.ChannelTypeVoice {
		return directory.ErrWrongChannelType
	}

	msg, err := r.store.RecordMessage(models.Message{
		Content:     ev.Content,
		SenderID:    s.userID,
		ChannelID:   channel.ID,
		Attachments: ev.Attachments,
	})
	if err != nil {
		return err
	}

	if channel.Type == models.ChannelTypeDM {
		if err := r.openDM(s.userID, peerID, channel.ID); err != nil {
			return err
		}
		if peerID != s.userID {
			if err := r.openDM(peerID, s.userID, channel.ID); err != nil {
				return err
			}
		}
	}

	hydrated := r.hydrate([]models.Message{msg})[0]
	r.broadcast(channel.ID, events.ReceiveMessage, hydrated)
	return nil
}

// openDM records the open DM for userID and tells all of their sessions the
// first time it happens.
func (r *Router) openDM(userID, recipientID, channelID string) error {
	created, err := r.store.UpsertOpenDM(userID, recipientID, channelID)
	if err != nil || !created {
		return err
	}

	dm, err := r.store.DMChannel(channelID, userID)
	if err != nil {
		return err
	}
	r.pushToUser(userID, events.NewDMOpened, dm)
	return nil
}

func (r *Router) createServer(s session, event events.Inbound) error {
	ev := event.(*events.CreateServerEvent)

	server, err := r.store.CreateServer(s.userID, strings.TrimSpace(ev.Name), ev.IconURL)
	if err != nil {
		return err
	}

	r.sugar.Infof("User [%s] created server [%s]", s.userID, server.ID)
	r.pushToUser(s.userID, events.ServerJoined, server)
	return nil
}

// requirePermission loads the server and checks perm for userID.
func (r *Router) requirePermission(serverID, userID string, perm models.Permissions) error {
	server, err := r.store.GetServer(serverID)
	if err != nil {
		return err
	}
	if !directory.HasPermission(server, userID, perm) {
		return ErrForbidden
	}
	return nil
}

func (r *Router) updateServerSettings(s session, event events.Inbound) error {
	ev := event.(*events.UpdateServerSettingsEvent)

	if err := r.requirePermission(ev.ServerID, s.userID, models.PermManageServer); err != nil {
		return err
	}
	server, err := r.store.UpdateServer(ev.ServerID, ev.Updates)
	if err != nil {
		return err
	}

	r.pushServerUpdate(server)
	return nil
}

func (r *Router) createRole(s session, event events.Inbound) error {
	ev := event.(*events.CreateRoleEvent)

	if err := r.requirePermission(ev.ServerID, s.userID, models.PermManageServer); err != nil {
		return err
	}
	server, _, err := r.store.AddRole(ev.ServerID, models.Role{
		Name:        ev.Role.Name,
		Color:       ev.Role.Color,
		Permissions: ev.Role.Permissions,
	})
	if err != nil {
		return err
	}

	r.pushServerUpdate(server)
	return nil
}

// assignRole toggles the role on the target member.
func (r *Router) assignRole(s session, event events.Inbound) error {
	ev := event.(*events.AssignRoleEvent)

	if err := r.requirePermission(ev.ServerID, s.userID, models.PermManageServer); err != nil {
		return err
	}
	server, err := r.store.ToggleUserRole(ev.ServerID, ev.TargetUserID, ev.RoleID)
	if err != nil {
		return err
	}

	r.pushServerUpdate(server)
	return nil
}

func (r *Router) createChannel(s session, event events.Inbound) error {
	ev := event.(*events.CreateChannelEvent)

	if err := r.requirePermission(ev.ServerID, s.userID, models.PermManageChannels); err != nil {
		return err
	}
	server, _, err := r.store.AddChannel(ev.ServerID, models.Channel{
		Name: strings.TrimSpace(ev.ChannelName),
		Type: ev.Type,
	})
	if err != nil {
		return err
	}

	r.pushServerUpdate(server)
	return nil
}

func (r *Router) generateInvite(s session, event events.Inbound) error {
	ev := event.(*events.GenerateInviteEvent)

	invite, err := r.store.CreateInvite(ev.ServerID, s.userID)
	if err != nil {
		return err
	}

	r.pushToSession(s.handle, events.InviteGenerated, invite)
	return nil
}

// joinViaInvite only tells the redeemer; other members see the new member
// in their next server sync.
func (r *Router) joinViaInvite(s session, event events.Inbound) error {
	ev := event.(*events.JoinViaInviteEvent)

	server, err := r.store.ConsumeInvite(strings.TrimSpace(ev.Code), s.userID)
	if err != nil {
		return err
	}

	r.sugar.Infof("User [%s] joined server [%s] via invite", s.userID, server.ID)
	r.pushToUser(s.userID, events.ServerJoined, server)
	return nil
}

func (r *Router) voice(s session, event events.Inbound) error {
	ev := event.(*events.VoiceEvent)

	if !ev.Leave() {
		server, err := r.store.JoinVoice(ev.ServerID, ev.ChannelID, s.userID)
		if err != nil {
			return err
		}
		r.pushServerUpdate(server)
		return nil
	}

	server, changed, err := r.store.LeaveVoice(ev.ServerID, ev.ChannelID, s.userID)
	if err != nil {
		return err
	}
	if changed {
		r.pushServerUpdate(server)
	}
	return nil
}

func (r *Router) updateProfile(s session, event events.Inbound) error {
	ev := event.(*events.UpdateProfileEvent)

	user, err := r.store.UpdateUser(s.userID, ev.Updates)
	if err != nil {
		return err
	}

	r.broadcast(rooms.Presence, events.UserUpdated, r.publicProfile(user))

	if r.profiles != nil {
		r.profiles.ProfileUpdated(user)
	}
	return nil
}

// sendFriendRequest reaches the addressee's live sessions; offline users
// get it with their next sync.
func (r *Router) sendFriendRequest(s session, event events.Inbound) error {
	ev := event.(*events.SendFriendRequestEvent)

	req, err := r.store.CreateFriendRequest(s.userID, ev.ToUserID)
	if err != nil {
		return err
	}

	r.pushToUser(req.ToUserID, events.NewFriendRequest, req)
	return nil
}

func (r *Router) replyFriendRequest(s session, event events.Inbound) error {
	ev := event.(*events.FriendRequestReplyEvent)

	if ev.Accept() {
		from, to, err := r.store.AcceptFriendRequest(ev.RequestID, s.userID)
		if err != nil {
			return err
		}
		r.pushToUser(from.ID, events.FriendListUpdated, from.FriendIDs)
		r.pushToUser(to.ID, events.FriendListUpdated, to.FriendIDs)
		return nil
	}

	req, err := r.store.RejectFriendRequest(ev.RequestID, s.userID)
	if err != nil {
		return err
	}
	r.pushToUser(req.FromUserID, events.FriendRequestUpdated, req)
	r.pushToUser(req.ToUserID, events.FriendRequestUpdated, req)
	return nil
}

func (r *Router) removeFriend(s session, event events.Inbound) error {
	ev := event.(*events.RemoveFriendEvent)

	user, friend, err := r.store.RemoveFriend(s.userID, ev.FriendID)
	if err != nil {
		return err
	}

	r.pushToUser(user.ID, events.FriendListUpdated, user.FriendIDs)
	r.pushToUser(friend.ID, events.FriendListUpdated, friend.FriendIDs)
	return nil
}

func (r *Router) boostServer(s session, event events.Inbound) error {
	ev := event.(*events.BoostServerEvent)

	server, err := r.store.BoostServer(ev.ServerID, s.userID)
	if err != nil {
		return err
	}

	r.pushServerUpdate(server)
	return nil
}

// typing is never stored and never followed by a "stopped" event; clients
// expire the indicator themselves.
func (r *Router) typing(s session, event events.Inbound) error {
	ev := event.(*events.TypingEvent)

	if _, _, err := r.authorizeChannel(ev.ChannelID, s.userID); err != nil {
		return err
	}
	user, err := r.store.GetUser(s.userID)
	if err != nil {
		return err
	}

	frame, ok := r.encode(events.DisplayTyping, events.TypingNotice{
		ChannelID: ev.ChannelID,
		UserID:    s.userID,
		UserName:  user.UserName,
	})
	if ok {
		r.rooms.BroadcastExcept(ev.ChannelID, frame, s.handle)
	}
	return nil
}
