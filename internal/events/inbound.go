package events

import (
	"encoding/json"

	"desacordo-backend/internal/models"
)

// Inbound is one decoded client event. Each kind has its own payload type.
type Inbound interface {
	Kind() string
}

// Identified is implemented by payloads that name the acting user; the
// router rejects them when the id is not the session's own.
type Identified interface {
	ActorID() string
}

type JoinServerEvent struct {
	UserID   string `json:"id" validate:"required"`
	UserName string `json:"username"`
}

// JoinChannelEvent accepts both a bare JSON string and {"channelId": ...}.
type JoinChannelEvent struct {
	ChannelID string `json:"channelId" validate:"required"`
}

func (e *JoinChannelEvent) UnmarshalJSON(data []byte) error {
	var channelID string
	if err := json.Unmarshal(data, &channelID); err == nil {
		e.ChannelID = channelID
		return nil
	}

	type plain JoinChannelEvent
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = JoinChannelEvent(p)
	return nil
}

type SendMessageEvent struct {
	ChannelID   string              `json:"channelId" validate:"required"`
	SenderID    string              `json:"senderId"`
	Content     string              `json:"content" validate:"required_without=Attachments,max=4000"`
	Attachments []models.Attachment `json:"attachments" validate:"max=10,dive"`
}

type CreateServerEvent struct {
	Name    string `json:"name" validate:"required,max=100"`
	OwnerID string `json:"ownerId" validate:"required"`
	IconURL string `json:"iconUrl"`
}

type UpdateServerSettingsEvent struct {
	ServerID string              `json:"serverId" validate:"required"`
	UserID   string              `json:"userId" validate:"required"`
	Updates  models.ServerUpdate `json:"updates"`
}

type RoleDraft struct {
	Name        string             `json:"name" validate:"required,max=32"`
	Color       string             `json:"color"`
	Permissions models.Permissions `json:"permissions"`
}

type CreateRoleEvent struct {
	ServerID string    `json:"serverId" validate:"required"`
	UserID   string    `json:"userId" validate:"required"`
	Role     RoleDraft `json:"role"`
}

type AssignRoleEvent struct {
	ServerID     string `json:"serverId" validate:"required"`
	UserID       string `json:"userId" validate:"required"`
	TargetUserID string `json:"targetUserId" validate:"required"`
	RoleID       string `json:"roleId" validate:"required"`
}

type CreateChannelEvent struct {
	ServerID    string             `json:"serverId" validate:"required"`
	ChannelName string             `json:"channelName" validate:"required,max=100"`
	Type        models.ChannelType `json:"type" validate:"oneof=TEXT VOICE"`
	UserID      string             `json:"userId" validate:"required"`
}

type GenerateInviteEvent struct {
	ServerID string `json:"serverId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
}

type JoinViaInviteEvent struct {
	Code   string `json:"code" validate:"required,max=32"`
	UserID string `json:"userId" validate:"required"`
}

type VoiceEvent struct {
	ServerID  string `json:"serverId" validate:"required"`
	ChannelID string `json:"channelId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	leave     bool
}

type UpdateProfileEvent struct {
	UserID  string            `json:"userId" validate:"required"`
	Updates models.UserUpdate `json:"updates"`
}

type SendFriendRequestEvent struct {
	FromUserID string `json:"fromUserId" validate:"required"`
	ToUserID   string `json:"toUserId" validate:"required"`
}

type FriendRequestReplyEvent struct {
	RequestID string `json:"requestId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	accept    bool
}

type RemoveFriendEvent struct {
	UserID   string `json:"userId" validate:"required"`
	FriendID string `json:"friendId" validate:"required"`
}

type BoostServerEvent struct {
	ServerID string `json:"serverId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
}

type TypingEvent struct {
	ChannelID string `json:"channelId" validate:"required"`
	UserName  string `json:"username"`
}

func (*JoinServerEvent) Kind() string           { return JoinServer }
func (*JoinChannelEvent) Kind() string          { return JoinChannel }
func (*SendMessageEvent) Kind() string          { return SendMessage }
func (*CreateServerEvent) Kind() string         { return CreateServer }
func (*UpdateServerSettingsEvent) Kind() string { return UpdateServerSettings }
func (*CreateRoleEvent) Kind() string           { return CreateRole }
func (*AssignRoleEvent) Kind() string           { return AssignRole }
func (*CreateChannelEvent) Kind() string        { return CreateChannel }
func (*GenerateInviteEvent) Kind() string       { return GenerateInvite }
func (*JoinViaInviteEvent) Kind() string        { return JoinViaInvite }
func (*UpdateProfileEvent) Kind() string        { return UpdateProfile }
func (*SendFriendRequestEvent) Kind() string    { return SendFriendRequest }
func (*RemoveFriendEvent) Kind() string         { return RemoveFriend }
func (*BoostServerEvent) Kind() string          { return BoostServer }
func (*TypingEvent) Kind() string               { return Typing }

func (e *VoiceEvent) Kind() string {
	if e.leave {
		return LeaveVoice
	}
	return JoinVoice
}

// Leave reports whether this is a leave_voice event.
func (e *VoiceEvent) Leave() bool { return e.leave }

func (e *FriendRequestReplyEvent) Kind() string {
	if e.accept {
		return AcceptFriendRequest
	}
	return RejectFriendRequest
}

// Accept reports whether this is an accept_friend_request event.
func (e *FriendRequestReplyEvent) Accept() bool { return e.accept }

func (e *JoinServerEvent) ActorID() string           { return e.UserID }
func (e *CreateServerEvent) ActorID() string         { return e.OwnerID }
func (e *UpdateServerSettingsEvent) ActorID() string { return e.UserID }
func (e *CreateRoleEvent) ActorID() string           { return e.UserID }
func (e *AssignRoleEvent) ActorID() string           { return e.UserID }
func (e *CreateChannelEvent) ActorID() string        { return e.UserID }
func (e *GenerateInviteEvent) ActorID() string       { return e.UserID }
func (e *JoinViaInviteEvent) ActorID() string        { return e.UserID }
func (e *VoiceEvent) ActorID() string                { return e.UserID }
func (e *UpdateProfileEvent) ActorID() string        { return e.UserID }
func (e *SendFriendRequestEvent) ActorID() string    { return e.FromUserID }
func (e *FriendRequestReplyEvent) ActorID() string   { return e.UserID }
func (e *RemoveFriendEvent) ActorID() string         { return e.UserID }
func (e *BoostServerEvent) ActorID() string          { return e.UserID }

// SendMessageEvent and TypingEvent may omit the actor; the router fills it in.

var inboundKinds = map[string]func() Inbound{
	JoinServer:           func() Inbound { return &JoinServerEvent{} },
	JoinChannel:          func() Inbound { return &JoinChannelEvent{} },
	SendMessage:          func() Inbound { return &SendMessageEvent{} },
	CreateServer:         func() Inbound { return &CreateServerEvent{} },
	UpdateServerSettings: func() Inbound { return &UpdateServerSettingsEvent{} },
	CreateRole:           func() Inbound { return &CreateRoleEvent{} },
	AssignRole:           func() Inbound { return &AssignRoleEvent{} },
	CreateChannel:        func() Inbound { return &CreateChannelEvent{} },
	GenerateInvite:       func() Inbound { return &GenerateInviteEvent{} },
	JoinViaInvite:        func() Inbound { return &JoinViaInviteEvent{} },
	JoinVoice:            func() Inbound { return &VoiceEvent{} },
	LeaveVoice:           func() Inbound { return &VoiceEvent{leave: true} },
	UpdateProfile:        func() Inbound { return &UpdateProfileEvent{} },
	SendFriendRequest:    func() Inbound { return &SendFriendRequestEvent{} },
	AcceptFriendRequest:  func() Inbound { return &FriendRequestReplyEvent{accept: true} },
	RejectFriendRequest:  func() Inbound { return &FriendRequestReplyEvent{} },
	RemoveFriend:         func() Inbound { return &RemoveFriendEvent{} },
	BoostServer:          func() Inbound { return &BoostServerEvent{} },
	Typing:               func() Inbound { return &TypingEvent{} },
}

// InboundKinds lists every kind Decode accepts.
func InboundKinds() []string {
	kinds := make([]string, 0, len(inboundKinds))
	for kind := range inboundKinds {
		kinds = append(kinds, kind)
	}
	return kinds
}
