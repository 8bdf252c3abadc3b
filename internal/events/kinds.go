package events

// Inbound event kinds, sent by clients.
const (
	JoinServer           = "join_server"
	JoinChannel          = "join_channel"
	SendMessage          = "send_message"
	CreateServer         = "create_server"
	UpdateServerSettings = "update_server_settings"
	CreateRole           = "create_role"
	AssignRole           = "assign_role"
	CreateChannel        = "create_channel"
	GenerateInvite       = "generate_invite"
	JoinViaInvite        = "join_via_invite"
	JoinVoice            = "join_voice"
	LeaveVoice           = "leave_voice"
	UpdateProfile        = "update_profile"
	SendFriendRequest    = "send_friend_request"
	AcceptFriendRequest  = "accept_friend_request"
	RejectFriendRequest  = "reject_friend_request"
	RemoveFriend         = "remove_friend"
	BoostServer          = "boost_server"
	Typing               = "typing"
)

// Outbound event kinds, pushed to sessions.
const (
	SyncUsers            = "sync_users"
	UserRegistered       = "user_registered"
	UserUpdated          = "user_updated"
	UserStatusChange     = "user_status_change"
	SyncServers          = "sync_servers"
	ServerJoined         = "server_joined"
	ServerUpdated        = "server_updated"
	SyncDMs              = "sync_dms"
	NewDMOpened          = "new_dm_opened"
	ReceiveMessage       = "receive_message"
	ChannelHistory       = "channel_history"
	InviteGenerated      = "invite_generated"
	SyncFriendRequests   = "sync_friend_requests"
	NewFriendRequest     = "new_friend_request"
	FriendRequestUpdated = "friend_request_updated"
	FriendListUpdated    = "friend_list_updated"
	DisplayTyping        = "display_typing"
	Error                = "error"
)

// ErrorKind classifies a failed event on the wire.
type ErrorKind string

const (
	ErrorAuthorization ErrorKind = "authorization"
	ErrorNotFound      ErrorKind = "not_found"
	ErrorValidation    ErrorKind = "validation"
	ErrorInternal      ErrorKind = "internal"
)
