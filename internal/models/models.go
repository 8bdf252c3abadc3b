package models

import (
	"slices"
	"time"
)

type User struct {
	ID        string   `json:"id"`
	UserName  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	AvatarURL string   `json:"avatarUrl"`
	BannerURL string   `json:"bannerUrl,omitempty"`
	Bio       string   `json:"bio,omitempty"`
	Color     string   `json:"color,omitempty"`
	FriendIDs []string `json:"friendIds"`
	IsBot     bool     `json:"isBot"`
	IsNitro   bool     `json:"isNitro"`
	Status    string   `json:"status,omitempty"` // filled at delivery time, never stored
}

// UserUpdate carries the profile fields a user may change; nil means keep.
type UserUpdate struct {
	UserName  *string `json:"username,omitempty" validate:"omitempty,min=2,max=32"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
	BannerURL *string `json:"bannerUrl,omitempty"`
	Bio       *string `json:"bio,omitempty" validate:"omitempty,max=190"`
	Color     *string `json:"color,omitempty"`
	IsNitro   *bool   `json:"isNitro,omitempty"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type Role struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Color       string      `json:"color"`
	Permissions Permissions `json:"permissions"`
}

type Invite struct {
	Code      string `json:"code"`
	ServerID  string `json:"serverId"`
	CreatorID string `json:"creatorId"`
	Uses      int    `json:"uses"`
}

type Server struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	IconURL    string              `json:"iconUrl"`
	OwnerID    string              `json:"ownerId"`
	MemberIDs  []string            `json:"memberIds"`
	Channels   []Channel           `json:"channels"`
	Roles      []Role              `json:"roles"`
	UserRoles  map[string][]string `json:"userRoles"`
	Invites    []Invite            `json:"invites"`
	BoostLevel int                 `json:"boostLevel"`
	VanityURL  string              `json:"vanityUrl,omitempty"`
}

// ServerUpdate carries the settings a manager may change; nil means keep.
type ServerUpdate struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	IconURL   *string `json:"iconUrl,omitempty"`
	VanityURL *string `json:"vanityUrl,omitempty" validate:"omitempty,max=32,alphanum"`
	Roles     []Role  `json:"roles,omitempty" validate:"omitempty,dive"`
}

const MaxBoostLevel = 3

func (s *Server) IsMember(userID string) bool {
	return slices.Contains(s.MemberIDs, userID)
}

func (s *Server) Channel(channelID string) (*Channel, bool) {
	for i := range s.Channels {
		if s.Channels[i].ID == channelID {
			return &s.Channels[i], true
		}
	}
	return nil, false
}

func (s *Server) Role(roleID string) (*Role, bool) {
	for i := range s.Roles {
		if s.Roles[i].ID == roleID {
			return &s.Roles[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers never share slices with the store.
func (s Server) Clone() Server {
	c := s
	c.MemberIDs = slices.Clone(s.MemberIDs)
	c.Channels = make([]Channel, len(s.Channels))
	for i, ch := range s.Channels {
		c.Channels[i] = ch.Clone()
	}
	c.Roles = slices.Clone(s.Roles)
	c.Invites = slices.Clone(s.Invites)
	c.UserRoles = make(map[string][]string, len(s.UserRoles))
	for userID, roleIDs := range s.UserRoles {
		c.UserRoles[userID] = slices.Clone(roleIDs)
	}
	return c
}

func (u User) Clone() User {
	c := u
	c.FriendIDs = slices.Clone(u.FriendIDs)
	if c.FriendIDs == nil {
		c.FriendIDs = []string{}
	}
	return c
}

type ChannelType string

const (
	ChannelTypeText  ChannelType = "TEXT"
	ChannelTypeVoice ChannelType = "VOICE"
	ChannelTypeDM    ChannelType = "DM"
)

type Channel struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Type             ChannelType `json:"type"`
	Description      string      `json:"description,omitempty"`
	ConnectedUserIDs []string    `json:"connectedUserIds,omitempty"`
	RecipientID      string      `json:"recipientId,omitempty"`
}

func (c Channel) Clone() Channel {
	c.ConnectedUserIDs = slices.Clone(c.ConnectedUserIDs)
	return c
}

type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
)

type Attachment struct {
	ID   string         `json:"id"`
	Type AttachmentType `json:"type" validate:"oneof=image video file"`
	URL  string         `json:"url" validate:"required"`
	Name string         `json:"name"`
	Size int64          `json:"size,omitempty"`
}

type Message struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	SenderID    string       `json:"senderId"`
	Sender      *User        `json:"sender,omitempty"` // hydrated on delivery
	Timestamp   time.Time    `json:"timestamp"`
	ChannelID   string       `json:"channelId"`
	Attachments []Attachment `json:"attachments"`
}

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

type FriendRequest struct {
	ID         string              `json:"id"`
	FromUserID string              `json:"fromUserId"`
	ToUserID   string              `json:"toUserId"`
	Status     FriendRequestStatus `json:"status"`
}

type ConfigFile struct {
	Address           string   `env:"CHAT_ADDRESS, overwrite"`
	Port              string   `env:"CHAT_PORT, overwrite"`
	BehindNginx       bool     `env:"CHAT_BEHIND_NGINX, overwrite"`
	TlsCert           string   `env:"CHAT_TLS_CERT, overwrite"`
	TlsKey            string   `env:"CHAT_TLS_KEY, overwrite"`
	PrintHttpRequests bool     `env:"CHAT_PRINT_HTTP_REQUESTS, overwrite"`
	LogToFile         bool     `env:"CHAT_LOG_TO_FILE, overwrite"`
	LogLevel          string   `env:"CHAT_LOG_LEVEL, overwrite"`
	JwtSecret         string   `env:"CHAT_JWT_SECRET, overwrite"`
	SnowflakeWorkerID int64    `env:"CHAT_SNOWFLAKE_WORKER_ID, overwrite"`
	SelfContained     bool     `env:"CHAT_SELF_CONTAINED, overwrite"`
	SqlitePath        string   `env:"CHAT_SQLITE_PATH, overwrite"`
	DbUser            string   `env:"CHAT_DB_USER, overwrite"`
	DbPassword        string   `env:"CHAT_DB_PASSWORD, overwrite"`
	DbAddress         string   `env:"CHAT_DB_ADDRESS, overwrite"`
	DbPort            string   `env:"CHAT_DB_PORT, overwrite"`
	DbDatabase        string   `env:"CHAT_DB_DATABASE, overwrite"`
	RedisAddress      string   `env:"CHAT_REDIS_ADDRESS, overwrite"`
	RedisPassword     string   `env:"CHAT_REDIS_PASSWORD, overwrite"`
	RedisDB           int      `env:"CHAT_REDIS_DB, overwrite"`
	AllowedOrigins    []string `env:"CHAT_ALLOWED_ORIGINS, overwrite"`
	MaxMessageSize    int64    `env:"CHAT_MAX_MESSAGE_SIZE, overwrite"`
	SendBufferSize    int      `env:"CHAT_SEND_BUFFER_SIZE, overwrite"`
	RateLimitBurst    int      `env:"CHAT_RATE_LIMIT_BURST, overwrite"`
	RateLimitInterval string   `env:"CHAT_RATE_LIMIT_INTERVAL, overwrite"`
	UploadDir         string   `env:"CHAT_UPLOAD_DIR, overwrite"`
	MaxUploadSize     int64    `env:"CHAT_MAX_UPLOAD_SIZE, overwrite"`

	RateLimitWindow time.Duration `json:"-"` // parsed from RateLimitInterval
}
