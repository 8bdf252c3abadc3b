// Package directory holds the authoritative in-memory tables for users,
// servers, channels, messages, friend requests, invites and voice rosters.
//
// Every exported method is atomic with respect to the others. Reads return
// deep copies, so callers may keep or modify what they get back. Lookups on
// unknown ids return ErrNotFound instead of panicking.
package directory

import (
	"crypto/rand"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"desacordo-backend/internal/models"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrAlreadyMember    = errors.New("already a member")
	ErrNotMember        = errors.New("not a member")
	ErrSelfRequest      = errors.New("cannot send a friend request to yourself")
	ErrDuplicateRequest = errors.New("friend request already exists")
	ErrAlreadyFriends   = errors.New("already friends")
	ErrNotAddressee     = errors.New("friend request is not addressed to you")
	ErrRequestClosed    = errors.New("friend request is no longer pending")
	ErrWrongChannelType = errors.New("wrong channel type")
	ErrVanityTaken      = errors.New("vanity url is taken")
	ErrBoostRequired    = errors.New("vanity url requires boost level 3")
)

// IDGenerator hands out unique ids, normally a snowflake.Generator.
type IDGenerator interface {
	NewID() (string, error)
}

const (
	inviteCodeLength   = 5
	inviteCodeAttempts = 16
	inviteAlphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type Store struct {
	mutex sync.RWMutex
	ids   IDGenerator
	now   func() time.Time

	users     map[string]*models.User
	userOrder []string
	emails    map[string]string

	servers       map[string]*models.Server
	serverOrder   []string
	channelServer map[string]string
	invites       map[string]string
	vanity        map[string]string

	messages map[string][]models.Message
	openDMs  map[string][]string

	requests     map[string]*models.FriendRequest
	requestOrder []string
}

func New(ids IDGenerator) *Store {
	return &Store{
		ids:           ids,
		now:           time.Now,
		users:         make(map[string]*models.User),
		emails:        make(map[string]string),
		servers:       make(map[string]*models.Server),
		channelServer: make(map[string]string),
		invites:       make(map[string]string),
		vanity:        make(map[string]string),
		messages:      make(map[string][]models.Message),
		openDMs:       make(map[string][]string),
		requests:      make(map[string]*models.FriendRequest),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ---- users ----

// CreateUser stores a new user. An empty ID is filled in from the generator.
func (s *Store) CreateUser(user models.User) (models.User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.createUserLocked(user)
}

func (s *Store) createUserLocked(user models.User) (models.User, error) {
	email := normalizeEmail(user.Email)
	if email != "" {
		if _, taken := s.emails[email]; taken {
			return models.User{}, ErrAlreadyExists
		}
	}

	if user.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return models.User{}, err
		}
		user.ID = id
	} else if _, taken := s.users[user.ID]; taken {
		return models.User{}, ErrAlreadyExists
	}

	stored := user.Clone()
	stored.Email = email
	stored.Status = ""
	s.users[stored.ID] = &stored
	s.userOrder = append(s.userOrder, stored.ID)
	if email != "" {
		s.emails[email] = stored.ID
	}

	return stored.Clone(), nil
}

// RestoreUser returns the stored profile for user.ID, creating it from user
// when the directory has never seen it (e.g. after a process restart).
func (s *Store) RestoreUser(user models.User) (models.User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if existing, ok := s.users[user.ID]; ok {
		return existing.Clone(), nil
	}
	return s.createUserLocked(user)
}

func (s *Store) GetUser(id string) (models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user.Clone(), nil
}

func (s *Store) FindUserByEmail(email string) (models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	id, ok := s.emails[normalizeEmail(email)]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *Store) UpdateUser(id string, update models.UserUpdate) (models.User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}

	if update.UserName != nil {
		user.UserName = *update.UserName
	}
	if update.AvatarURL != nil {
		user.AvatarURL = *update.AvatarURL
	}
	if update.BannerURL != nil {
		user.BannerURL = *update.BannerURL
	}
	if update.Bio != nil {
		user.Bio = *update.Bio
	}
	if update.Color != nil {
		user.Color = *update.Color
	}
	if update.IsNitro != nil {
		user.IsNitro = *update.IsNitro
	}

	return user.Clone(), nil
}

// ListUsers returns every user in registration order.
func (s *Store) ListUsers() []models.User {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	users := make([]models.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		users = append(users, s.users[id].Clone())
	}
	return users
}

// ---- servers ----

func (s *Store) newChannelID() (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", err
	}
	return models.ChannelIDPrefix + id, nil
}

// CreateServer creates a guild owned by ownerID with a default "general"
// text channel and an Admin role assigned to the owner.
func (s *Store) CreateServer(ownerID, name, iconURL string) (models.Server, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.users[ownerID]; !ok {
		return models.Server{}, ErrNotFound
	}

	serverID, err := s.ids.NewID()
	if err != nil {
		return models.Server{}, err
	}
	channelID, err := s.newChannelID()
	if err != nil {
		return models.Server{}, err
	}
	roleID, err := s.ids.NewID()
	if err != nil {
		return models.Server{}, err
	}

	server := &models.Server{
		ID:        serverID,
		Name:      name,
		IconURL:   iconURL,
		OwnerID:   ownerID,
		MemberIDs: []string{ownerID},
		Channels: []models.Channel{{
			ID:          channelID,
			Name:        "general",
			Type:        models.ChannelTypeText,
			Description: "General chat for everyone to hang out.",
		}},
		Roles: []models.Role{{
			ID:          roleID,
			Name:        "Admin",
			Color:       "#f04747",
			Permissions: models.PermAdmin,
		}},
		UserRoles: map[string][]string{ownerID: {roleID}},
		Invites:   []models.Invite{},
	}

	s.servers[serverID] = server
	s.serverOrder = append(s.serverOrder, serverID)
	s.channelServer[channelID] = serverID

	return server.Clone(), nil
}

func (s *Store) GetServer(id string) (models.Server, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	server, ok := s.servers[id]
	if !ok {
		return models.Server{}, ErrNotFound
	}
	return server.Clone(), nil
}

// ServersFor lists the servers userID is a member of, in creation order.
func (s *Store) ServersFor(userID string) []models.Server {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	servers := []models.Server{}
	for _, id := range s.serverOrder {
		server := s.servers[id]
		if server.IsMember(userID) {
			servers = append(servers, server.Clone())
		}
	}
	return servers
}

func (s *Store) AddMember(serverID, userID string) (models.Server, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	server, ok := s.servers[serverID]
	if !ok {
		return models.Server{}, ErrNotFound
	}
	if err := s.addMemberLocked(server, userID); err != nil {
		return models.Server{}, err
	}
	return server.Clone(), nil
}

func (s *Store) addMemberLocked(server *models.Server, userID string) error {
	if _, ok := s.users[userID]; !ok {
		return ErrNotFound
	}
	if server.IsMember(userID) {
		return ErrAlreadyMember
	}
	server.MemberIDs = append(server.MemberIDs, userID)
	return nil
}

func (s *Store) UpdateServer(serverID string, update models.ServerUpdate) (models.Server, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	server, ok := s.servers[serverID]
	if !ok {
		return models.Server{}, ErrNotFound
	}

	// validate everything before touching the server so a rejected update
	// leaves no partial mutation behind
	var vanity string
	if update.VanityURL != nil {
		vanity = strings.ToLower(strings.TrimSpace(*update.VanityURL))
		if vanity != "" && vanity != server.VanityURL {
			if server.BoostLevel < models.MaxBoostLevel {
				return models.Server{}, ErrBoostRequired
			}
			if owner, taken := s.vanity[vanity]; taken && owner != serverID {
				return models.Server{}, ErrVanityTaken
			}
			if _, taken := s.invites[vanity]; taken {
				return models.Server{}, ErrVanityTaken
			}
		}
	}

	var roles []models.Role
	if update.Roles != nil {
		roles = make([]models.Role, len(update.Roles))
		for i, role := range update.Roles {
			if role.ID == "" {
				id, err := s.ids.NewID()
				if err != nil {
					return models.Server{}, err
				}
				role.ID = id
			}
			roles[i] = role
		}
	}

	if update.Name != nil {
		server.Name = *update.Name
	}
	if update.IconURL != nil {
		server.IconURL = *update.IconURL
	}
	if update.VanityURL != nil && vanity != server.VanityURL {
		delete(s.vanity, server.VanityURL)
		server.VanityURL = vanity
		if vanity != "" {
			s.vanity[vanity] = serverID
		}
	}
	if roles != nil {
		server.Roles = roles
		pruneUserRoles(server)
	}

	return server.Clone(), nil
}

// pruneUserRoles drops assignments of roles that no longer exist.
func pruneUserRoles(server *models.Server) {
	for userID, roleIDs := range server.UserRoles {
		kept := slices.DeleteFunc(roleIDs, func(roleID string) bool {
			_, exists := server.Role(roleID)
			return !exists
		})
		if len(kept) == 0 {
			delete(server.UserRoles, userID)
		} else {
			server.UserRoles[userID] = kept
		}
	}
}

// AddChannel appends a text or voice channel to the server. The channel ID
// is always issued by the store.
func (s *Store) AddChannel(serverID string, channel models.Channel) (models.Server, models.Channel, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	server, ok := s.servers[serverID]
	if !ok {
		return models.Server{}, models.Channel{}, ErrNotFound
	}
	if channel.Type != models.ChannelTypeText && channel.Type != models.ChannelTypeVoice {
		return models.Server{}, models.Channel{}, ErrWrongChannelType
	}

	id, err := s.newChannelID()
	if err != nil {
		return models.Server{}, models.Channel{}, err
	}
	channel.ID = id
	channel.RecipientID = ""
	channel.ConnectedUserIDs = nil

	server.Channels = append(server.Channels, channel)
	s.channelServer[id] = serverID

	return server.Clone(), channel.Clone(), nil
}

func (s *Store) AddRole(serverID string, role models.Role) (models.Server, models.Role, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	server, ok := s.servers[serverID]
	if !ok {
		return models.Server{}, models.Role{}, ErrNotFound
	}

	id, err := s.ids.NewID()
	if err != nil {
		return models.Server{}, models.Role{}, err
	}
	role.ID = id
	server.Roles = append(server.Roles, role)

	return server.Clone(), role, nil
}

// SetUserRoles replaces the roles assigned to userID. Every role must exist.
func (s *Store) SetUserRoles(serverID, userID string, roleIDs []string) (models.Server, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	server, ok := s.servers[serverID]
	if !ok {
		return models.Server{}, ErrNotFound
	}
	if err := setUserRolesLocked(server, userID, roleIDs); err != nil {
		return models.Server{}, err
	}
	return server.Clone(), nil
}

// ToggleUserRole assigns roleID to userID, or removes it if already assigned.
func (s *Store) ToggleUserRole(serverID, userID, roleID string) (models.Server, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	server, ok := s.servers[serverID]
	if !ok {
		return models.Server{}, ErrNotFound
	}

	current := slices.Clone(server.UserRoles[userID])
	if i := slices.Index(current, roleID); i >= 0 {
		current = slices.Delete(current, i, i+1)
	} else {
		current = append(current, roleID)
	}
	if err := setUserRolesLocked(server, userID, current); err != nil {
		return models.Server{}, err
	}
	return server.Clone(), nil
}

func setUserRolesLocked(server *models.Server, userID string, roleIDs []string) error {
	if !server.IsMember(userID) {
		return ErrNotMember
	}
	for _, roleID := range roleIDs {
		if _, exists := server.Role(roleID); !exists {
			return ErrNotFound
		}
	}

	assigned := slices.Compact(slices.Sorted(slices.Values(roleIDs)))
	if len(assigned) == 0 {
		delete(server.UserRoles, userID)
	} else {
		server.UserRoles[userID] = assigned
	}
	return nil
}

// BoostServer raises the boost level by one, up to MaxBoostLevel.
func (s *Store) BoostServer(serverID, userID string) (models.Server, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	server, ok := s.servers[serverID]
	if !ok {
		return models.Server{}, ErrNotFound
	}
	if !server.IsMember(userID) {
		return models.Server{}, ErrNotMember
	}
	if server.BoostLevel < models.MaxBoostLevel {
		server.BoostLevel++
	}
	return server.Clone(), nil
}

// HasPermission reports whether userID holds perm on server: the owner holds
// everything, otherwise any assigned role granting perm (or ADMIN) suffices.
func HasPermission(server models.Server, userID string, perm models.Permissions) bool {
	if userID == server.OwnerID {
		return true
	}
	for _, roleID := range server.UserRoles[userID] {
		role, ok := server.Role(roleID)
		if ok && role.Permissions.Has(perm) {
			return true
		}
	}
	return false
}

// FindChannel resolves a server channel id to the channel and its server.
func (s *Store) FindChannel(channelID string) (models.Channel, models.Server, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	serverID, ok := s.channelServer[channelID]
	if !ok {
		return models.Channel{}, models.Server{}, ErrNotFound
	}
	server := s.servers[serverID]
	channel, ok := server.Channel(channelID)
	if !ok {
		return models.Channel{}, models.Server{}, ErrNotFound
	}
	return channel.Clone(), server.Clone(), nil
}

// ---- invites ----

func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = inviteAlphabet[int(buf[i])%len(inviteAlphabet)]
	}
	return string(buf), nil
}

// CreateInvite issues a fresh invite code for a member of the server.
func (s *Store) CreateInvite(serverID, creatorID string) (models.Invite, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	server, ok := s.servers[serverID]
	if !ok {
		return models.Invite{}, ErrNotFound
	}
	if !server.IsMember(creatorID) {
		return models.Invite{}, ErrNotMember
	}

	for range inviteCodeAttempts {
		code, err := randomCode(inviteCodeLength)
		if err != nil {
			return models.Invite{}, err
		}
		if _, taken := s.invites[code]; taken {
			continue
		}
		if _, taken := s.vanity[strings.ToLower(code)]; taken {
			continue
		}

		invite := models.Invite{Code: code, ServerID: serverID, CreatorID: creatorID}
		server.Invites = append(server.Invites, invite)
		s.invites[code] = serverID
		return invite, nil
	}

	return models.Invite{}, fmt.Errorf("no free invite code after %d attempts", inviteCodeAttempts)
}

// ConsumeInvite adds userID to the server behind code, which is either an
// invite code or the server's vanity url. Only invite codes count uses.
func (s *Store) ConsumeInvite(code, userID string) (models.Server, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	code = strings.TrimSpace(code)
	serverID, isInvite := s.invites[code]
	if !isInvite {
		var isVanity bool
		serverID, isVanity = s.vanity[strings.ToLower(code)]
		if !isVanity {
			return models.Server{}, ErrNotFound
		}
	}

	server := s.servers[serverID]
	if err := s.addMemberLocked(server, userID); err != nil {
		return models.Server{}, err
	}

	if isInvite {
		for i := range server.Invites {
			if server.Invites[i].Code == code {
				server.Invites[i].Uses++
				break
			}
		}
	}

	return server.Clone(), nil
}

// ---- voice ----

// JoinVoice places userID in the voice channel, moving them out of any other
// voice channel of the same server.
func (s *Store) JoinVoice(serverID, channelID, userID string) (models.Server, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	server, ok := s.servers[serverID]
	if !ok {
		return models.Server{}, ErrNotFound
	}
	if !server.IsMember(userID) {
		return models.Server{}, ErrNotMember
	}
	channel, ok := server.Channel(channelID)
	if !ok {
		return models.Server{}, ErrNotFound
	}
	if channel.Type != models.ChannelTypeVoice {
		return models.Server{}, ErrWrongChannelType
	}
	if slices.Contains(channel.ConnectedUserIDs, userID) {
		return server.Clone(), nil
	}

	for i := range server.Channels {
		other := &server.Channels[i]
		if other.Type == models.ChannelTypeVoice {
			other.ConnectedUserIDs = slices.DeleteFunc(other.ConnectedUserIDs, func(id string) bool { return id == userID })
		}
	}
	channel.ConnectedUserIDs = append(channel.ConnectedUserIDs, userID)

	return server.Clone(), nil
}

// LeaveVoice removes userID from the channel roster. Leaving a channel the
// user never joined is a no-op and reports changed == false.
func (s *Store) LeaveVoice(serverID, channelID, userID string) (models.Server, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	server, ok := s.servers[serverID]
	if !ok {
		return models.Server{}, false, ErrNotFound
	}
	channel, ok := server.Channel(channelID)
	if !ok {
		return models.Server{}, false, ErrNotFound
	}

	i := slices.Index(channel.ConnectedUserIDs, userID)
	if i < 0 {
		return server.Clone(), false, nil
	}
	channel.ConnectedUserIDs = slices.Delete(channel.ConnectedUserIDs, i, i+1)

	return server.Clone(), true, nil
}

// LeaveAllVoice removes userID from every voice roster and returns the
// servers that changed.
func (s *Store) LeaveAllVoice(userID string) []models.Server {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	changed := []models.Server{}
	for _, id := range s.serverOrder {
		server := s.servers[id]
		touched := false
		for i := range server.Channels {
			channel := &server.Channels[i]
			if j := slices.Index(channel.ConnectedUserIDs, userID); j >= 0 {
				channel.ConnectedUserIDs = slices.Delete(channel.ConnectedUserIDs, j, j+1)
				touched = true
			}
		}
		if touched {
			changed = append(changed, server.Clone())
		}
	}
	return changed
}
