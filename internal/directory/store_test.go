package directory_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"desacordo-backend/internal/directory"
	"desacordo-backend/internal/models"
	"desacordo-backend/internal/snowflake"
)

func newStore(t *testing.T) *directory.Store {
	t.Helper()
	ids, err := snowflake.New(1)
	if err != nil {
		t.Fatal(err)
	}
	return directory.New(ids)
}

func mustUser(t *testing.T, s *directory.Store, email, name string) models.User {
	t.Helper()
	u, err := s.CreateUser(models.User{Email: email, UserName: name})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return u
}

func TestCreateUser(t *testing.T) {
	s := newStore(t)

	a := mustUser(t, s, "A@x.com", "alice")
	if a.ID == "" {
		t.Fatal("user ID was not assigned")
	}
	if a.Email != "a@x.com" {
		t.Errorf("email = %q, want normalized a@x.com", a.Email)
	}

	if _, err := s.CreateUser(models.User{Email: "a@x.com", UserName: "other"}); !errors.Is(err, directory.ErrAlreadyExists) {
		t.Errorf("duplicate email: got %v, want ErrAlreadyExists", err)
	}

	found, err := s.FindUserByEmail("a@X.com")
	if err != nil || found.ID != a.ID {
		t.Errorf("FindUserByEmail = %v, %v", found.ID, err)
	}

	if _, err := s.FindUserByEmail("nobody@x.com"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("unknown email: got %v, want ErrNotFound", err)
	}
}

func TestUpdateUserPartial(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")

	bio := "hello"
	updated, err := s.UpdateUser(a.ID, models.UserUpdate{Bio: &bio})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Bio != "hello" || updated.UserName != "alice" {
		t.Errorf("unexpected user after update: %+v", updated)
	}

	if _, err := s.UpdateUser("missing", models.UserUpdate{Bio: &bio}); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")
	server, err := s.CreateServer(a.ID, "Test", "")
	if err != nil {
		t.Fatal(err)
	}

	server.MemberIDs[0] = "tampered"
	server.Channels[0].Name = "tampered"

	fresh, err := s.GetServer(server.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.MemberIDs[0] != a.ID || fresh.Channels[0].Name != "general" {
		t.Error("mutating a returned server leaked into the store")
	}
}

func TestCreateServerDefaults(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")

	server, err := s.CreateServer(a.ID, "Test", "icon.png")
	if err != nil {
		t.Fatal(err)
	}

	if len(server.Channels) != 1 || server.Channels[0].Name != "general" || server.Channels[0].Type != models.ChannelTypeText {
		t.Errorf("unexpected default channels: %+v", server.Channels)
	}
	if len(server.Roles) != 1 || server.Roles[0].Name != "Admin" || server.Roles[0].Permissions != models.PermAdmin {
		t.Errorf("unexpected default roles: %+v", server.Roles)
	}
	if !slices.Equal(server.UserRoles[a.ID], []string{server.Roles[0].ID}) {
		t.Errorf("owner roles = %v", server.UserRoles[a.ID])
	}
	if !server.IsMember(a.ID) || server.OwnerID != a.ID {
		t.Error("owner must be a member")
	}
	if models.IsDMChannelID(server.Channels[0].ID) {
		t.Error("server channel id parses as a DM id")
	}

	if _, err := s.CreateServer("missing", "x", ""); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestHasPermission(t *testing.T) {
	s := newStore(t)
	owner := mustUser(t, s, "o@x.com", "owner")
	mod := mustUser(t, s, "m@x.com", "mod")
	plain := mustUser(t, s, "p@x.com", "plain")

	server, _ := s.CreateServer(owner.ID, "Test", "")
	_, _ = s.AddMember(server.ID, mod.ID)
	_, _ = s.AddMember(server.ID, plain.ID)

	server, role, err := s.AddRole(server.ID, models.Role{Name: "Mod", Permissions: models.PermManageChannels})
	if err != nil {
		t.Fatal(err)
	}
	server, err = s.SetUserRoles(server.ID, mod.ID, []string{role.ID})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		userID string
		perm   models.Permissions
		want   bool
	}{
		{name: "owner always", userID: owner.ID, perm: models.PermManageServer, want: true},
		{name: "mod has channels", userID: mod.ID, perm: models.PermManageChannels, want: true},
		{name: "mod lacks server", userID: mod.ID, perm: models.PermManageServer, want: false},
		{name: "plain member", userID: plain.ID, perm: models.PermManageChannels, want: false},
		{name: "stranger", userID: "nobody", perm: models.PermManageChannels, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := directory.HasPermission(server, tc.userID, tc.perm); got != tc.want {
				t.Errorf("HasPermission = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestSetUserRolesRequiresExistingRole(t *testing.T) {
	s := newStore(t)
	owner := mustUser(t, s, "o@x.com", "owner")
	server, _ := s.CreateServer(owner.ID, "Test", "")

	if _, err := s.SetUserRoles(server.ID, owner.ID, []string{"ghost"}); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if _, err := s.SetUserRoles(server.ID, "stranger", nil); !errors.Is(err, directory.ErrNotMember) {
		t.Errorf("got %v, want ErrNotMember", err)
	}
}

func TestToggleUserRole(t *testing.T) {
	s := newStore(t)
	owner := mustUser(t, s, "o@x.com", "owner")
	b := mustUser(t, s, "b@x.com", "bob")
	server, _ := s.CreateServer(owner.ID, "Test", "")
	_, _ = s.AddMember(server.ID, b.ID)
	server, role, _ := s.AddRole(server.ID, models.Role{Name: "Mod"})

	server, err := s.ToggleUserRole(server.ID, b.ID, role.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(server.UserRoles[b.ID], role.ID) {
		t.Fatal("role was not assigned")
	}

	server, err = s.ToggleUserRole(server.ID, b.ID, role.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := server.UserRoles[b.ID]; ok {
		t.Error("role was not removed on second toggle")
	}
}

func TestUpdateServerRolesPrunesAssignments(t *testing.T) {
	s := newStore(t)
	owner := mustUser(t, s, "o@x.com", "owner")
	server, _ := s.CreateServer(owner.ID, "Test", "")

	name := "Renamed"
	server, err := s.UpdateServer(server.ID, models.ServerUpdate{
		Name:  &name,
		Roles: []models.Role{{Name: "Member", Permissions: 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if server.Name != "Renamed" {
		t.Errorf("name = %q", server.Name)
	}
	if len(server.Roles) != 1 || server.Roles[0].ID == "" {
		t.Fatalf("roles = %+v", server.Roles)
	}
	for userID, roleIDs := range server.UserRoles {
		for _, roleID := range roleIDs {
			if _, ok := server.Role(roleID); !ok {
				t.Errorf("user %s still holds deleted role %s", userID, roleID)
			}
		}
	}
}

func TestVanityURLRequiresBoost(t *testing.T) {
	s := newStore(t)
	owner := mustUser(t, s, "o@x.com", "owner")
	b := mustUser(t, s, "b@x.com", "bob")
	server, _ := s.CreateServer(owner.ID, "Test", "")
	other, _ := s.CreateServer(owner.ID, "Other", "")

	vanity := "cool"
	if _, err := s.UpdateServer(server.ID, models.ServerUpdate{VanityURL: &vanity}); !errors.Is(err, directory.ErrBoostRequired) {
		t.Fatalf("got %v, want ErrBoostRequired", err)
	}

	for range 5 {
		server, _ = s.BoostServer(server.ID, owner.ID)
		other, _ = s.BoostServer(other.ID, owner.ID)
	}
	if server.BoostLevel != models.MaxBoostLevel {
		t.Fatalf("boost level = %d, want capped at %d", server.BoostLevel, models.MaxBoostLevel)
	}

	if _, err := s.UpdateServer(server.ID, models.ServerUpdate{VanityURL: &vanity}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateServer(other.ID, models.ServerUpdate{VanityURL: &vanity}); !errors.Is(err, directory.ErrVanityTaken) {
		t.Errorf("got %v, want ErrVanityTaken", err)
	}

	joined, err := s.ConsumeInvite("COOL", b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !joined.IsMember(b.ID) {
		t.Error("vanity redemption did not add member")
	}
}

func TestInviteRedemptionIsExactlyOnce(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")
	b := mustUser(t, s, "b@x.com", "bob")
	server, _ := s.CreateServer(a.ID, "Test", "")

	invite, err := s.CreateInvite(server.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(invite.Code) != 5 {
		t.Errorf("invite code %q is not 5 characters", invite.Code)
	}

	joined, err := s.ConsumeInvite(invite.Code, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !joined.IsMember(b.ID) {
		t.Fatal("redeemer was not added")
	}

	if _, err := s.ConsumeInvite(invite.Code, b.ID); !errors.Is(err, directory.ErrAlreadyMember) {
		t.Fatalf("second redemption: got %v, want ErrAlreadyMember", err)
	}

	server, _ = s.GetServer(server.ID)
	count := 0
	for _, id := range server.MemberIDs {
		if id == b.ID {
			count++
		}
	}
	if count != 1 {
		t.Errorf("member appears %d times", count)
	}
	if server.Invites[0].Uses != 1 {
		t.Errorf("uses = %d, want 1", server.Invites[0].Uses)
	}

	if _, err := s.ConsumeInvite("zzzzz", b.ID); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("unknown code: got %v, want ErrNotFound", err)
	}
}

func TestCreateInviteRequiresMember(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")
	b := mustUser(t, s, "b@x.com", "bob")
	server, _ := s.CreateServer(a.ID, "Test", "")

	if _, err := s.CreateInvite(server.ID, b.ID); !errors.Is(err, directory.ErrNotMember) {
		t.Errorf("got %v, want ErrNotMember", err)
	}
}

func TestMessagesAreOrderedAndMonotonic(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")
	server, _ := s.CreateServer(a.ID, "Test", "")
	channelID := server.Channels[0].ID

	for _, content := range []string{"one", "two", "three"} {
		if _, err := s.RecordMessage(models.Message{ChannelID: channelID, SenderID: a.ID, Content: content}); err != nil {
			t.Fatal(err)
		}
	}

	history := s.ListMessages(channelID)
	if len(history) != 3 {
		t.Fatalf("got %d messages", len(history))
	}
	for i, want := range []string{"one", "two", "three"} {
		if history[i].Content != want {
			t.Errorf("history[%d] = %q, want %q", i, history[i].Content, want)
		}
		if i > 0 && history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Errorf("timestamp went backwards at %d", i)
		}
	}

	if _, err := s.RecordMessage(models.Message{ChannelID: "ch-missing", SenderID: a.ID}); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if got := s.ListMessages("nothing"); len(got) != 0 {
		t.Errorf("unknown channel history = %v", got)
	}
}

func TestRecordDMMessage(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")
	b := mustUser(t, s, "b@x.com", "bob")
	dm := models.DMChannelID(a.ID, b.ID)

	msg, err := s.RecordMessage(models.Message{
		ChannelID:   dm,
		SenderID:    b.ID,
		Attachments: []models.Attachment{{Type: models.AttachmentImage, URL: "/cdn/x.png", Name: "x.png"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Attachments[0].ID == "" {
		t.Error("attachment id was not assigned")
	}
	if msg.Timestamp.IsZero() || msg.Timestamp.After(time.Now().Add(time.Minute)) {
		t.Errorf("odd timestamp %v", msg.Timestamp)
	}

	if _, err := s.RecordMessage(models.Message{ChannelID: models.DMChannelID(a.ID, "ghost"), SenderID: a.ID}); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("DM with unknown user: got %v, want ErrNotFound", err)
	}
}

func TestUpsertOpenDMIsIdempotent(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")
	b := mustUser(t, s, "b@x.com", "bob")
	dm := models.DMChannelID(a.ID, b.ID)

	created, err := s.UpsertOpenDM(a.ID, b.ID, dm)
	if err != nil || !created {
		t.Fatalf("first upsert = %t, %v", created, err)
	}
	created, err = s.UpsertOpenDM(a.ID, b.ID, dm)
	if err != nil || created {
		t.Fatalf("second upsert = %t, %v", created, err)
	}

	open := s.OpenDMs(a.ID)
	if len(open) != 1 || open[0].ID != dm || open[0].Name != "bob" || open[0].RecipientID != b.ID || open[0].Type != models.ChannelTypeDM {
		t.Errorf("OpenDMs = %+v", open)
	}
	if len(s.OpenDMs(b.ID)) != 0 {
		t.Error("upsert for alice opened the DM for bob too")
	}
}

func TestFriendRequestLifecycle(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")
	b := mustUser(t, s, "b@x.com", "bob")

	if _, err := s.CreateFriendRequest(a.ID, a.ID); !errors.Is(err, directory.ErrSelfRequest) {
		t.Errorf("self request: got %v", err)
	}
	if _, err := s.CreateFriendRequest(a.ID, "ghost"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("unknown target: got %v", err)
	}

	req, err := s.CreateFriendRequest(a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateFriendRequest(b.ID, a.ID); !errors.Is(err, directory.ErrDuplicateRequest) {
		t.Errorf("reverse duplicate: got %v", err)
	}

	pending := s.ListPendingRequestsFor(b.ID)
	if len(pending) != 1 || pending[0].ID != req.ID {
		t.Fatalf("pending = %+v", pending)
	}

	if _, _, err := s.AcceptFriendRequest(req.ID, a.ID); !errors.Is(err, directory.ErrNotAddressee) {
		t.Errorf("sender accepting: got %v", err)
	}

	from, to, err := s.AcceptFriendRequest(req.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(from.FriendIDs, b.ID) || !slices.Contains(to.FriendIDs, a.ID) {
		t.Fatalf("friendship not symmetric: %v / %v", from.FriendIDs, to.FriendIDs)
	}

	from, to, err = s.AcceptFriendRequest(req.ID, b.ID)
	if err != nil {
		t.Fatalf("repeated accept: %v", err)
	}
	if len(from.FriendIDs) != 1 || len(to.FriendIDs) != 1 {
		t.Errorf("repeated accept duplicated friends: %v / %v", from.FriendIDs, to.FriendIDs)
	}

	if _, err := s.CreateFriendRequest(a.ID, b.ID); !errors.Is(err, directory.ErrAlreadyFriends) {
		t.Errorf("request between friends: got %v", err)
	}
	if len(s.ListPendingRequestsFor(b.ID)) != 0 {
		t.Error("accepted request still pending")
	}
}

func TestRejectAndRemoveFriend(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")
	b := mustUser(t, s, "b@x.com", "bob")

	req, _ := s.CreateFriendRequest(a.ID, b.ID)
	rejected, err := s.RejectFriendRequest(req.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != models.FriendRequestRejected {
		t.Errorf("status = %s", rejected.Status)
	}
	if _, _, err := s.AcceptFriendRequest(req.ID, b.ID); !errors.Is(err, directory.ErrRequestClosed) {
		t.Errorf("accepting rejected request: got %v", err)
	}

	// a rejected request no longer blocks a new one
	req, err = s.CreateFriendRequest(b.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.AcceptFriendRequest(req.ID, a.ID); err != nil {
		t.Fatal(err)
	}

	ua, ub, err := s.RemoveFriend(a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ua.FriendIDs) != 0 || len(ub.FriendIDs) != 0 {
		t.Errorf("friends left after removal: %v / %v", ua.FriendIDs, ub.FriendIDs)
	}
	if _, _, err := s.RemoveFriend(a.ID, b.ID); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("second removal: got %v", err)
	}
	if _, err := s.CreateFriendRequest(a.ID, b.ID); err != nil {
		t.Errorf("re-request after removal: %v", err)
	}
}

func TestVoiceRoster(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")
	b := mustUser(t, s, "b@x.com", "bob")
	server, _ := s.CreateServer(a.ID, "Test", "")
	_, _ = s.AddMember(server.ID, b.ID)
	_, voice, err := s.AddChannel(server.ID, models.Channel{Name: "Lounge", Type: models.ChannelTypeVoice})
	if err != nil {
		t.Fatal(err)
	}

	roster := func(server models.Server) []string {
		ch, _ := server.Channel(voice.ID)
		return ch.ConnectedUserIDs
	}

	server, _ = s.JoinVoice(server.ID, voice.ID, a.ID)
	server, _ = s.JoinVoice(server.ID, voice.ID, b.ID)
	if !slices.Equal(roster(server), []string{a.ID, b.ID}) {
		t.Fatalf("roster = %v, want join order", roster(server))
	}

	server, changed, err := s.LeaveVoice(server.ID, voice.ID, a.ID)
	if err != nil || !changed {
		t.Fatalf("leave = %t, %v", changed, err)
	}
	if !slices.Equal(roster(server), []string{b.ID}) {
		t.Fatalf("roster = %v", roster(server))
	}

	_, changed, err = s.LeaveVoice(server.ID, voice.ID, a.ID)
	if err != nil || changed {
		t.Errorf("leaving unjoined channel = %t, %v; want no-op", changed, err)
	}

	if _, err := s.JoinVoice(server.ID, server.Channels[0].ID, a.ID); !errors.Is(err, directory.ErrWrongChannelType) {
		t.Errorf("joining text channel as voice: got %v", err)
	}

	changedServers := s.LeaveAllVoice(b.ID)
	if len(changedServers) != 1 || len(roster(changedServers[0])) != 0 {
		t.Errorf("LeaveAllVoice = %+v", changedServers)
	}
}

func TestJoinVoiceMovesBetweenChannels(t *testing.T) {
	s := newStore(t)
	a := mustUser(t, s, "a@x.com", "alice")
	server, _ := s.CreateServer(a.ID, "Test", "")
	_, v1, _ := s.AddChannel(server.ID, models.Channel{Name: "One", Type: models.ChannelTypeVoice})
	_, v2, _ := s.AddChannel(server.ID, models.Channel{Name: "Two", Type: models.ChannelTypeVoice})

	_, _ = s.JoinVoice(server.ID, v1.ID, a.ID)
	server, _ = s.JoinVoice(server.ID, v2.ID, a.ID)

	one, _ := server.Channel(v1.ID)
	two, _ := server.Channel(v2.ID)
	if len(one.ConnectedUserIDs) != 0 || !slices.Equal(two.ConnectedUserIDs, []string{a.ID}) {
		t.Errorf("one = %v, two = %v", one.ConnectedUserIDs, two.ConnectedUserIDs)
	}
}
