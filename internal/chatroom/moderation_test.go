package chatroom

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestMuteUnmute(t *testing.T) {
	f := setup(t, Options{})
	owner, alice, bob, outsider := f.user(t, "owner"), f.user(t, "alice"), f.user(t, "bob"), f.user(t, "outsider")
	room := f.room(t, owner)
	f.join(t, room.ID, alice, bob)

	assert.ErrorIs(t, f.svc.Mute(f.ctx, room.ID, bob, alice), ErrNoPermission)
	assert.ErrorIs(t, f.svc.Mute(f.ctx, room.ID, outsider, owner), ErrNotMember)

	require.NoError(t, f.svc.Mute(f.ctx, room.ID, bob, owner))
	assert.Equal(t, EventMemberMuted, f.events.last().Type)
	assert.ErrorIs(t, f.svc.Mute(f.ctx, room.ID, bob, owner), ErrAlreadyMuted)

	muted, err := f.svc.IsMuted(f.ctx, room.ID, bob)
	require.NoError(t, err)
	assert.True(t, muted)

	_, err = f.svc.Send(f.ctx, room.ID, bob, "let me speak", nil)
	assert.ErrorIs(t, err, ErrMuted)

	require.NoError(t, f.svc.Unmute(f.ctx, room.ID, bob, owner))
	assert.Equal(t, EventMemberUnmuted, f.events.last().Type)
	assert.ErrorIs(t, f.svc.Unmute(f.ctx, room.ID, bob, owner), ErrNotMuted)

	_, err = f.svc.Send(f.ctx, room.ID, bob, "thanks", nil)
	assert.NoError(t, err)

	// Role holders with manage-roles may mute too.
	f.grant(t, room.ID, owner, alice, CapabilitySet{ManageRoles: true})
	require.NoError(t, f.svc.Mute(f.ctx, room.ID, bob, alice))
}

func TestMuteThenUnmuteRestoresState(t *testing.T) {
	f := setup(t, Options{})
	owner, alice := f.user(t, "owner"), f.user(t, "alice")
	room := f.room(t, owner)
	f.join(t, room.ID, alice)

	before, err := f.svc.GetMember(f.ctx, room.ID, alice)
	require.NoError(t, err)

	require.NoError(t, f.svc.Mute(f.ctx, room.ID, alice, owner))
	require.NoError(t, f.svc.Unmute(f.ctx, room.ID, alice, owner))

	after, err := f.svc.GetMember(f.ctx, room.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.IsMuted, after.IsMuted)
	assert.True(t, before.JoinedAt.Equal(after.JoinedAt))
}

func TestBanThenJoinFails(t *testing.T) {
	f := setup(t, Options{})
	u1, u2 := f.user(t, "u1"), f.user(t, "u2")
	room := f.room(t, u1)
	f.join(t, room.ID, u2)
	f.grant(t, room.ID, u1, u2, CapabilitySet{DeleteMessages: true})

	ban, err := f.svc.Ban(f.ctx, room.ID, u2, u1, "spam")
	require.NoError(t, err)
	assert.Equal(t, "spam", ban.Reason)
	require.NotNil(t, ban.BannedByUserID)
	assert.Equal(t, u1, *ban.BannedByUserID)

	ev := f.events.last()
	assert.Equal(t, EventMemberBanned, ev.Type)
	assert.Equal(t, u2, ev.UserID)

	assert.EqualValues(t, 0, f.count(t, &Membership{}, "room_id = ? AND user_id = ?", room.ID, u2))
	assert.EqualValues(t, 0, f.count(t, &RoleAssignment{}, "1 = 1"))

	banned, err := f.svc.IsBanned(f.ctx, room.ID, u2)
	require.NoError(t, err)
	assert.True(t, banned)

	_, err = f.svc.Join(f.ctx, room.ID, u2)
	assert.ErrorIs(t, err, ErrBanned)

	_, err = f.svc.Ban(f.ctx, room.ID, u2, u1, "again")
	assert.ErrorIs(t, err, ErrAlreadyBanned)
}

func TestUnbanDoesNotRestoreMembership(t *testing.T) {
	f := setup(t, Options{})
	owner, alice := f.user(t, "owner"), f.user(t, "alice")
	room := f.room(t, owner)
	f.join(t, room.ID, alice)

	_, err := f.svc.Ban(f.ctx, room.ID, alice, owner, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.Unban(f.ctx, room.ID, alice, owner))
	assert.Equal(t, EventMemberUnbanned, f.events.last().Type)

	ok, err := f.svc.IsMember(f.ctx, room.ID, alice)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, f.svc.Unban(f.ctx, room.ID, alice, owner), ErrNotBanned)

	_, err = f.svc.Join(f.ctx, room.ID, alice)
	assert.NoError(t, err)
}

func TestBanRequiresCapability(t *testing.T) {
	f := setup(t, Options{})
	owner, mod, alice, bob := f.user(t, "owner"), f.user(t, "mod"), f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, owner)
	f.join(t, room.ID, mod, alice, bob)

	_, err := f.svc.Ban(f.ctx, room.ID, bob, alice, "")
	assert.ErrorIs(t, err, ErrNoPermission)

	// Manage-roles alone does not grant banning.
	f.grant(t, room.ID, owner, mod, CapabilitySet{ManageRoles: true})
	_, err = f.svc.Ban(f.ctx, room.ID, bob, mod, "")
	assert.ErrorIs(t, err, ErrNoPermission)

	f.grant(t, room.ID, owner, mod, CapabilitySet{BanUsers: true})
	_, err = f.svc.Ban(f.ctx, room.ID, bob, mod, "")
	require.NoError(t, err)

	_, err = f.svc.Ban(f.ctx, room.ID, owner, mod, "")
	assert.ErrorIs(t, err, ErrCannotBanOwner)

	assert.ErrorIs(t, f.svc.Unban(f.ctx, room.ID, bob, alice), ErrNoPermission)

	// Bans may precede membership.
	stranger := f.user(t, "stranger")
	_, err = f.svc.Ban(f.ctx, room.ID, stranger, mod, "pre-emptive")
	require.NoError(t, err)

	bans, err := f.svc.ListBans(f.ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, bans, 2)
	assert.Equal(t, stranger, bans[0].BannedUserID)
	assert.Equal(t, bob, bans[1].BannedUserID)
}

func TestConcurrentBansOneWins(t *testing.T) {
	f := setup(t, Options{})
	owner, target := f.user(t, "owner"), f.user(t, "target")
	room := f.room(t, owner)
	f.join(t, room.ID, target)
	f.events.reset()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Ban(f.ctx, room.ID, target, owner, fmt.Sprintf("attempt %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyBanned)
	}
	assert.Equal(t, 1, succeeded)
	assert.EqualValues(t, 1, f.count(t, &Ban{}, "room_id = ? AND banned_user_id = ?", room.ID, target))
	assert.Equal(t, []EventType{EventMemberBanned}, f.events.types())
}

func TestBanAndMembershipExclusive(t *testing.T) {
	f := setup(t, Options{})
	owner := f.user(t, "owner")
	room := f.room(t, owner)

	var users []string
	for i := 0; i < 4; i++ {
		users = append(users, f.user(t, fmt.Sprintf("user%d", i)))
	}
	f.join(t, room.ID, users[0], users[1])
	_, err := f.svc.Ban(f.ctx, room.ID, users[0], owner, "")
	require.NoError(t, err)
	_, err = f.svc.Ban(f.ctx, room.ID, users[2], owner, "")
	require.NoError(t, err)
	_, err = f.svc.Join(f.ctx, room.ID, users[2])
	require.ErrorIs(t, err, ErrBanned)
	require.NoError(t, f.svc.Unban(f.ctx, room.ID, users[2], owner))
	f.join(t, room.ID, users[2], users[3])

	for _, id := range users {
		member, err := f.svc.IsMember(f.ctx, room.ID, id)
		require.NoError(t, err)
		banned, err := f.svc.IsBanned(f.ctx, room.ID, id)
		require.NoError(t, err)
		assert.False(t, member && banned, "user %s is both member and banned", id)
	}
}

func TestBanRacingJoinNeverLeavesBoth(t *testing.T) {
	f := setup(t, Options{})
	owner := f.user(t, "owner")
	room := f.room(t, owner)

	for i := 0; i < 10; i++ {
		target := f.user(t, fmt.Sprintf("racer%d", i))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Join(f.ctx, room.ID, target)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.Ban(f.ctx, room.ID, target, owner, "race")
		}()
		wg.Wait()

		member, err := f.svc.IsMember(f.ctx, room.ID, target)
		require.NoError(t, err)
		banned, err := f.svc.IsBanned(f.ctx, room.ID, target)
		require.NoError(t, err)
		assert.True(t, banned)
		assert.False(t, member, "round %d left a membership next to the ban", i)
	}
}

func TestWritersLockTheRoomRow(t *testing.T) {
	f := setup(t, Options{})
	sqlDB, err := f.conn.DB()
	require.NoError(t, err)

	pg, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	stmt := forUpdate(pg).First(&Chatroom{}, 1).Statement
	assert.Contains(t, stmt.SQL.String(), "FOR UPDATE")

	stmt = pg.First(&Chatroom{}, 1).Statement
	assert.NotContains(t, stmt.SQL.String(), "FOR UPDATE")
}
