package chatroom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleBasedDelete(t *testing.T) {
	f := setup(t, Options{})
	u1, u2, u3 := f.user(t, "u1"), f.user(t, "u2"), f.user(t, "u3")
	room := f.room(t, u1)
	f.join(t, room.ID, u2)

	mod, err := f.svc.CreateRole(f.ctx, room.ID, u1, "Mod", CapabilitySet{DeleteMessages: true})
	require.NoError(t, err)
	require.NoError(t, f.svc.AssignRole(f.ctx, room.ID, mod.ID, u2, u1))

	m1 := f.send(t, room.ID, u2, "hi", nil)
	require.NoError(t, f.svc.Delete(f.ctx, m1.ID, u2))

	m2 := f.send(t, room.ID, u1, "hello", nil)
	require.NoError(t, f.svc.Delete(f.ctx, m2.ID, u2))

	sibling := f.send(t, room.ID, u1, "another", nil)
	f.join(t, room.ID, u3)
	assert.ErrorIs(t, f.svc.Delete(f.ctx, sibling.ID, u3), ErrNoPermission)

	_, err = f.svc.GetByID(f.ctx, sibling.ID)
	assert.NoError(t, err)
}

func TestSendValidation(t *testing.T) {
	f := setup(t, Options{MaxMessageLength: 10})
	owner, outsider := f.user(t, "owner"), f.user(t, "outsider")
	room := f.room(t, owner)
	f.events.reset()

	_, err := f.svc.Send(f.ctx, room.ID, owner, "   ", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.Send(f.ctx, room.ID, owner, strings.Repeat("a", 11), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.Send(f.ctx, room.ID, outsider, "hi", nil)
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = f.svc.Send(f.ctx, 999, owner, "hi", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.events.types(), "failed sends publish nothing")

	msg, err := f.svc.Send(f.ctx, room.ID, owner, "ünïcödé ok", nil)
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Nil(t, msg.EditedAt)

	ev := f.events.last()
	assert.Equal(t, EventMessageSent, ev.Type)
	assert.Equal(t, room.ID, ev.RoomID)
	assert.Equal(t, msg, ev.Data)
}

func TestEdit(t *testing.T) {
	f := setup(t, Options{})
	owner, alice := f.user(t, "owner"), f.user(t, "alice")
	room := f.room(t, owner)
	f.join(t, room.ID, alice)
	msg := f.send(t, room.ID, alice, "draft", nil)

	_, err := f.svc.Edit(f.ctx, msg.ID, owner, "hijacked")
	assert.ErrorIs(t, err, ErrNotAuthor)

	_, err = f.svc.Edit(f.ctx, 999, alice, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Edit(f.ctx, msg.ID, alice, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	edited, err := f.svc.Edit(f.ctx, msg.ID, alice, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	require.NotNil(t, edited.EditedAt)

	ev := f.events.last()
	assert.Equal(t, EventMessageEdited, ev.Type)
	payload, ok := ev.Data.(MessageEditedPayload)
	require.True(t, ok)
	assert.Equal(t, msg.ID, payload.ID)
	assert.Equal(t, "final", payload.Content)

	stored, err := f.svc.GetByID(f.ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", stored.Content)
	assert.Equal(t, msg.SentAt.Unix(), stored.SentAt.Unix())
	assert.Nil(t, stored.ReplyToMessageID)
}

func TestDeleteCascadesReactionsAndOrphansReplies(t *testing.T) {
	f := setup(t, Options{})
	owner, alice := f.user(t, "owner"), f.user(t, "alice")
	room := f.room(t, owner)
	f.join(t, room.ID, alice)

	parent := f.send(t, room.ID, alice, "parent", nil)
	reply := f.send(t, room.ID, owner, "reply", idPtr(parent.ID))
	_, err := f.svc.AddReaction(f.ctx, parent.ID, owner, "🔥")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(f.ctx, parent.ID, alice))
	ev := f.events.last()
	assert.Equal(t, EventMessageDeleted, ev.Type)
	assert.Equal(t, MessageDeletedPayload{ID: parent.ID}, ev.Data)

	assert.EqualValues(t, 0, f.count(t, &Reaction{}, "message_id = ?", parent.ID))

	got, err := f.svc.GetByID(f.ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReplyToMessageID)
	assert.True(t, got.Orphaned)
	assert.True(t, got.IsRoot())

	page, err := f.svc.GetRoomMessages(f.ctx, room.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, page[0].Orphaned)

	_, err = f.svc.GetReplies(f.ctx, parent.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(f.ctx, parent.ID, alice), ErrNotFound)
}

func TestRoomMessagesPaging(t *testing.T) {
	f := setup(t, Options{})
	owner := f.user(t, "owner")
	room := f.room(t, owner)

	var sent []*Message
	for _, c := range []string{"one", "two", "three", "four"} {
		sent = append(sent, f.send(t, room.ID, owner, c, nil))
	}

	page, err := f.svc.GetRoomMessages(f.ctx, room.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, sent[3].ID, page[0].ID)
	assert.Equal(t, sent[2].ID, page[1].ID)

	page, err = f.svc.GetRoomMessages(f.ctx, room.ID, 2, 100)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, sent[1].ID, page[0].ID)
	assert.False(t, page[0].Orphaned)

	for _, tc := range []struct{ skip, take int }{{-1, 10}, {0, 0}, {0, 101}} {
		_, err := f.svc.GetRoomMessages(f.ctx, room.ID, tc.skip, tc.take)
		assert.ErrorIs(t, err, ErrInvalidArgument, "skip=%d take=%d", tc.skip, tc.take)
	}

	_, err = f.svc.GetRoomMessages(f.ctx, 999, 0, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRepliesOldestFirst(t *testing.T) {
	f := setup(t, Options{})
	owner := f.user(t, "owner")
	room := f.room(t, owner)
	root := f.send(t, room.ID, owner, "root", nil)
	first := f.send(t, room.ID, owner, "first", idPtr(root.ID))
	second := f.send(t, room.ID, owner, "second", idPtr(root.ID))
	f.send(t, room.ID, owner, "nested", idPtr(first.ID))

	replies, err := f.svc.GetReplies(f.ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, first.ID, replies[0].ID)
	assert.Equal(t, second.ID, replies[1].ID)
}
