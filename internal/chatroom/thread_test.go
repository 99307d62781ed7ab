package chatroom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyCannotCloseACycle(t *testing.T) {
	f := setup(t, Options{})
	u1 := f.user(t, "u1")
	room := f.room(t, u1)

	m1 := f.send(t, room.ID, u1, "root", nil)
	m2 := f.send(t, room.ID, u1, "reply", idPtr(m1.ID))
	m3 := f.send(t, room.ID, u1, "reply to reply", idPtr(m2.ID))

	// Making m1 reply to m3 would close m1 <- m2 <- m3 <- m1.
	err := f.svc.ValidateReplyTarget(f.ctx, room.ID, m1.ID, m3.ID)
	assert.ErrorIs(t, err, ErrCyclicReply)

	err = f.svc.ValidateReplyTarget(f.ctx, room.ID, m1.ID, m1.ID)
	assert.ErrorIs(t, err, ErrCyclicReply)

	assert.NoError(t, f.svc.ValidateReplyTarget(f.ctx, room.ID, 0, m3.ID))
	assert.NoError(t, f.svc.ValidateReplyTarget(f.ctx, room.ID, m3.ID, m1.ID))
}

func TestReplyTargetChecks(t *testing.T) {
	f := setup(t, Options{})
	owner := f.user(t, "owner")
	room := f.room(t, owner)
	other := f.room(t, owner)
	foreign := f.send(t, other.ID, owner, "elsewhere", nil)

	err := f.svc.ValidateReplyTarget(f.ctx, room.ID, 0, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.svc.ValidateReplyTarget(f.ctx, room.ID, 0, foreign.ID)
	assert.ErrorIs(t, err, ErrCrossRoom)

	_, err = f.svc.Send(f.ctx, room.ID, owner, "hi", idPtr(foreign.ID))
	assert.ErrorIs(t, err, ErrCrossRoom)

	_, err = f.svc.Send(f.ctx, room.ID, owner, "hi", idPtr(999))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Send(f.ctx, room.ID, owner, "hi", idPtr(0))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.EqualValues(t, 0, f.count(t, &Message{}, "room_id = ?", room.ID))
}

func TestReplyDepthCap(t *testing.T) {
	f := setup(t, Options{MaxReplyDepth: 3})
	owner := f.user(t, "owner")
	room := f.room(t, owner)

	prev := f.send(t, room.ID, owner, "m1", nil)
	for i := 0; i < 4; i++ {
		prev = f.send(t, room.ID, owner, "deeper", idPtr(prev.ID))
	}

	// prev now has four ancestors, one more than the walk may visit.
	_, err := f.svc.Send(f.ctx, room.ID, owner, "too deep", idPtr(prev.ID))
	assert.ErrorIs(t, err, ErrCyclicReply)
}

func TestWalkDetectsStoredLoop(t *testing.T) {
	f := setup(t, Options{})
	owner := f.user(t, "owner")
	room := f.room(t, owner)
	m1 := f.send(t, room.ID, owner, "a", nil)
	m2 := f.send(t, room.ID, owner, "b", idPtr(m1.ID))

	// Corrupt the store directly; the service never allows this.
	require.NoError(t, f.conn.Model(&Message{}).Where("id = ?", m1.ID).Update("reply_to_message_id", m2.ID).Error)

	err := f.svc.ValidateReplyTarget(f.ctx, room.ID, 0, m2.ID)
	assert.ErrorIs(t, err, ErrCyclicReply)
}

func TestDanglingParentEndsWalk(t *testing.T) {
	f := setup(t, Options{})
	owner := f.user(t, "owner")
	room := f.room(t, owner)
	root := f.send(t, room.ID, owner, "root", nil)
	child := f.send(t, room.ID, owner, "child", idPtr(root.ID))
	require.NoError(t, f.svc.Delete(f.ctx, root.ID, owner))

	grandchild, err := f.svc.Send(f.ctx, room.ID, owner, "grandchild", idPtr(child.ID))
	require.NoError(t, err)
	require.NotNil(t, grandchild.ReplyToMessageID)
	assert.Equal(t, child.ID, *grandchild.ReplyToMessageID)
}
