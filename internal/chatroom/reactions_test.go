package chatroom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactions(t *testing.T) {
	f := setup(t, Options{})
	owner, alice, outsider := f.user(t, "owner"), f.user(t, "alice"), f.user(t, "outsider")
	room := f.room(t, owner)
	f.join(t, room.ID, alice)
	msg := f.send(t, room.ID, owner, "vote", nil)

	_, err := f.svc.AddReaction(f.ctx, msg.ID, outsider, "👍")
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = f.svc.AddReaction(f.ctx, 999, alice, "👍")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.AddReaction(f.ctx, msg.ID, alice, " ")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.AddReaction(f.ctx, msg.ID, alice, "👍")
	require.NoError(t, err)
	assert.Equal(t, EventReactionAdded, f.events.last().Type)

	_, err = f.svc.AddReaction(f.ctx, msg.ID, alice, "👍")
	assert.ErrorIs(t, err, ErrAlreadyReacted)

	_, err = f.svc.AddReaction(f.ctx, msg.ID, owner, "👍")
	require.NoError(t, err)
	_, err = f.svc.AddReaction(f.ctx, msg.ID, owner, "🎉")
	require.NoError(t, err)

	summary, err := f.svc.ReactionSummary(f.ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"👍": 2, "🎉": 1}, summary)

	n, err := f.svc.ReactionCount(f.ctx, msg.ID, "👍")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = f.svc.ReactionCount(f.ctx, 999, "👍")
	assert.ErrorIs(t, err, ErrNotFound)

	reacted, err := f.svc.HasReacted(f.ctx, msg.ID, alice, "🎉")
	require.NoError(t, err)
	assert.False(t, reacted)

	list, err := f.svc.ListReactions(f.ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, alice, list[0].UserID)

	require.NoError(t, f.svc.RemoveReaction(f.ctx, msg.ID, alice, "👍"))
	assert.Equal(t, EventReactionRemoved, f.events.last().Type)
	assert.ErrorIs(t, f.svc.RemoveReaction(f.ctx, msg.ID, alice, "👍"), ErrNotFound)

	reacted, err = f.svc.HasReacted(f.ctx, msg.ID, alice, "👍")
	require.NoError(t, err)
	assert.False(t, reacted)
}
