package chatroom

import "time"

type EventType string

const (
	EventMemberJoined         EventType = "member_joined"
	EventMemberLeft           EventType = "member_left"
	EventMemberMuted          EventType = "member_muted"
	EventMemberUnmuted        EventType = "member_unmuted"
	EventMemberBanned         EventType = "member_banned"
	EventMemberUnbanned       EventType = "member_unbanned"
	EventMessageSent          EventType = "message_sent"
	EventMessageEdited        EventType = "message_edited"
	EventMessageDeleted       EventType = "message_deleted"
	EventTypingIndicator      EventType = "typing_indicator"
	EventRoleAssigned         EventType = "role_assigned"
	EventRoleUnassigned       EventType = "role_unassigned"
	EventReactionAdded        EventType = "reaction_added"
	EventReactionRemoved      EventType = "reaction_removed"
	EventOwnershipTransferred EventType = "ownership_transferred"
	EventRoomDeleted          EventType = "room_deleted"
)

// RevokesMembership reports whether events of this type end a user's (or
// everyone's) right to follow the room.
func (t EventType) RevokesMembership() bool {
	switch t {
	case EventMemberLeft, EventMemberBanned, EventRoomDeleted:
		return true
	}
	return false
}

// Event is a committed state change in a room. UserID names the user the
// change is about, when there is one, so the fan-out layer can react to it
// without decoding Data.
type Event struct {
	Type   EventType   `json:"type"`
	RoomID uint        `json:"room_id"`
	UserID string      `json:"user_id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// Publisher receives events after the transaction that produced them commits.
// Implementations must not block.
type Publisher interface {
	Publish(roomID uint, ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(uint, Event) {}

type MemberPayload struct {
	UserID  string `json:"user_id"`
	ActorID string `json:"actor_id,omitempty"`
}

type BanPayload struct {
	UserID  string `json:"user_id"`
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}

type MessageEditedPayload struct {
	ID       uint      `json:"id"`
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
}

type MessageDeletedPayload struct {
	ID uint `json:"id"`
}

type TypingPayload struct {
	UserID string `json:"user_id"`
}

type RoleAssignmentPayload struct {
	RoleID uint   `json:"role_id"`
	UserID string `json:"user_id"`
}

type ReactionPayload struct {
	MessageID uint   `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

type OwnershipPayload struct {
	PreviousOwnerID string `json:"previous_owner_id"`
	NewOwnerID      string `json:"new_owner_id"`
}
