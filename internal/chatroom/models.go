package chatroom

import (
	"time"
)

type Chatroom struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `gorm:"not null;index" json:"owner_id"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership exists exactly while UserID is a member of RoomID.
type Membership struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	RoomID   uint      `gorm:"not null;uniqueIndex:idx_membership_room_user" json:"room_id"`
	UserID   string    `gorm:"not null;uniqueIndex:idx_membership_room_user;index" json:"user_id"`
	IsMuted  bool      `gorm:"not null;default:false" json:"is_muted"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`
}

type Role struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	RoomID            uint      `gorm:"not null;index" json:"room_id"`
	Name              string    `gorm:"not null" json:"name"`
	CanDeleteMessages bool      `gorm:"not null;default:false" json:"can_delete_messages"`
	CanBanUsers       bool      `gorm:"not null;default:false" json:"can_ban_users"`
	CanManageRoles    bool      `gorm:"not null;default:false" json:"can_manage_roles"`
	CreatedAt         time.Time `json:"created_at"`
}

// RoleAssignment joins a membership to a role. It is removed together with
// either side.
type RoleAssignment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MembershipID uint      `gorm:"not null;uniqueIndex:idx_assignment_member_role" json:"membership_id"`
	RoleID       uint      `gorm:"not null;uniqueIndex:idx_assignment_member_role;index" json:"role_id"`
	AssignedAt   time.Time `gorm:"not null" json:"assigned_at"`
}

// Ban excludes BannedUserID from RoomID until it is lifted. BannedByUserID is
// kept even if that user later leaves the room.
type Ban struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RoomID         uint      `gorm:"not null;uniqueIndex:idx_ban_room_user" json:"room_id"`
	BannedUserID   string    `gorm:"not null;uniqueIndex:idx_ban_room_user;index" json:"banned_user_id"`
	BannedByUserID *string   `json:"banned_by_user_id,omitempty"`
	Reason         string    `gorm:"default:''" json:"reason,omitempty"`
	BannedAt       time.Time `gorm:"not null" json:"banned_at"`
}

// Message rows form a forest per room through ReplyToMessageID. The parent
// pointer is written once at creation and may dangle after the parent is deleted.
type Message struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	RoomID           uint       `gorm:"not null;index" json:"room_id"`
	AuthorID         string     `gorm:"not null;index" json:"author_id"`
	Content          string     `gorm:"not null" json:"content"`
	SentAt           time.Time  `gorm:"not null;index" json:"sent_at"`
	EditedAt         *time.Time `json:"edited_at,omitempty"`
	ReplyToMessageID *uint      `gorm:"index" json:"reply_to_message_id,omitempty"`

	// Orphaned is set by read paths when ReplyToMessageID points at a deleted message.
	Orphaned bool `gorm:"-" json:"orphaned,omitempty"`
}

// IsRoot reports whether readers should treat the message as a thread root.
func (m *Message) IsRoot() bool {
	return m.ReplyToMessageID == nil || m.Orphaned
}

type Reaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_reaction_message_user_emoji" json:"message_id"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_reaction_message_user_emoji;index" json:"user_id"`
	Emoji     string    `gorm:"not null;uniqueIndex:idx_reaction_message_user_emoji" json:"emoji"`
	ReactedAt time.Time `gorm:"not null" json:"reacted_at"`
}

// Models lists the tables owned by this package, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Chatroom{},
		&Membership{},
		&Role{},
		&RoleAssignment{},
		&Ban{},
		&Message{},
		&Reaction{},
	}
}
