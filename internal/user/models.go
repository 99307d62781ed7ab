package user

import (
	"time"
)

// User is the identity every room-scoped record refers to by ID.
type User struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string    `json:"display_name"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Block records that BlockingUserID no longer wants to see BlockedUserID.
type Block struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	BlockingUserID string    `gorm:"not null;uniqueIndex:idx_block_pair" json:"blocking_user_id"`
	BlockedUserID  string    `gorm:"not null;uniqueIndex:idx_block_pair;index" json:"blocked_user_id"`
	Reason         string    `gorm:"default:''" json:"reason,omitempty"`
	BlockedAt      time.Time `gorm:"not null" json:"blocked_at"`
}

func (Block) TableName() string {
	return "user_blocks"
}

// Models lists the tables owned by this package, in migration order.
func Models() []interface{} {
	return []interface{}{&User{}, &Block{}}
}
