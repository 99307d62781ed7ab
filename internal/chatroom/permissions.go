package chatroom

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type Capability string

const (
	CapDeleteMessages Capability = "delete_messages"
	CapBanUsers       Capability = "ban_users"
	CapManageRoles    Capability = "manage_roles"
)

type CapabilitySet struct {
	DeleteMessages bool `json:"delete_messages"`
	BanUsers       bool `json:"ban_users"`
	ManageRoles    bool `json:"manage_roles"`
}

func (c CapabilitySet) Has(want Capability) bool {
	switch want {
	case CapDeleteMessages:
		return c.DeleteMessages
	case CapBanUsers:
		return c.BanUsers
	case CapManageRoles:
		return c.ManageRoles
	}
	return false
}

// Aggregate is the union of the given roles' grants. The owner holds everything.
func Aggregate(isOwner bool, roles []Role) CapabilitySet {
	if isOwner {
		return CapabilitySet{DeleteMessages: true, BanUsers: true, ManageRoles: true}
	}
	var set CapabilitySet
	for _, r := range roles {
		set.DeleteMessages = set.DeleteMessages || r.CanDeleteMessages
		set.BanUsers = set.BanUsers || r.CanBanUsers
		set.ManageRoles = set.ManageRoles || r.CanManageRoles
	}
	return set
}

// HasCapability reports whether userID holds want in roomID.
func (s *Service) HasCapability(ctx context.Context, roomID uint, userID string, want Capability) (bool, error) {
	set, err := s.Capabilities(ctx, roomID, userID)
	if err != nil {
		return false, err
	}
	return set.Has(want), nil
}

// Capabilities returns everything userID may do in roomID.
func (s *Service) Capabilities(ctx context.Context, roomID uint, userID string) (CapabilitySet, error) {
	if err := validRoomID(roomID); err != nil {
		return CapabilitySet{}, err
	}
	if err := validUserID("user id", userID); err != nil {
		return CapabilitySet{}, err
	}

	var set CapabilitySet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := loadRoom(tx, roomID)
		if err != nil {
			return err
		}
		set, err = capabilitiesTx(tx, room, userID)
		return err
	})
	return set, err
}

func capabilitiesTx(tx *gorm.DB, room *Chatroom, userID string) (CapabilitySet, error) {
	if room.OwnerID == userID {
		return Aggregate(true, nil), nil
	}
	roles, err := assignedRoles(tx, room.ID, userID)
	if err != nil {
		return CapabilitySet{}, err
	}
	return Aggregate(false, roles), nil
}

// requireCapability fails with ErrNoPermission unless actorID holds want.
func requireCapability(tx *gorm.DB, room *Chatroom, actorID string, want Capability, action string) error {
	set, err := capabilitiesTx(tx, room, actorID)
	if err != nil {
		return err
	}
	if !set.Has(want) {
		return fmt.Errorf("%w: cannot %s in chatroom %d", ErrNoPermission, action, room.ID)
	}
	return nil
}

func assignedRoles(tx *gorm.DB, roomID uint, userID string) ([]Role, error) {
	var roles []Role
	err := tx.Model(&Role{}).
		Joins("JOIN role_assignments ON role_assignments.role_id = roles.id").
		Joins("JOIN memberships ON memberships.id = role_assignments.membership_id").
		Where("roles.room_id = ? AND memberships.room_id = ? AND memberships.user_id = ?", roomID, roomID, userID).
		Find(&roles).Error
	return roles, err
}
