package chatroom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatroom-server/internal/db"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RoleUpdate carries the fields to change; nil fields are left alone.
type RoleUpdate struct {
	Name              *string `json:"name,omitempty"`
	CanDeleteMessages *bool   `json:"can_delete_messages,omitempty"`
	CanBanUsers       *bool   `json:"can_ban_users,omitempty"`
	CanManageRoles    *bool   `json:"can_manage_roles,omitempty"`
}

func (s *Service) CreateRole(ctx context.Context, roomID uint, actorID, name string, grants CapabilitySet) (*Role, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	if err := validUserID("acting user id", actorID); err != nil {
		return nil, err
	}
	name, err := validRoleName(name)
	if err != nil {
		return nil, err
	}

	role := &Role{
		RoomID:            roomID,
		Name:              name,
		CanDeleteMessages: grants.DeleteMessages,
		CanBanUsers:       grants.BanUsers,
		CanManageRoles:    grants.ManageRoles,
		CreatedAt:         s.now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if err := requireCapability(tx, room, actorID, CapManageRoles, "create roles"); err != nil {
			return err
		}
		return tx.Create(role).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("room_id", roomID).Uint("role_id", role.ID).Str("actor_id", actorID).Msg("role created")
	return role, nil
}

// UpdateRole applies a partial update. Revoking a grant takes effect on the
// holders' next check.
func (s *Service) UpdateRole(ctx context.Context, roleID uint, actorID string, upd RoleUpdate) (*Role, error) {
	if roleID == 0 {
		return nil, fmt.Errorf("%w: role id must be greater than 0", ErrInvalidArgument)
	}
	if err := validUserID("acting user id", actorID); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if upd.Name != nil {
		name, err := validRoleName(*upd.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if upd.CanDeleteMessages != nil {
		updates["can_delete_messages"] = *upd.CanDeleteMessages
	}
	if upd.CanBanUsers != nil {
		updates["can_ban_users"] = *upd.CanBanUsers
	}
	if upd.CanManageRoles != nil {
		updates["can_manage_roles"] = *upd.CanManageRoles
	}

	var role *Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		role, err = loadRole(tx, roleID)
		if err != nil {
			return err
		}
		room, err := lockRoom(tx, role.RoomID)
		if err != nil {
			return err
		}
		if err := requireCapability(tx, room, actorID, CapManageRoles, "update roles"); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&Role{}).Where("id = ?", roleID).Updates(updates).Error; err != nil {
			return err
		}
		role, err = loadRole(tx, roleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes the role and all of its assignments.
func (s *Service) DeleteRole(ctx context.Context, roleID uint, actorID string) error {
	if roleID == 0 {
		return fmt.Errorf("%w: role id must be greater than 0", ErrInvalidArgument)
	}
	if err := validUserID("acting user id", actorID); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := loadRole(tx, roleID)
		if err != nil {
			return err
		}
		room, err := lockRoom(tx, role.RoomID)
		if err != nil {
			return err
		}
		if err := requireCapability(tx, room, actorID, CapManageRoles, "delete roles"); err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&RoleAssignment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Role{}, roleID).Error
	})
	if err != nil {
		return err
	}

	log.Info().Uint("role_id", roleID).Str("actor_id", actorID).Msg("role deleted")
	return nil
}

func (s *Service) GetRole(ctx context.Context, roleID uint) (*Role, error) {
	if roleID == 0 {
		return nil, fmt.Errorf("%w: role id must be greater than 0", ErrInvalidArgument)
	}
	return loadRole(s.db.WithContext(ctx), roleID)
}

func (s *Service) ListRoles(ctx context.Context, roomID uint) ([]Role, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	var roles []Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadRoom(tx, roomID); err != nil {
			return err
		}
		return tx.Where("room_id = ?", roomID).Order("id").Find(&roles).Error
	})
	return roles, err
}

// ListMemberRoles returns the roles assigned to userID in roomID.
func (s *Service) ListMemberRoles(ctx context.Context, roomID uint, userID string) ([]Role, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	if err := validUserID("user id", userID); err != nil {
		return nil, err
	}
	return assignedRoles(s.db.WithContext(ctx), roomID, userID)
}

func (s *Service) AssignRole(ctx context.Context, roomID, roleID uint, targetUserID, actorID string) error {
	if err := validAssignmentArgs(roomID, roleID, targetUserID, actorID); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := assignmentPreconditions(tx, roomID, roleID, targetUserID, actorID, "assign roles")
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&RoleAssignment{}).Where("membership_id = ? AND role_id = ?", m.ID, roleID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyAssigned
		}
		err = tx.Create(&RoleAssignment{MembershipID: m.ID, RoleID: roleID, AssignedAt: s.now()}).Error
		if err != nil && db.IsUniqueViolation(err) {
			return ErrAlreadyAssigned
		}
		return err
	})
	if err != nil {
		return err
	}

	log.Info().Uint("room_id", roomID).Uint("role_id", roleID).Str("user_id", targetUserID).Str("actor_id", actorID).Msg("role assigned")
	s.publish(Event{Type: EventRoleAssigned, RoomID: roomID, UserID: targetUserID, Data: RoleAssignmentPayload{RoleID: roleID, UserID: targetUserID}})
	return nil
}

func (s *Service) UnassignRole(ctx context.Context, roomID, roleID uint, targetUserID, actorID string) error {
	if err := validAssignmentArgs(roomID, roleID, targetUserID, actorID); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := assignmentPreconditions(tx, roomID, roleID, targetUserID, actorID, "unassign roles")
		if err != nil {
			return err
		}
		res := tx.Where("membership_id = ? AND role_id = ?", m.ID, roleID).Delete(&RoleAssignment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotAssigned
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Uint("room_id", roomID).Uint("role_id", roleID).Str("user_id", targetUserID).Str("actor_id", actorID).Msg("role unassigned")
	s.publish(Event{Type: EventRoleUnassigned, RoomID: roomID, UserID: targetUserID, Data: RoleAssignmentPayload{RoleID: roleID, UserID: targetUserID}})
	return nil
}

// assignmentPreconditions checks the role belongs to the room, the actor may
// manage roles and the target is a member, returning the target's membership.
func assignmentPreconditions(tx *gorm.DB, roomID, roleID uint, targetUserID, actorID, action string) (*Membership, error) {
	room, err := lockRoom(tx, roomID)
	if err != nil {
		return nil, err
	}
	role, err := loadRole(tx, roleID)
	if err != nil {
		return nil, err
	}
	if role.RoomID != roomID {
		return nil, fmt.Errorf("%w: role %d in chatroom %d", ErrNotFound, roleID, roomID)
	}
	if err := requireCapability(tx, room, actorID, CapManageRoles, action); err != nil {
		return nil, err
	}
	m, err := findMembership(tx, roomID, targetUserID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: chatroom %d", ErrNotMember, roomID)
	}
	return m, nil
}

func loadRole(tx *gorm.DB, roleID uint) (*Role, error) {
	var role Role
	if err := tx.First(&role, roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: role %d", ErrNotFound, roleID)
		}
		return nil, err
	}
	return &role, nil
}

func validRoleName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxRoleNameLength {
		return "", fmt.Errorf("%w: role name must be 1-%d characters", ErrInvalidArgument, maxRoleNameLength)
	}
	return name, nil
}

func validAssignmentArgs(roomID, roleID uint, targetUserID, actorID string) error {
	if err := validRoomID(roomID); err != nil {
		return err
	}
	if roleID == 0 {
		return fmt.Errorf("%w: role id must be greater than 0", ErrInvalidArgument)
	}
	if err := validUserID("target user id", targetUserID); err != nil {
		return err
	}
	return validUserID("acting user id", actorID)
}
