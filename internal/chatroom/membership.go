package chatroom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatroom-server/internal/db"
	"chatroom-server/internal/user"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRoom creates a chatroom owned by ownerID and makes the owner its first member.
func (s *Service) CreateRoom(ctx context.Context, ownerID, name, description string) (*Chatroom, error) {
	if err := validUserID("owner id", ownerID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxRoomNameLength {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidArgument, maxRoomNameLength)
	}
	if len(description) > maxRoomDescriptionLength {
		return nil, fmt.Errorf("%w: description longer than %d characters", ErrInvalidArgument, maxRoomDescriptionLength)
	}

	now := s.now()
	room := &Chatroom{
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		IsActive:    true,
		CreatedAt:   now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireActiveUser(tx, ownerID); err != nil {
			return err
		}
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		return tx.Create(&Membership{RoomID: room.ID, UserID: ownerID, JoinedAt: now}).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("room_id", room.ID).Str("user_id", ownerID).Msg("chatroom created")
	s.publish(Event{Type: EventMemberJoined, RoomID: room.ID, UserID: ownerID, Data: MemberPayload{UserID: ownerID}})
	return room, nil
}

// UpdateRoom changes the name and description. Only the owner may do this.
func (s *Service) UpdateRoom(ctx context.Context, roomID uint, actorID string, name, description *string) (*Chatroom, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	if err := validUserID("acting user id", actorID); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" || len(n) > maxRoomNameLength {
			return nil, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidArgument, maxRoomNameLength)
		}
		updates["name"] = n
	}
	if description != nil {
		if len(*description) > maxRoomDescriptionLength {
			return nil, fmt.Errorf("%w: description longer than %d characters", ErrInvalidArgument, maxRoomDescriptionLength)
		}
		updates["description"] = *description
	}

	var room *Chatroom
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		room, err = lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.OwnerID != actorID {
			return fmt.Errorf("%w: only the owner can edit chatroom %d", ErrNoPermission, roomID)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(room).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(room, roomID).Error
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// Join adds userID to roomID unless the user is banned or already a member.
func (s *Service) Join(ctx context.Context, roomID uint, userID string) (*Membership, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	if err := validUserID("user id", userID); err != nil {
		return nil, err
	}

	m := &Membership{RoomID: roomID, UserID: userID, JoinedAt: s.now()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockRoom(tx, roomID); err != nil {
			return err
		}
		if err := requireActiveUser(tx, userID); err != nil {
			return err
		}
		banned, err := isBannedTx(tx, roomID, userID)
		if err != nil {
			return err
		}
		if banned {
			return fmt.Errorf("%w: chatroom %d", ErrBanned, roomID)
		}
		existing, err := findMembership(tx, roomID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: chatroom %d", ErrAlreadyMember, roomID)
		}
		if err := tx.Create(m).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: chatroom %d", ErrAlreadyMember, roomID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("room_id", roomID).Str("user_id", userID).Msg("member joined")
	s.publish(Event{Type: EventMemberJoined, RoomID: roomID, UserID: userID, Data: MemberPayload{UserID: userID}})
	return m, nil
}

// Leave removes userID's own membership. The owner must transfer ownership first.
func (s *Service) Leave(ctx context.Context, roomID uint, userID string) error {
	if err := validRoomID(roomID); err != nil {
		return err
	}
	if err := validUserID("user id", userID); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.OwnerID == userID {
			return ErrOwnerCannotLeave
		}
		return removeMembership(tx, roomID, userID)
	})
	if err != nil {
		return err
	}

	log.Info().Uint("room_id", roomID).Str("user_id", userID).Msg("member left")
	s.publish(Event{Type: EventMemberLeft, RoomID: roomID, UserID: userID, Data: MemberPayload{UserID: userID}})
	return nil
}

// RemoveMember removes targetUserID on behalf of actorID. Removing yourself is Leave.
func (s *Service) RemoveMember(ctx context.Context, roomID uint, targetUserID, actorID string) error {
	if err := validRoomID(roomID); err != nil {
		return err
	}
	if err := validUserID("target user id", targetUserID); err != nil {
		return err
	}
	if err := validUserID("acting user id", actorID); err != nil {
		return err
	}
	if targetUserID == actorID {
		return s.Leave(ctx, roomID, targetUserID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if err := requireCapability(tx, room, actorID, CapManageRoles, "remove members"); err != nil {
			return err
		}
		if room.OwnerID == targetUserID {
			return ErrCannotRemoveOwner
		}
		return removeMembership(tx, roomID, targetUserID)
	})
	if err != nil {
		return err
	}

	log.Info().Uint("room_id", roomID).Str("user_id", targetUserID).Str("actor_id", actorID).Msg("member removed")
	s.publish(Event{Type: EventMemberLeft, RoomID: roomID, UserID: targetUserID, Data: MemberPayload{UserID: targetUserID, ActorID: actorID}})
	return nil
}

// TransferOwnership hands roomID to newOwnerID, who must already be a member.
// Only the current owner can transfer.
func (s *Service) TransferOwnership(ctx context.Context, roomID uint, actorID, newOwnerID string) error {
	if err := validRoomID(roomID); err != nil {
		return err
	}
	if err := validUserID("acting user id", actorID); err != nil {
		return err
	}
	if err := validUserID("new owner id", newOwnerID); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.OwnerID != actorID {
			return fmt.Errorf("%w: only the owner can transfer chatroom %d", ErrNoPermission, roomID)
		}
		if newOwnerID == actorID {
			return fmt.Errorf("%w: user already owns chatroom %d", ErrInvalidArgument, roomID)
		}
		m, err := findMembership(tx, roomID, newOwnerID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrMustBeMemberToReceiveOwnership
		}
		return tx.Model(&Chatroom{}).Where("id = ?", roomID).Update("owner_id", newOwnerID).Error
	})
	if err != nil {
		return err
	}

	log.Info().Uint("room_id", roomID).Str("user_id", newOwnerID).Str("actor_id", actorID).Msg("ownership transferred")
	s.publish(Event{Type: EventOwnershipTransferred, RoomID: roomID, UserID: newOwnerID,
		Data: OwnershipPayload{PreviousOwnerID: actorID, NewOwnerID: newOwnerID}})
	return nil
}

// DeleteRoom removes the room and everything in it. Owner only.
func (s *Service) DeleteRoom(ctx context.Context, roomID uint, actorID string) error {
	if err := validRoomID(roomID); err != nil {
		return err
	}
	if err := validUserID("acting user id", actorID); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.OwnerID != actorID {
			return fmt.Errorf("%w: only the owner can delete chatroom %d", ErrNoPermission, roomID)
		}

		messageIDs := tx.Model(&Message{}).Select("id").Where("room_id = ?", roomID)
		if err := tx.Where("message_id IN (?)", messageIDs).Delete(&Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", roomID).Delete(&Message{}).Error; err != nil {
			return err
		}
		roleIDs := tx.Model(&Role{}).Select("id").Where("room_id = ?", roomID)
		if err := tx.Where("role_id IN (?)", roleIDs).Delete(&RoleAssignment{}).Error; err != nil {
			return err
		}
		for _, model := range []interface{}{&Role{}, &Ban{}, &Membership{}} {
			if err := tx.Where("room_id = ?", roomID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&Chatroom{}, roomID).Error
	})
	if err != nil {
		return err
	}

	log.Info().Uint("room_id", roomID).Str("actor_id", actorID).Msg("chatroom deleted")
	s.publish(Event{Type: EventRoomDeleted, RoomID: roomID, Data: MemberPayload{ActorID: actorID}})
	return nil
}

func (s *Service) GetRoom(ctx context.Context, roomID uint) (*Chatroom, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	return loadRoom(s.db.WithContext(ctx), roomID)
}

// ListRooms pages through active rooms, newest first.
func (s *Service) ListRooms(ctx context.Context, skip, take int) ([]Chatroom, error) {
	if err := validPage(skip, take); err != nil {
		return nil, err
	}
	var rooms []Chatroom
	err := s.db.WithContext(ctx).Where("is_active = ?", true).
		Order("created_at DESC").Order("id DESC").
		Offset(skip).Limit(take).Find(&rooms).Error
	return rooms, err
}

func (s *Service) IsMember(ctx context.Context, roomID uint, userID string) (bool, error) {
	if err := validRoomID(roomID); err != nil {
		return false, err
	}
	if err := validUserID("user id", userID); err != nil {
		return false, err
	}
	m, err := findMembership(s.db.WithContext(ctx), roomID, userID)
	return m != nil, err
}

// GetMember returns userID's membership in roomID, or ErrNotMember.
func (s *Service) GetMember(ctx context.Context, roomID uint, userID string) (*Membership, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	if err := validUserID("user id", userID); err != nil {
		return nil, err
	}
	m, err := findMembership(s.db.WithContext(ctx), roomID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: chatroom %d", ErrNotMember, roomID)
	}
	return m, nil
}

// ListMembers returns the room's members, most recent joiners first.
func (s *Service) ListMembers(ctx context.Context, roomID uint) ([]Membership, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	var members []Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadRoom(tx, roomID); err != nil {
			return err
		}
		return tx.Where("room_id = ?", roomID).Order("joined_at DESC").Order("id DESC").Find(&members).Error
	})
	return members, err
}

func (s *Service) MemberCount(ctx context.Context, roomID uint) (int64, error) {
	if err := validRoomID(roomID); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&Membership{}).Where("room_id = ?", roomID).Count(&count).Error
	return count, err
}

// ListUserRooms returns the rooms userID belongs to, most recently joined first.
func (s *Service) ListUserRooms(ctx context.Context, userID string) ([]Chatroom, error) {
	if err := validUserID("user id", userID); err != nil {
		return nil, err
	}
	var rooms []Chatroom
	err := s.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.room_id = chatrooms.id").
		Where("memberships.user_id = ?", userID).
		Order("memberships.joined_at DESC").
		Find(&rooms).Error
	return rooms, err
}

func (s *Service) ListOwnedRooms(ctx context.Context, userID string) ([]Chatroom, error) {
	if err := validUserID("user id", userID); err != nil {
		return nil, err
	}
	var rooms []Chatroom
	err := s.db.WithContext(ctx).Where("owner_id = ?", userID).Order("created_at DESC").Find(&rooms).Error
	return rooms, err
}

// lockRoom is loadRoom for writers. The row lock orders every membership,
// ban and role mutation of a room behind one another on PostgreSQL, so a
// ban racing a join cannot leave both rows behind. SQLite ignores the clause
// and is already serialized by its single connection.
func lockRoom(tx *gorm.DB, roomID uint) (*Chatroom, error) {
	return loadRoom(forUpdate(tx), roomID)
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func loadRoom(tx *gorm.DB, roomID uint) (*Chatroom, error) {
	var room Chatroom
	if err := tx.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: chatroom %d", ErrNotFound, roomID)
		}
		return nil, err
	}
	if !room.IsActive {
		return nil, fmt.Errorf("%w: chatroom %d is inactive", ErrNotFound, roomID)
	}
	return &room, nil
}

func requireActiveUser(tx *gorm.DB, userID string) error {
	ok, err := user.IsActive(tx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return nil
}

// findMembership returns nil without error when there is no membership.
func findMembership(tx *gorm.DB, roomID uint, userID string) (*Membership, error) {
	var ms []Membership
	if err := tx.Where("room_id = ? AND user_id = ?", roomID, userID).Limit(1).Find(&ms).Error; err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, nil
	}
	return &ms[0], nil
}

// removeMembership deletes the membership and its role assignments.
func removeMembership(tx *gorm.DB, roomID uint, userID string) error {
	m, err := findMembership(tx, roomID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: chatroom %d", ErrNotMember, roomID)
	}
	return deleteMembership(tx, m)
}

func deleteMembership(tx *gorm.DB, m *Membership) error {
	if err := tx.Where("membership_id = ?", m.ID).Delete(&RoleAssignment{}).Error; err != nil {
		return err
	}
	return tx.Delete(&Membership{}, m.ID).Error
}
