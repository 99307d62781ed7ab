package chatroom

import (
	"context"
	"fmt"

	"chatroom-server/internal/db"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Mute silences targetUserID in roomID. Requires the owner or manage-roles.
func (s *Service) Mute(ctx context.Context, roomID uint, targetUserID, actorID string) error {
	return s.setMuted(ctx, roomID, targetUserID, actorID, true)
}

// Unmute reverses Mute.
func (s *Service) Unmute(ctx context.Context, roomID uint, targetUserID, actorID string) error {
	return s.setMuted(ctx, roomID, targetUserID, actorID, false)
}

func (s *Service) setMuted(ctx context.Context, roomID uint, targetUserID, actorID string, muted bool) error {
	if err := validModerationArgs(roomID, targetUserID, actorID); err != nil {
		return err
	}
	action := "mute members"
	if !muted {
		action = "unmute members"
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if err := requireCapability(tx, room, actorID, CapManageRoles, action); err != nil {
			return err
		}
		m, err := findMembership(tx, roomID, targetUserID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%w: chatroom %d", ErrNotMember, roomID)
		}
		if muted && m.IsMuted {
			return ErrAlreadyMuted
		}
		if !muted && !m.IsMuted {
			return ErrNotMuted
		}
		return tx.Model(&Membership{}).Where("id = ?", m.ID).Update("is_muted", muted).Error
	})
	if err != nil {
		return err
	}

	evType := EventMemberMuted
	if !muted {
		evType = EventMemberUnmuted
	}
	log.Info().Uint("room_id", roomID).Str("user_id", targetUserID).Str("actor_id", actorID).Bool("muted", muted).Msg("mute state changed")
	s.publish(Event{Type: evType, RoomID: roomID, UserID: targetUserID, Data: MemberPayload{UserID: targetUserID, ActorID: actorID}})
	return nil
}

// Ban excludes targetUserID from roomID and removes their membership, if any,
// in the same transaction.
func (s *Service) Ban(ctx context.Context, roomID uint, targetUserID, actorID, reason string) (*Ban, error) {
	if err := validModerationArgs(roomID, targetUserID, actorID); err != nil {
		return nil, err
	}
	if len(reason) > maxBanReasonLength {
		return nil, fmt.Errorf("%w: reason longer than %d characters", ErrInvalidArgument, maxBanReasonLength)
	}

	by := actorID
	ban := &Ban{
		RoomID:         roomID,
		BannedUserID:   targetUserID,
		BannedByUserID: &by,
		Reason:         reason,
		BannedAt:       s.now(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if err := requireCapability(tx, room, actorID, CapBanUsers, "ban users"); err != nil {
			return err
		}
		if room.OwnerID == targetUserID {
			return ErrCannotBanOwner
		}
		banned, err := isBannedTx(tx, roomID, targetUserID)
		if err != nil {
			return err
		}
		if banned {
			return ErrAlreadyBanned
		}
		if err := tx.Create(ban).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyBanned
			}
			return err
		}
		m, err := findMembership(tx, roomID, targetUserID)
		if err != nil {
			return err
		}
		if m != nil {
			return deleteMembership(tx, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("room_id", roomID).Str("user_id", targetUserID).Str("actor_id", actorID).Msg("user banned")
	s.publish(Event{Type: EventMemberBanned, RoomID: roomID, UserID: targetUserID,
		Data: BanPayload{UserID: targetUserID, ActorID: actorID, Reason: reason}})
	return ban, nil
}

// Unban lifts a ban. It does not restore membership.
func (s *Service) Unban(ctx context.Context, roomID uint, targetUserID, actorID string) error {
	if err := validModerationArgs(roomID, targetUserID, actorID); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if err := requireCapability(tx, room, actorID, CapBanUsers, "unban users"); err != nil {
			return err
		}
		res := tx.Where("room_id = ? AND banned_user_id = ?", roomID, targetUserID).Delete(&Ban{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotBanned
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Uint("room_id", roomID).Str("user_id", targetUserID).Str("actor_id", actorID).Msg("user unbanned")
	s.publish(Event{Type: EventMemberUnbanned, RoomID: roomID, UserID: targetUserID, Data: MemberPayload{UserID: targetUserID, ActorID: actorID}})
	return nil
}

func (s *Service) IsBanned(ctx context.Context, roomID uint, userID string) (bool, error) {
	if err := validRoomID(roomID); err != nil {
		return false, err
	}
	if err := validUserID("user id", userID); err != nil {
		return false, err
	}
	return isBannedTx(s.db.WithContext(ctx), roomID, userID)
}

// IsMuted is false for non-members.
func (s *Service) IsMuted(ctx context.Context, roomID uint, userID string) (bool, error) {
	if err := validRoomID(roomID); err != nil {
		return false, err
	}
	if err := validUserID("user id", userID); err != nil {
		return false, err
	}
	m, err := findMembership(s.db.WithContext(ctx), roomID, userID)
	if err != nil || m == nil {
		return false, err
	}
	return m.IsMuted, nil
}

// ListBans returns the room's bans, newest first.
func (s *Service) ListBans(ctx context.Context, roomID uint) ([]Ban, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	var bans []Ban
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadRoom(tx, roomID); err != nil {
			return err
		}
		return tx.Where("room_id = ?", roomID).Order("banned_at DESC").Order("id DESC").Find(&bans).Error
	})
	return bans, err
}

func isBannedTx(tx *gorm.DB, roomID uint, userID string) (bool, error) {
	var count int64
	err := tx.Model(&Ban{}).Where("room_id = ? AND banned_user_id = ?", roomID, userID).Count(&count).Error
	return count > 0, err
}

func validModerationArgs(roomID uint, targetUserID, actorID string) error {
	if err := validRoomID(roomID); err != nil {
		return err
	}
	if err := validUserID("target user id", targetUserID); err != nil {
		return err
	}
	return validUserID("acting user id", actorID)
}
