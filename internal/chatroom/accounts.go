package chatroom

import (
	"context"
	"errors"
	"fmt"

	"chatroom-server/internal/user"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// DeleteAccount removes userID and everything that hangs off it: memberships,
// role assignments, reactions, authored messages, blocks and bans against
// them. It refuses while the user still owns a room.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := validUserID("user id", userID); err != nil {
		return err
	}

	var (
		left     []Membership
		authored []Message
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u user.User
		if err := tx.First(&u, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %s", ErrNotFound, userID)
			}
			return err
		}

		var owned int64
		if err := tx.Model(&Chatroom{}).Where("owner_id = ?", userID).Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return fmt.Errorf("%w: %d chatroom(s)", ErrOwnsRooms, owned)
		}

		if err := tx.Where("user_id = ?", userID).Find(&left).Error; err != nil {
			return err
		}
		for i := range left {
			if err := deleteMembership(tx, &left[i]); err != nil {
				return err
			}
		}

		if err := tx.Select("id", "room_id").Where("author_id = ?", userID).Find(&authored).Error; err != nil {
			return err
		}
		authoredIDs := tx.Model(&Message{}).Select("id").Where("author_id = ?", userID)
		if err := tx.Where("user_id = ? OR message_id IN (?)", userID, authoredIDs).Delete(&Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", userID).Delete(&Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("banned_user_id = ?", userID).Delete(&Ban{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&Ban{}).Where("banned_by_user_id = ?", userID).Update("banned_by_user_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("blocking_user_id = ? OR blocked_user_id = ?", userID, userID).Delete(&user.Block{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user.User{}, "id = ?", userID).Error
	})
	if err != nil {
		return err
	}

	log.Info().Str("user_id", userID).Int("memberships", len(left)).Int("messages", len(authored)).Msg("account deleted")
	for _, msg := range authored {
		s.publish(Event{Type: EventMessageDeleted, RoomID: msg.RoomID, UserID: userID, Data: MessageDeletedPayload{ID: msg.ID}})
	}
	for _, m := range left {
		s.publish(Event{Type: EventMemberLeft, RoomID: m.RoomID, UserID: userID, Data: MemberPayload{UserID: userID}})
	}
	return nil
}
