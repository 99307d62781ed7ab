package chatroom

import (
	"context"
	"fmt"
	"strings"

	"chatroom-server/internal/db"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AddReaction records userID reacting to messageID with emoji. The reactor
// must be a member of the message's room.
func (s *Service) AddReaction(ctx context.Context, messageID uint, userID, emoji string) (*Reaction, error) {
	emoji, err := validReactionArgs(messageID, userID, emoji)
	if err != nil {
		return nil, err
	}

	r := &Reaction{MessageID: messageID, UserID: userID, Emoji: emoji, ReactedAt: s.now()}
	var roomID uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := loadMessage(tx, messageID)
		if err != nil {
			return err
		}
		roomID = msg.RoomID
		if err := requireActiveUser(tx, userID); err != nil {
			return err
		}
		m, err := findMembership(tx, msg.RoomID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%w: chatroom %d", ErrNotMember, msg.RoomID)
		}
		reacted, err := hasReactedTx(tx, messageID, userID, emoji)
		if err != nil {
			return err
		}
		if reacted {
			return ErrAlreadyReacted
		}
		if err := tx.Create(r).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyReacted
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Uint("room_id", roomID).Uint("message_id", messageID).Str("user_id", userID).Str("emoji", emoji).Msg("reaction added")
	s.publish(Event{Type: EventReactionAdded, RoomID: roomID, UserID: userID, Data: ReactionPayload{MessageID: messageID, UserID: userID, Emoji: emoji}})
	return r, nil
}

func (s *Service) RemoveReaction(ctx context.Context, messageID uint, userID, emoji string) error {
	emoji, err := validReactionArgs(messageID, userID, emoji)
	if err != nil {
		return err
	}

	var roomID uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := loadMessage(tx, messageID)
		if err != nil {
			return err
		}
		roomID = msg.RoomID
		res := tx.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).Delete(&Reaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: reaction", ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(Event{Type: EventReactionRemoved, RoomID: roomID, UserID: userID, Data: ReactionPayload{MessageID: messageID, UserID: userID, Emoji: emoji}})
	return nil
}

func (s *Service) ListReactions(ctx context.Context, messageID uint) ([]Reaction, error) {
	if err := validMessageID("message id", messageID); err != nil {
		return nil, err
	}
	var reactions []Reaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadMessage(tx, messageID); err != nil {
			return err
		}
		return tx.Where("message_id = ?", messageID).Order("reacted_at ASC").Order("id ASC").Find(&reactions).Error
	})
	return reactions, err
}

// ReactionSummary counts reactions per emoji.
func (s *Service) ReactionSummary(ctx context.Context, messageID uint) (map[string]int64, error) {
	if err := validMessageID("message id", messageID); err != nil {
		return nil, err
	}
	var rows []struct {
		Emoji string
		Count int64
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadMessage(tx, messageID); err != nil {
			return err
		}
		return tx.Model(&Reaction{}).Select("emoji, COUNT(*) AS count").
			Where("message_id = ?", messageID).Group("emoji").Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	summary := make(map[string]int64, len(rows))
	for _, row := range rows {
		summary[row.Emoji] = row.Count
	}
	return summary, nil
}

func (s *Service) ReactionCount(ctx context.Context, messageID uint, emoji string) (int64, error) {
	if err := validMessageID("message id", messageID); err != nil {
		return 0, err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return 0, fmt.Errorf("%w: emoji is required", ErrInvalidArgument)
	}
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadMessage(tx, messageID); err != nil {
			return err
		}
		return tx.Model(&Reaction{}).Where("message_id = ? AND emoji = ?", messageID, emoji).Count(&count).Error
	})
	return count, err
}

func (s *Service) HasReacted(ctx context.Context, messageID uint, userID, emoji string) (bool, error) {
	emoji, err := validReactionArgs(messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	return hasReactedTx(s.db.WithContext(ctx), messageID, userID, emoji)
}

func hasReactedTx(tx *gorm.DB, messageID uint, userID, emoji string) (bool, error) {
	var count int64
	err := tx.Model(&Reaction{}).Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).Count(&count).Error
	return count > 0, err
}

func validReactionArgs(messageID uint, userID, emoji string) (string, error) {
	if err := validMessageID("message id", messageID); err != nil {
		return "", err
	}
	if err := validUserID("user id", userID); err != nil {
		return "", err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiLength {
		return "", fmt.Errorf("%w: emoji must be 1-%d bytes", ErrInvalidArgument, maxEmojiLength)
	}
	return emoji, nil
}
