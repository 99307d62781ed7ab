package chatroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Send posts content to roomID as userID, optionally replying to replyToID.
func (s *Service) Send(ctx context.Context, roomID uint, userID, content string, replyToID *uint) (*Message, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	if err := validUserID("user id", userID); err != nil {
		return nil, err
	}
	if err := s.validContent(content); err != nil {
		return nil, err
	}
	if replyToID != nil {
		if err := validMessageID("reply target id", *replyToID); err != nil {
			return nil, err
		}
	}

	msg := &Message{
		RoomID:           roomID,
		AuthorID:         userID,
		Content:          content,
		SentAt:           s.now(),
		ReplyToMessageID: replyToID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockRoom(tx, roomID); err != nil {
			return err
		}
		m, err := findMembership(tx, roomID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%w: chatroom %d", ErrNotMember, roomID)
		}
		if m.IsMuted {
			return fmt.Errorf("%w: chatroom %d", ErrMuted, roomID)
		}
		if replyToID != nil {
			if err := validateReplyTarget(tx, roomID, 0, *replyToID, s.maxReplyDepth); err != nil {
				return err
			}
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Uint("room_id", roomID).Uint("message_id", msg.ID).Str("user_id", userID).Msg("message sent")
	s.publish(Event{Type: EventMessageSent, RoomID: roomID, UserID: userID, Data: msg})
	return msg, nil
}

// Edit replaces the content of one of userID's own messages.
func (s *Service) Edit(ctx context.Context, messageID uint, userID, content string) (*Message, error) {
	if err := validMessageID("message id", messageID); err != nil {
		return nil, err
	}
	if err := validUserID("user id", userID); err != nil {
		return nil, err
	}
	if err := s.validContent(content); err != nil {
		return nil, err
	}

	var msg *Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		msg, err = loadMessage(tx, messageID)
		if err != nil {
			return err
		}
		if msg.AuthorID != userID {
			return ErrNotAuthor
		}
		editedAt := s.now()
		err = tx.Model(&Message{}).Where("id = ?", messageID).
			Updates(map[string]interface{}{"content": content, "edited_at": editedAt}).Error
		if err != nil {
			return err
		}
		msg.Content = content
		msg.EditedAt = &editedAt
		return markOrphans(tx, []*Message{msg})
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Uint("room_id", msg.RoomID).Uint("message_id", messageID).Str("user_id", userID).Msg("message edited")
	s.publish(Event{Type: EventMessageEdited, RoomID: msg.RoomID, UserID: userID,
		Data: MessageEditedPayload{ID: msg.ID, Content: msg.Content, EditedAt: *msg.EditedAt}})
	return msg, nil
}

// Delete removes a message and its reactions. The author may always delete;
// anyone else needs the owner's rights or delete-messages. Replies are kept
// and their parent pointer is left dangling.
func (s *Service) Delete(ctx context.Context, messageID uint, userID string) error {
	if err := validMessageID("message id", messageID); err != nil {
		return err
	}
	if err := validUserID("user id", userID); err != nil {
		return err
	}

	var msg *Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		msg, err = loadMessage(tx, messageID)
		if err != nil {
			return err
		}
		if msg.AuthorID != userID {
			room, err := loadRoom(tx, msg.RoomID)
			if err != nil {
				return err
			}
			if err := requireCapability(tx, room, userID, CapDeleteMessages, "delete messages"); err != nil {
				return err
			}
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&Reaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Message{}, messageID).Error
	})
	if err != nil {
		return err
	}

	log.Info().Uint("room_id", msg.RoomID).Uint("message_id", messageID).Str("user_id", userID).
		Bool("moderated", msg.AuthorID != userID).Msg("message deleted")
	s.publish(Event{Type: EventMessageDeleted, RoomID: msg.RoomID, UserID: msg.AuthorID, Data: MessageDeletedPayload{ID: messageID}})
	return nil
}

func (s *Service) GetByID(ctx context.Context, messageID uint) (*Message, error) {
	if err := validMessageID("message id", messageID); err != nil {
		return nil, err
	}
	var msg *Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		msg, err = loadMessage(tx, messageID)
		if err != nil {
			return err
		}
		return markOrphans(tx, []*Message{msg})
	})
	return msg, err
}

// GetRoomMessages pages through a room's history, newest first.
func (s *Service) GetRoomMessages(ctx context.Context, roomID uint, skip, take int) ([]Message, error) {
	if err := validRoomID(roomID); err != nil {
		return nil, err
	}
	if err := validPage(skip, take); err != nil {
		return nil, err
	}

	var msgs []Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadRoom(tx, roomID); err != nil {
			return err
		}
		err := tx.Where("room_id = ?", roomID).
			Order("sent_at DESC").Order("id DESC").
			Offset(skip).Limit(take).Find(&msgs).Error
		if err != nil {
			return err
		}
		return markOrphans(tx, pointers(msgs))
	})
	return msgs, err
}

// GetReplies returns the direct replies to messageID, oldest first.
func (s *Service) GetReplies(ctx context.Context, messageID uint) ([]Message, error) {
	if err := validMessageID("message id", messageID); err != nil {
		return nil, err
	}

	var msgs []Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadMessage(tx, messageID); err != nil {
			return err
		}
		return tx.Where("reply_to_message_id = ?", messageID).
			Order("sent_at ASC").Order("id ASC").Find(&msgs).Error
	})
	return msgs, err
}

func (s *Service) validContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message content is empty", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > s.maxMessageLength {
		return fmt.Errorf("%w: message longer than %d characters", ErrInvalidArgument, s.maxMessageLength)
	}
	return nil
}

func loadMessage(tx *gorm.DB, messageID uint) (*Message, error) {
	var msg Message
	if err := tx.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message %d", ErrNotFound, messageID)
		}
		return nil, err
	}
	return &msg, nil
}

// markOrphans flags messages whose parent no longer exists.
func markOrphans(tx *gorm.DB, msgs []*Message) error {
	var parentIDs []uint
	for _, m := range msgs {
		if m.ReplyToMessageID != nil {
			parentIDs = append(parentIDs, *m.ReplyToMessageID)
		}
	}
	if len(parentIDs) == 0 {
		return nil
	}

	var existing []uint
	if err := tx.Model(&Message{}).Where("id IN ?", parentIDs).Pluck("id", &existing).Error; err != nil {
		return err
	}
	found := make(map[uint]struct{}, len(existing))
	for _, id := range existing {
		found[id] = struct{}{}
	}
	for _, m := range msgs {
		if m.ReplyToMessageID == nil {
			continue
		}
		if _, ok := found[*m.ReplyToMessageID]; !ok {
			m.Orphaned = true
		}
	}
	return nil
}

func pointers(msgs []Message) []*Message {
	out := make([]*Message, len(msgs))
	for i := range msgs {
		out[i] = &msgs[i]
	}
	return out
}
