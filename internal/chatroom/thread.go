package chatroom

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ValidateReplyTarget checks that a message in roomID may reply to replyToID.
// messageID is the id of the replying message, or 0 when it does not exist yet.
//
// The walk follows parent pointers upward from the target and fails with
// ErrCyclicReply when it reaches messageID, revisits a node, or runs past the
// configured depth. A dangling parent pointer ends the walk.
func (s *Service) ValidateReplyTarget(ctx context.Context, roomID, messageID, replyToID uint) error {
	if err := validRoomID(roomID); err != nil {
		return err
	}
	if err := validMessageID("reply target id", replyToID); err != nil {
		return err
	}
	return validateReplyTarget(s.db.WithContext(ctx), roomID, messageID, replyToID, s.maxReplyDepth)
}

// replyLink is the part of a message the walk needs.
type replyLink struct {
	ID               uint
	RoomID           uint
	ReplyToMessageID *uint
}

func validateReplyTarget(tx *gorm.DB, roomID, messageID, replyToID uint, maxDepth int) error {
	target, err := findReplyLink(tx, replyToID)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("%w: message %d", ErrNotFound, replyToID)
	}
	if target.RoomID != roomID {
		return ErrCrossRoom
	}
	if messageID != 0 && target.ID == messageID {
		return fmt.Errorf("%w: message %d cannot reply to itself", ErrCyclicReply, messageID)
	}

	visited := map[uint]struct{}{target.ID: {}}
	next := target.ReplyToMessageID
	for depth := 0; next != nil; depth++ {
		if depth >= maxDepth {
			return fmt.Errorf("%w: reply chain deeper than %d", ErrCyclicReply, maxDepth)
		}
		id := *next
		if messageID != 0 && id == messageID {
			return fmt.Errorf("%w: message %d is an ancestor of %d", ErrCyclicReply, messageID, replyToID)
		}
		if _, seen := visited[id]; seen {
			return fmt.Errorf("%w: chain above message %d loops at %d", ErrCyclicReply, replyToID, id)
		}
		visited[id] = struct{}{}

		parent, err := findReplyLink(tx, id)
		if err != nil {
			return err
		}
		if parent == nil {
			break
		}
		next = parent.ReplyToMessageID
	}
	return nil
}

func findReplyLink(tx *gorm.DB, id uint) (*replyLink, error) {
	var links []replyLink
	err := tx.Model(&Message{}).Select("id", "room_id", "reply_to_message_id").
		Where("id = ?", id).Limit(1).Find(&links).Error
	if err != nil || len(links) == 0 {
		return nil, err
	}
	return &links[0], nil
}
