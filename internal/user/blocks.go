package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatroom-server/internal/db"

	"gorm.io/gorm"
)

func (s *Service) Block(ctx context.Context, blockingUserID, blockedUserID, reason string) (*Block, error) {
	if strings.TrimSpace(blockingUserID) == "" || strings.TrimSpace(blockedUserID) == "" {
		return nil, fmt.Errorf("%w: both user ids are required", ErrInvalidArgument)
	}
	if blockingUserID == blockedUserID {
		return nil, fmt.Errorf("%w: cannot block yourself", ErrInvalidArgument)
	}

	block := &Block{
		BlockingUserID: blockingUserID,
		BlockedUserID:  blockedUserID,
		Reason:         reason,
		BlockedAt:      s.now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range []string{blockingUserID, blockedUserID} {
			var count int64
			if err := tx.Model(&User{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
		}

		var existing int64
		if err := tx.Model(&Block{}).
			Where("blocking_user_id = ? AND blocked_user_id = ?", blockingUserID, blockedUserID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyBlocked
		}

		if err := tx.Create(block).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyBlocked
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

func (s *Service) Unblock(ctx context.Context, blockingUserID, blockedUserID string) error {
	res := s.db.WithContext(ctx).
		Where("blocking_user_id = ? AND blocked_user_id = ?", blockingUserID, blockedUserID).
		Delete(&Block{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotBlocked
	}
	return nil
}

func (s *Service) IsBlocked(ctx context.Context, blockingUserID, blockedUserID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Block{}).
		Where("blocking_user_id = ? AND blocked_user_id = ?", blockingUserID, blockedUserID).
		Count(&count).Error
	return count > 0, err
}

// ListBlocked returns the blocks created by userID, newest first.
func (s *Service) ListBlocked(ctx context.Context, userID string) ([]Block, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	var blocks []Block
	err := s.db.WithContext(ctx).
		Where("blocking_user_id = ?", userID).
		Order("blocked_at DESC").
		Find(&blocks).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return blocks, err
}

// ListBlocking returns the blocks other users hold against userID, newest first.
func (s *Service) ListBlocking(ctx context.Context, userID string) ([]Block, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	var blocks []Block
	err := s.db.WithContext(ctx).
		Where("blocked_user_id = ?", userID).
		Order("blocked_at DESC").
		Find(&blocks).Error
	return blocks, err
}
