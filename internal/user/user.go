package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatroom-server/internal/db"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	maxUsernameLength    = 32
	maxDisplayNameLength = 64
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrAlreadyBlocked  = errors.New("user already blocked")
	ErrNotBlocked      = errors.New("user not blocked")
)

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(conn *gorm.DB) *Service {
	return &Service{db: conn, now: time.Now}
}

// Register creates an active user with a fresh ID.
func (s *Service) Register(ctx context.Context, username, displayName string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLength {
		return nil, fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidArgument, maxUsernameLength)
	}
	if len(displayName) > maxDisplayNameLength {
		return nil, fmt.Errorf("%w: display name longer than %d characters", ErrInvalidArgument, maxDisplayNameLength)
	}
	if displayName == "" {
		displayName = username
	}

	u := &User{
		ID:          uuid.NewString(),
		Username:    username,
		DisplayName: displayName,
		IsActive:    true,
		CreatedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
		}
		return nil, err
	}

	log.Info().Str("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	return u, nil
}

// Get returns the user with id, active or not.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	var u User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &u, nil
}

// GetByUsername looks a user up by their unique username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}

	var u User
	if err := s.db.WithContext(ctx).First(&u, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, username)
		}
		return nil, err
	}
	return &u, nil
}

// GetActive is Get restricted to active users; inactive users are reported as not found.
func (s *Service) GetActive(ctx context.Context, id string) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: %s is inactive", ErrNotFound, id)
	}
	return u, nil
}

// Deactivate clears the active flag. Inactive users cannot join rooms or authenticate.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// IsActive reports whether id names an active user, reading through tx.
func IsActive(tx *gorm.DB, id string) (bool, error) {
	var count int64
	err := tx.Model(&User{}).Where("id = ? AND is_active = ?", id, true).Count(&count).Error
	return count > 0, err
}
