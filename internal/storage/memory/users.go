package memory

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// CreateUser сохраняет новую учётную запись.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	const op = "memory.CreateUser"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return nil, fmt.Errorf("%s: %w", op, models.ErrUsernameTaken)
		}
	}
	if user.ShopID != nil {
		if _, ok := s.shops[*user.ShopID]; !ok {
			return nil, fmt.Errorf("%s: %w", op, models.ErrShopNotFound)
		}
	}

	s.lastUserID++
	now := s.now()
	user.ID = s.lastUserID
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = cloneUser(&user)
	return cloneUser(&user), nil
}

// GetUserByID возвращает учётную запись по id.
func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	const op = "memory.GetUserByID"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	return cloneUser(u), nil
}

// GetUserByUsername возвращает учётную запись по имени.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "memory.GetUserByUsername"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
}

// SetUserToken сохраняет последний выданный токен.
func (s *Storage) SetUserToken(ctx context.Context, id int64, token string) error {
	return s.updateUser(ctx, "memory.SetUserToken", id, func(u *models.User) {
		u.Token = &token
	})
}

// SetUserEnabled включает или блокирует учётную запись.
func (s *Storage) SetUserEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.updateUser(ctx, "memory.SetUserEnabled", id, func(u *models.User) {
		u.Enabled = enabled
	})
}

// SetUserPassword сохраняет новый хеш пароля.
func (s *Storage) SetUserPassword(ctx context.Context, id int64, passwordHash string) error {
	return s.updateUser(ctx, "memory.SetUserPassword", id, func(u *models.User) {
		u.PasswordHash = passwordHash
	})
}

func (s *Storage) updateUser(ctx context.Context, op string, id int64, apply func(u *models.User)) error {
	if err := ctxErr(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	apply(u)
	u.UpdatedAt = s.now()
	return nil
}
