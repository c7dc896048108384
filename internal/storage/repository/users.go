package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/ps-manager/internal/models"
)

const userColumns = `id, username, password_hash, enabled, token,
	array_to_string(roles, ','), shop_id, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var token sql.NullString
	var roles string
	var shopID sql.NullInt64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Enabled, &token,
		&roles, &shopID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if token.Valid {
		u.Token = &token.String
	}
	u.Roles = parseRoles(roles)
	u.ShopID = nullableInt64(shopID)
	return &u, nil
}

func parseRoles(s string) []models.Role {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	roles := make([]models.Role, 0, len(parts))
	for _, p := range parts {
		roles = append(roles, models.Role(p))
	}
	return roles
}

func joinRoles(roles []models.Role) string {
	return strings.Join(models.RoleNames(roles), ",")
}

// CreateUser сохраняет новую учётную запись.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, enabled, roles, shop_id)
		 VALUES ($1, $2, $3, string_to_array($4, ','), $5)
		 RETURNING `+userColumns,
		user.Username, user.PasswordHash, user.Enabled, joinRoles(user.Roles), user.ShopID))
	if err != nil {
		switch code, _ := pgErrorCode(err); code {
		case pgUniqueViolation:
			err = models.ErrUsernameTaken
		case pgForeignKeyViolation:
			err = models.ErrShopNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByID возвращает учётную запись по id.
func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.GetUserByID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err, models.ErrUserNotFound))
	}
	return u, nil
}

// GetUserByUsername возвращает учётную запись по имени.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err, models.ErrUserNotFound))
	}
	return u, nil
}

// SetUserToken сохраняет последний выданный токен.
func (s *Storage) SetUserToken(ctx context.Context, id int64, token string) error {
	const op = "storage.SetUserToken"
	return s.updateUser(ctx, op, `UPDATE users SET token = $1, updated_at = NOW() WHERE id = $2`, token, id)
}

// SetUserEnabled включает или блокирует учётную запись.
func (s *Storage) SetUserEnabled(ctx context.Context, id int64, enabled bool) error {
	const op = "storage.SetUserEnabled"
	return s.updateUser(ctx, op, `UPDATE users SET enabled = $1, updated_at = NOW() WHERE id = $2`, enabled, id)
}

// SetUserPassword сохраняет новый хеш пароля.
func (s *Storage) SetUserPassword(ctx context.Context, id int64, passwordHash string) error {
	const op = "storage.SetUserPassword"
	return s.updateUser(ctx, op, `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, passwordHash, id)
}

func (s *Storage) updateUser(ctx context.Context, op, query string, value any, id int64) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := rowsAffectedOr(res, models.ErrUserNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
