package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ps-manager/internal/models"
)

const sessionColumns = `id, device_id, shop_id, created_at, ended_at, is_over, total_due`

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var shopID sql.NullInt64
	var endedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.DeviceID, &shopID, &s.CreatedAt, &endedAt, &s.IsOver, &s.TotalDue); err != nil {
		return nil, err
	}
	s.ShopID = nullableInt64(shopID)
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return &s, nil
}

// GetSession возвращает сессию по id.
func (s *Storage) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	const op = "storage.GetSession"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sess, err := scanSession(s.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err, models.ErrSessionNotFound))
	}
	return sess, nil
}

// ListSessions возвращает сессии магазина shopID или все сессии, если shopID == nil.
// Новые сессии идут первыми.
func (s *Storage) ListSessions(ctx context.Context, shopID *int64) ([]*models.Session, error) {
	const op = "storage.ListSessions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC, id DESC`
	args := []any{}
	if shopID != nil {
		query = `SELECT ` + sessionColumns + ` FROM sessions WHERE shop_id = $1 ORDER BY created_at DESC, id DESC`
		args = append(args, *shopID)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sess)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateSession создаёт открытую сессию. Частичный уникальный индекс
// sessions_one_open_per_device отклоняет вторую открытую сессию на устройстве.
func (t *txn) CreateSession(ctx context.Context, sess models.Session) (*models.Session, error) {
	const op = "storage.tx.CreateSession"
	created, err := scanSession(t.q.QueryRowContext(ctx,
		`INSERT INTO sessions (device_id, shop_id, created_at, is_over, total_due)
		 VALUES ($1, $2, $3, FALSE, 0) RETURNING `+sessionColumns,
		sess.DeviceID, sess.ShopID, sess.CreatedAt))
	if err != nil {
		switch code, _ := pgErrorCode(err); code {
		case pgUniqueViolation:
			err = models.ErrDeviceBusy
		case pgForeignKeyViolation:
			err = models.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// LockSession читает сессию с блокировкой FOR UPDATE.
func (t *txn) LockSession(ctx context.Context, id int64) (*models.Session, error) {
	const op = "storage.tx.LockSession"
	sess, err := scanSession(t.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err, models.ErrSessionNotFound))
	}
	return sess, nil
}

// CloseSession закрывает открытую сессию. Уже закрытая сессия не меняется
// и даёт models.ErrSessionAlreadyEnded.
func (t *txn) CloseSession(ctx context.Context, id int64, endedAt time.Time, totalDue int64) (*models.Session, error) {
	const op = "storage.tx.CloseSession"
	sess, err := scanSession(t.q.QueryRowContext(ctx,
		`UPDATE sessions SET ended_at = $1, is_over = TRUE, total_due = $2
		 WHERE id = $3 AND NOT is_over RETURNING `+sessionColumns,
		endedAt, totalDue, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err, models.ErrSessionAlreadyEnded))
	}
	return sess, nil
}

// DeleteSession удаляет запись о сессии.
func (t *txn) DeleteSession(ctx context.Context, id int64) error {
	const op = "storage.tx.DeleteSession"
	res, err := t.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := rowsAffectedOr(res, models.ErrSessionNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
