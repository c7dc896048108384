package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/ps-manager/internal/models"
)

const deviceColumns = `id, name, hourly_price, is_active, shop_id, created_at, updated_at`

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device
	var shopID sql.NullInt64
	if err := row.Scan(&d.ID, &d.Name, &d.HourlyPrice, &d.IsActive, &shopID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ShopID = nullableInt64(shopID)
	return &d, nil
}

// deviceConflict переводит нарушения ограничений таблицы devices в доменные ошибки.
func deviceConflict(err error) error {
	switch code, _ := pgErrorCode(err); code {
	case pgUniqueViolation:
		return models.ErrDeviceNameTaken
	case pgForeignKeyViolation:
		return models.ErrShopNotFound
	}
	return err
}

func getDevice(ctx context.Context, q querier, id int64) (*models.Device, error) {
	d, err := scanDevice(q.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, models.ErrDeviceNotFound)
	}
	return d, nil
}

// ListDevices возвращает устройства магазина shopID или все устройства, если shopID == nil.
func (s *Storage) ListDevices(ctx context.Context, shopID *int64) ([]*models.Device, error) {
	const op = "storage.ListDevices"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY id`
	args := []any{}
	if shopID != nil {
		query = `SELECT ` + deviceColumns + ` FROM devices WHERE shop_id = $1 ORDER BY id`
		args = append(args, *shopID)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetDevice возвращает устройство по id.
func (s *Storage) GetDevice(ctx context.Context, id int64) (*models.Device, error) {
	const op = "storage.GetDevice"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	d, err := getDevice(ctx, s.DB, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// CreateDevice создаёт простаивающее устройство.
func (s *Storage) CreateDevice(ctx context.Context, device models.Device) (*models.Device, error) {
	const op = "storage.CreateDevice"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	d, err := scanDevice(s.DB.QueryRowContext(ctx,
		`INSERT INTO devices (name, hourly_price, is_active, shop_id)
		 VALUES ($1, $2, FALSE, $3) RETURNING `+deviceColumns,
		device.Name, device.HourlyPrice, device.ShopID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, deviceConflict(err))
	}
	return d, nil
}

// UpdateDevice заменяет имя и тариф устройства. Флаг занятости и магазин не меняются.
func (s *Storage) UpdateDevice(ctx context.Context, id int64, changes models.DeviceChanges) (*models.Device, error) {
	const op = "storage.UpdateDevice"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	d, err := scanDevice(s.DB.QueryRowContext(ctx,
		`UPDATE devices SET name = $1, hourly_price = $2, updated_at = NOW()
		 WHERE id = $3 RETURNING `+deviceColumns,
		changes.Name, changes.HourlyPrice, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, deviceConflict(notFound(err, models.ErrDeviceNotFound)))
	}
	return d, nil
}

// DeleteDevice удаляет устройство вместе с историей его сессий.
func (s *Storage) DeleteDevice(ctx context.Context, id int64) error {
	const op = "storage.DeleteDevice"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := rowsAffectedOr(res, models.ErrDeviceNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetDevice читает устройство внутри транзакции.
func (t *txn) GetDevice(ctx context.Context, id int64) (*models.Device, error) {
	const op = "storage.tx.GetDevice"
	d, err := getDevice(ctx, t.q, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// AcquireDevice занимает устройство одним условным UPDATE. Если строка не
// обновилась, повторное чтение различает отсутствие устройства и занятость.
func (t *txn) AcquireDevice(ctx context.Context, id int64) (*models.Device, error) {
	const op = "storage.tx.AcquireDevice"
	d, err := scanDevice(t.q.QueryRowContext(ctx,
		`UPDATE devices SET is_active = TRUE, updated_at = NOW()
		 WHERE id = $1 AND NOT is_active RETURNING `+deviceColumns, id))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := getDevice(ctx, t.q, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return nil, fmt.Errorf("%s: %w", op, models.ErrDeviceBusy)
}

// ReleaseDevice снимает флаг занятости.
func (t *txn) ReleaseDevice(ctx context.Context, id int64) error {
	const op = "storage.tx.ReleaseDevice"
	res, err := t.q.ExecContext(ctx,
		`UPDATE devices SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := rowsAffectedOr(res, models.ErrDeviceNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
