package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/ps-manager/internal/models"
)

const shopColumns = `id, name, city, area, created_at, updated_at`

func scanShop(row rowScanner) (*models.Shop, error) {
	var sh models.Shop
	if err := row.Scan(&sh.ID, &sh.Name, &sh.City, &sh.Area, &sh.CreatedAt, &sh.UpdatedAt); err != nil {
		return nil, err
	}
	return &sh, nil
}

// shopConflict переводит нарушения ограничений таблицы shops в доменные ошибки.
func shopConflict(err error) error {
	if code, _ := pgErrorCode(err); code == pgUniqueViolation {
		return models.ErrShopNameTaken
	}
	return err
}

// ListShops возвращает все магазины, упорядоченные по id.
func (s *Storage) ListShops(ctx context.Context) ([]*models.Shop, error) {
	const op = "storage.ListShops"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+shopColumns+` FROM shops ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Shop
	for rows.Next() {
		sh, err := scanShop(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sh)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetShop возвращает магазин по id.
func (s *Storage) GetShop(ctx context.Context, id int64) (*models.Shop, error) {
	const op = "storage.GetShop"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sh, err := scanShop(s.DB.QueryRowContext(ctx, `SELECT `+shopColumns+` FROM shops WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFound(err, models.ErrShopNotFound))
	}
	return sh, nil
}

// CreateShop создаёт магазин и, если ownerID задан, назначает его владельцу
// в той же транзакции.
func (s *Storage) CreateShop(ctx context.Context, shop models.Shop, ownerID *int64) (*models.Shop, error) {
	const op = "storage.CreateShop"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	created, err := scanShop(tx.QueryRowContext(ctx,
		`INSERT INTO shops (name, city, area) VALUES ($1, $2, $3) RETURNING `+shopColumns,
		shop.Name, shop.City, shop.Area))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, shopConflict(err))
	}

	if ownerID != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET shop_id = $1, updated_at = NOW() WHERE id = $2`, created.ID, *ownerID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := rowsAffectedOr(res, models.ErrUserNotFound); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// UpdateShop заменяет изменяемые поля магазина.
func (s *Storage) UpdateShop(ctx context.Context, id int64, changes models.ShopChanges) (*models.Shop, error) {
	const op = "storage.UpdateShop"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sh, err := scanShop(s.DB.QueryRowContext(ctx,
		`UPDATE shops SET name = $1, city = $2, area = $3, updated_at = NOW()
		 WHERE id = $4 RETURNING `+shopColumns,
		changes.Name, changes.City, changes.Area, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, shopConflict(notFound(err, models.ErrShopNotFound)))
	}
	return sh, nil
}

// DeleteShop удаляет магазин. Устройства и сессии удаляются каскадно,
// у учётных записей магазин сбрасывается.
func (s *Storage) DeleteShop(ctx context.Context, id int64) error {
	const op = "storage.DeleteShop"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM shops WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := rowsAffectedOr(res, models.ErrShopNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
