// Package shop реализует административные операции над магазинами.
package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// Repository описывает хранилище магазинов.
type Repository interface {
	ListShops(ctx context.Context) ([]*models.Shop, error)
	GetShop(ctx context.Context, id int64) (*models.Shop, error)
	CreateShop(ctx context.Context, shop models.Shop, ownerID *int64) (*models.Shop, error)
	UpdateShop(ctx context.Context, id int64, changes models.ShopChanges) (*models.Shop, error)
	DeleteShop(ctx context.Context, id int64) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Guard содержит правила доступа, нужные сервису.
type Guard interface {
	CanManageShopResources(caller *models.Caller) error
	CanAccessShop(caller *models.Caller, shopID *int64) error
	ListScope(caller *models.Caller) (shopID *int64, visible bool)
}

// NewShop — параметры создания магазина. Пустой OwnerID означает инициатора.
type NewShop struct {
	Name    string
	City    string
	Area    string
	OwnerID *int64
}

// Service реализует операции над магазинами. Все операции только для ADMIN.
type Service struct {
	repo  Repository
	guard Guard
	log   *slog.Logger
}

// NewService создаёт Service.
func NewService(repo Repository, guard Guard, log *slog.Logger) *Service {
	return &Service{repo: repo, guard: guard, log: log}
}

// List возвращает магазины, видимые инициатору.
func (s *Service) List(ctx context.Context, caller *models.Caller) ([]*models.Shop, error) {
	const op = "shop.List"
	if err := s.guard.CanManageShopResources(caller); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	shopID, visible := s.guard.ListScope(caller)
	if !visible {
		return []*models.Shop{}, nil
	}
	if shopID != nil {
		sh, err := s.repo.GetShop(ctx, *shopID)
		if errors.Is(err, models.ErrNotFound) {
			return []*models.Shop{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return []*models.Shop{sh}, nil
	}

	shops, err := s.repo.ListShops(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return shops, nil
}

// Get возвращает магазин.
func (s *Service) Get(ctx context.Context, caller *models.Caller, id int64) (*models.Shop, error) {
	const op = "shop.Get"
	if err := s.guard.CanManageShopResources(caller); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sh, err := s.repo.GetShop(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.guard.CanAccessShop(caller, &sh.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sh, nil
}

// Add создаёт магазин и назначает его владельцу.
func (s *Service) Add(ctx context.Context, caller *models.Caller, req NewShop) (*models.Shop, error) {
	const op = "shop.Add"
	if err := s.guard.CanManageShopResources(caller); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ownerID := req.OwnerID
	if ownerID == nil {
		id := caller.AccountID
		ownerID = &id
	} else if *ownerID != caller.AccountID {
		if err := s.checkOwner(ctx, caller, *ownerID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	sh, err := s.repo.CreateShop(ctx, models.Shop{
		Name: req.Name,
		City: req.City,
		Area: req.Area,
	}, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("shop added",
		slog.Int64("shop_id", sh.ID),
		slog.String("name", sh.Name),
		slog.Int64("owner_id", *ownerID),
	)
	return sh, nil
}

// Update заменяет название, город и район магазина.
func (s *Service) Update(ctx context.Context, caller *models.Caller, id int64, changes models.ShopChanges) (*models.Shop, error) {
	const op = "shop.Update"
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sh, err := s.repo.UpdateShop(ctx, id, changes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sh, nil
}

// Delete удаляет магазин вместе с его устройствами и сессиями.
func (s *Service) Delete(ctx context.Context, caller *models.Caller, id int64) error {
	const op = "shop.Delete"
	if _, err := s.Get(ctx, caller, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.DeleteShop(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("shop deleted", slog.Int64("shop_id", id), slog.Int64("by", caller.AccountID))
	return nil
}

// checkOwner проверяет, что инициатор вправе назначить учётную запись владельцем:
// она не привязана к магазину либо привязана к магазину, доступному инициатору.
func (s *Service) checkOwner(ctx context.Context, caller *models.Caller, ownerID int64) error {
	owner, err := s.repo.GetUserByID(ctx, ownerID)
	if err != nil {
		return err
	}
	if owner.ShopID == nil {
		return nil
	}
	return s.guard.CanAccessShop(caller, owner.ShopID)
}
