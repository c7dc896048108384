package device

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// Repository описывает хранилище устройств.
type Repository interface {
	ListDevices(ctx context.Context, shopID *int64) ([]*models.Device, error)
	GetDevice(ctx context.Context, id int64) (*models.Device, error)
	CreateDevice(ctx context.Context, device models.Device) (*models.Device, error)
	UpdateDevice(ctx context.Context, id int64, changes models.DeviceChanges) (*models.Device, error)
	DeleteDevice(ctx context.Context, id int64) error
}

// ShopReader читает магазины.
type ShopReader interface {
	GetShop(ctx context.Context, id int64) (*models.Shop, error)
}

// Guard содержит правила доступа, нужные сервису.
type Guard interface {
	CanManageShopResources(caller *models.Caller) error
	CanAccessShop(caller *models.Caller, shopID *int64) error
	ListScope(caller *models.Caller) (shopID *int64, visible bool)
}

// NewDevice — параметры создания устройства. Пустой ShopID означает
// магазин инициатора.
type NewDevice struct {
	Name        string
	HourlyPrice decimal.Decimal
	ShopID      *int64
}

// Service реализует административные операции над устройствами.
type Service struct {
	repo  Repository
	shops ShopReader
	guard Guard
	log   *slog.Logger
}

// NewService создаёт Service.
func NewService(repo Repository, shops ShopReader, guard Guard, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		shops: shops,
		guard: guard,
		log:   log,
	}
}

// List возвращает устройства, видимые инициатору.
func (s *Service) List(ctx context.Context, caller *models.Caller) ([]*models.Device, error) {
	const op = "device.List"
	shopID, visible := s.guard.ListScope(caller)
	if !visible {
		return []*models.Device{}, nil
	}
	devices, err := s.repo.ListDevices(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return devices, nil
}

// Get возвращает устройство, если оно доступно инициатору.
func (s *Service) Get(ctx context.Context, caller *models.Caller, id int64) (*models.Device, error) {
	const op = "device.Get"
	d, err := s.repo.GetDevice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.guard.CanAccessShop(caller, d.ShopID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// Add создаёт простаивающее устройство в магазине.
func (s *Service) Add(ctx context.Context, caller *models.Caller, req NewDevice) (*models.Device, error) {
	const op = "device.Add"
	if err := s.guard.CanManageShopResources(caller); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if req.HourlyPrice.IsNegative() {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNegativePrice)
	}

	shopID := req.ShopID
	if shopID == nil {
		shopID = caller.ShopID
	}
	if shopID != nil {
		if _, err := s.shops.GetShop(ctx, *shopID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := s.guard.CanAccessShop(caller, shopID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d, err := s.repo.CreateDevice(ctx, models.Device{
		Name:        req.Name,
		HourlyPrice: req.HourlyPrice,
		ShopID:      shopID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("device added", slog.Int64("device_id", d.ID), slog.String("name", d.Name))
	return d, nil
}

// Update заменяет имя и тариф устройства. Флаг занятости и магазин не меняются.
func (s *Service) Update(ctx context.Context, caller *models.Caller, id int64, changes models.DeviceChanges) (*models.Device, error) {
	const op = "device.Update"
	if err := s.guard.CanManageShopResources(caller); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if changes.HourlyPrice.IsNegative() {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNegativePrice)
	}
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d, err := s.repo.UpdateDevice(ctx, id, changes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// Delete удаляет устройство вместе с историей его сессий.
func (s *Service) Delete(ctx context.Context, caller *models.Caller, id int64) error {
	const op = "device.Delete"
	if err := s.guard.CanManageShopResources(caller); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.Get(ctx, caller, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.DeleteDevice(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("device deleted", slog.Int64("device_id", id))
	return nil
}
