// Package memory хранит данные в памяти процесса. Реализует те же контракты,
// что и repository, и используется для локального запуска и тестов.
//
// Транзакции сериализуются одной блокировкой записи и откатываются по
// журналу отмены. Чтения берут блокировку чтения, поэтому не видят
// частично применённую транзакцию.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/magabrotheeeer/ps-manager/internal/models"
	"github.com/magabrotheeeer/ps-manager/internal/storage"
)

// Storage хранит записи в map по id.
type Storage struct {
	mu  sync.RWMutex
	now func() time.Time

	lastShopID, lastDeviceID, lastSessionID, lastUserID int64

	shops    map[int64]*models.Shop
	devices  map[int64]*models.Device
	sessions map[int64]*models.Session
	users    map[int64]*models.User
}

var _ storage.UnitOfWork = (*Storage)(nil)

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		now:      func() time.Time { return time.Now().UTC() },
		shops:    make(map[int64]*models.Shop),
		devices:  make(map[int64]*models.Device),
		sessions: make(map[int64]*models.Session),
		users:    make(map[int64]*models.User),
	}
}

func ctxErr(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
		return nil
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneShop(sh *models.Shop) *models.Shop {
	c := *sh
	return &c
}

func cloneDevice(d *models.Device) *models.Device {
	c := *d
	c.ShopID = clonePtr(d.ShopID)
	return &c
}

func cloneSession(s *models.Session) *models.Session {
	c := *s
	c.ShopID = clonePtr(s.ShopID)
	c.EndedAt = clonePtr(s.EndedAt)
	return &c
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.ShopID = clonePtr(u.ShopID)
	c.Token = clonePtr(u.Token)
	c.Roles = slices.Clone(u.Roles)
	return &c
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// InTx выполняет fn под блокировкой записи. При ошибке fn изменения
// откатываются в обратном порядке.
func (s *Storage) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	const op = "memory.InTx"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txn{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// ListShops возвращает все магазины по возрастанию id.
func (s *Storage) ListShops(ctx context.Context) ([]*models.Shop, error) {
	const op = "memory.ListShops"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Shop, 0, len(s.shops))
	for _, id := range sortedIDs(s.shops) {
		result = append(result, cloneShop(s.shops[id]))
	}
	return result, nil
}

// GetShop возвращает магазин по id.
func (s *Storage) GetShop(ctx context.Context, id int64) (*models.Shop, error) {
	const op = "memory.GetShop"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shops[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrShopNotFound)
	}
	return cloneShop(sh), nil
}

func (s *Storage) shopNameTaken(name string, exceptID int64) bool {
	for id, sh := range s.shops {
		if id != exceptID && sh.Name == name {
			return true
		}
	}
	return false
}

// CreateShop создаёт магазин и назначает его владельцу ownerID, если тот задан.
func (s *Storage) CreateShop(ctx context.Context, shop models.Shop, ownerID *int64) (*models.Shop, error) {
	const op = "memory.CreateShop"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shopNameTaken(shop.Name, 0) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrShopNameTaken)
	}
	var owner *models.User
	if ownerID != nil {
		u, ok := s.users[*ownerID]
		if !ok {
			return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
		}
		owner = u
	}

	s.lastShopID++
	now := s.now()
	shop.ID = s.lastShopID
	shop.CreatedAt, shop.UpdatedAt = now, now
	s.shops[shop.ID] = cloneShop(&shop)

	if owner != nil {
		owner.ShopID = clonePtr(&shop.ID)
		owner.UpdatedAt = now
	}
	return cloneShop(&shop), nil
}

// UpdateShop заменяет изменяемые поля магазина.
func (s *Storage) UpdateShop(ctx context.Context, id int64, changes models.ShopChanges) (*models.Shop, error) {
	const op = "memory.UpdateShop"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shops[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrShopNotFound)
	}
	if s.shopNameTaken(changes.Name, id) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrShopNameTaken)
	}
	sh.Name, sh.City, sh.Area = changes.Name, changes.City, changes.Area
	sh.UpdatedAt = s.now()
	return cloneShop(sh), nil
}

// DeleteShop удаляет магазин, его устройства и сессии. У учётных записей
// магазин сбрасывается.
func (s *Storage) DeleteShop(ctx context.Context, id int64) error {
	const op = "memory.DeleteShop"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shops[id]; !ok {
		return fmt.Errorf("%s: %w", op, models.ErrShopNotFound)
	}
	delete(s.shops, id)
	for devID, d := range s.devices {
		if d.ShopID != nil && *d.ShopID == id {
			s.deleteDeviceLocked(devID)
		}
	}
	for sessID, sess := range s.sessions {
		if sess.ShopID != nil && *sess.ShopID == id {
			delete(s.sessions, sessID)
		}
	}
	for _, u := range s.users {
		if u.ShopID != nil && *u.ShopID == id {
			u.ShopID = nil
		}
	}
	return nil
}

// ListDevices возвращает устройства магазина shopID или все, если shopID == nil.
func (s *Storage) ListDevices(ctx context.Context, shopID *int64) ([]*models.Device, error) {
	const op = "memory.ListDevices"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Device, 0)
	for _, id := range sortedIDs(s.devices) {
		d := s.devices[id]
		if shopID != nil && !models.SameShop(d.ShopID, shopID) {
			continue
		}
		result = append(result, cloneDevice(d))
	}
	return result, nil
}

// GetDevice возвращает устройство по id.
func (s *Storage) GetDevice(ctx context.Context, id int64) (*models.Device, error) {
	const op = "memory.GetDevice"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrDeviceNotFound)
	}
	return cloneDevice(d), nil
}

func (s *Storage) deviceNameTaken(name string, exceptID int64) bool {
	for id, d := range s.devices {
		if id != exceptID && d.Name == name {
			return true
		}
	}
	return false
}

// CreateDevice создаёт простаивающее устройство.
func (s *Storage) CreateDevice(ctx context.Context, device models.Device) (*models.Device, error) {
	const op = "memory.CreateDevice"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if device.ShopID != nil {
		if _, ok := s.shops[*device.ShopID]; !ok {
			return nil, fmt.Errorf("%s: %w", op, models.ErrShopNotFound)
		}
	}
	if s.deviceNameTaken(device.Name, 0) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrDeviceNameTaken)
	}

	s.lastDeviceID++
	now := s.now()
	device.ID = s.lastDeviceID
	device.IsActive = false
	device.CreatedAt, device.UpdatedAt = now, now
	s.devices[device.ID] = cloneDevice(&device)
	return cloneDevice(&device), nil
}

// UpdateDevice заменяет имя и тариф устройства.
func (s *Storage) UpdateDevice(ctx context.Context, id int64, changes models.DeviceChanges) (*models.Device, error) {
	const op = "memory.UpdateDevice"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrDeviceNotFound)
	}
	if s.deviceNameTaken(changes.Name, id) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrDeviceNameTaken)
	}
	d.Name = changes.Name
	d.HourlyPrice = changes.HourlyPrice
	d.UpdatedAt = s.now()
	return cloneDevice(d), nil
}

// DeleteDevice удаляет устройство вместе с историей его сессий.
func (s *Storage) DeleteDevice(ctx context.Context, id int64) error {
	const op = "memory.DeleteDevice"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return fmt.Errorf("%s: %w", op, models.ErrDeviceNotFound)
	}
	s.deleteDeviceLocked(id)
	return nil
}

func (s *Storage) deleteDeviceLocked(id int64) {
	delete(s.devices, id)
	for sessID, sess := range s.sessions {
		if sess.DeviceID == id {
			delete(s.sessions, sessID)
		}
	}
}

// GetSession возвращает сессию по id.
func (s *Storage) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	const op = "memory.GetSession"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrSessionNotFound)
	}
	return cloneSession(sess), nil
}

// ListSessions возвращает сессии магазина shopID или все, новые первыми.
func (s *Storage) ListSessions(ctx context.Context, shopID *int64) ([]*models.Session, error) {
	const op = "memory.ListSessions"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Session, 0)
	for _, sess := range s.sessions {
		if shopID != nil && !models.SameShop(sess.ShopID, shopID) {
			continue
		}
		result = append(result, cloneSession(sess))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}
