package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/ps-manager/internal/lib/clock"
	"github.com/magabrotheeeer/ps-manager/internal/lib/sl"
	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// Cache хранит закрытые сессии. Открытые сессии в кеш не попадают.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// EventPublisher публикует события о закрытых сессиях.
type EventPublisher interface {
	PublishSessionEnded(ctx context.Context, event models.SessionEnded) error
}

// Metrics фиксирует счётчики жизненного цикла сессий.
type Metrics interface {
	SessionStarted()
	SessionRejected(reason string)
	SessionEnded(totalDue int64, duration time.Duration)
}

// DeviceReader читает устройства.
type DeviceReader interface {
	GetDevice(ctx context.Context, id int64) (*models.Device, error)
}

// Guard содержит правила доступа, нужные сервису.
type Guard interface {
	CanAccessShop(caller *models.Caller, shopID *int64) error
	ListScope(caller *models.Caller) (shopID *int64, visible bool)
}

// Service — операции над сессиями от имени инициатора.
type Service struct {
	ledger   *Ledger
	devices  DeviceReader
	guard    Guard
	clock    clock.Clock
	cache    Cache
	cacheTTL time.Duration
	events   EventPublisher
	metrics  Metrics
	log      *slog.Logger
}

// Deps собирает зависимости Service.
type Deps struct {
	Ledger   *Ledger
	Devices  DeviceReader
	Guard    Guard
	Clock    clock.Clock
	Cache    Cache
	CacheTTL time.Duration
	Events   EventPublisher
	Metrics  Metrics
	Log      *slog.Logger
}

// NewService создаёт Service.
func NewService(d Deps) *Service {
	return &Service{
		ledger:   d.Ledger,
		devices:  d.Devices,
		guard:    d.Guard,
		clock:    d.Clock,
		cache:    d.Cache,
		cacheTTL: d.CacheTTL,
		events:   d.Events,
		metrics:  d.Metrics,
		log:      d.Log,
	}
}

func cacheKey(id int64) string {
	return "session:" + strconv.FormatInt(id, 10)
}

// StartSession открывает сессию на устройстве магазина инициатора.
func (s *Service) StartSession(ctx context.Context, caller *models.Caller, deviceID int64) (*models.Session, error) {
	const op = "session.StartSession"
	d, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.guard.CanAccessShop(caller, d.ShopID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	started, err := s.ledger.Start(ctx, deviceID, s.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDeviceBusy):
			s.metrics.SessionRejected("device_busy")
		case errors.Is(err, models.ErrDeviceNotFound):
			s.metrics.SessionRejected("device_not_found")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.SessionStarted()
	s.log.Info("session started",
		slog.Int64("session_id", started.ID),
		slog.Int64("device_id", started.DeviceID),
		slog.Int64("account_id", caller.AccountID),
	)
	return started, nil
}

// EndSession закрывает сессию и публикует событие session.ended. Ошибка
// публикации не отменяет закрытие и только логируется.
func (s *Service) EndSession(ctx context.Context, caller *models.Caller, sessionID int64) (*models.Session, error) {
	const op = "session.EndSession"
	log := s.log.With(slog.String("op", op), slog.Int64("session_id", sessionID))

	if _, err := s.accessible(ctx, caller, sessionID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	closed, err := s.ledger.End(ctx, sessionID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	duration := closed.EndedAt.Sub(closed.CreatedAt)
	s.metrics.SessionEnded(closed.TotalDue, duration)

	if err := s.cache.Set(ctx, cacheKey(closed.ID), closed, s.cacheTTL); err != nil {
		log.Warn("failed to cache closed session", sl.Err(err))
	}

	event := models.SessionEnded{
		EventID:   uuid.NewString(),
		SessionID: closed.ID,
		DeviceID:  closed.DeviceID,
		ShopID:    closed.ShopID,
		StartedAt: closed.CreatedAt,
		EndedAt:   *closed.EndedAt,
		TotalDue:  closed.TotalDue,
	}
	if err := s.events.PublishSessionEnded(ctx, event); err != nil {
		log.Error("failed to publish session.ended", sl.Err(err))
	}

	log.Info("session ended", slog.Int64("total_due", closed.TotalDue), slog.Duration("duration", duration))
	return closed, nil
}

// GetSession возвращает сессию. Закрытые сессии неизменны и читаются через кеш.
func (s *Service) GetSession(ctx context.Context, caller *models.Caller, sessionID int64) (*models.Session, error) {
	const op = "session.GetSession"
	sess, err := s.accessible(ctx, caller, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// ListSessions возвращает сессии, видимые инициатору.
func (s *Service) ListSessions(ctx context.Context, caller *models.Caller) ([]*models.Session, error) {
	const op = "session.ListSessions"
	shopID, visible := s.guard.ListScope(caller)
	if !visible {
		return []*models.Session{}, nil
	}
	sessions, err := s.ledger.List(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sessions, nil
}

// DeleteSession удаляет сессию в любом состоянии.
func (s *Service) DeleteSession(ctx context.Context, caller *models.Caller, sessionID int64) error {
	const op = "session.DeleteSession"
	log := s.log.With(slog.String("op", op), slog.Int64("session_id", sessionID))

	if _, err := s.accessible(ctx, caller, sessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	deleted, err := s.ledger.Delete(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Invalidate(ctx, cacheKey(sessionID)); err != nil {
		log.Warn("failed to invalidate cached session", sl.Err(err))
	}
	if !deleted.IsOver {
		log.Warn("open session deleted", slog.Int64("device_id", deleted.DeviceID))
	}
	return nil
}

// accessible читает сессию (закрытую берёт из кеша, если есть) и проверяет
// доступ инициатора к её магазину.
func (s *Service) accessible(ctx context.Context, caller *models.Caller, sessionID int64) (*models.Session, error) {
	var cached models.Session
	found, err := s.cache.Get(ctx, cacheKey(sessionID), &cached)
	if err != nil {
		s.log.Warn("session cache read failed", slog.Int64("session_id", sessionID), sl.Err(err))
	}

	if found && err == nil && !s.deviceExists(ctx, cached) {
		// Устройство удалено вместе с историей: запись в кеше устарела.
		if err := s.cache.Invalidate(ctx, cacheKey(sessionID)); err != nil {
			s.log.Warn("failed to invalidate cached session", slog.Int64("session_id", sessionID), sl.Err(err))
		}
		found = false
	}

	sess := &cached
	if !found || err != nil {
		sess, err = s.ledger.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.IsOver {
			if err := s.cache.Set(ctx, cacheKey(sess.ID), sess, s.cacheTTL); err != nil {
				s.log.Warn("failed to cache closed session", slog.Int64("session_id", sess.ID), sl.Err(err))
			}
		}
	}

	if err := s.guard.CanAccessShop(caller, sess.ShopID); err != nil {
		return nil, err
	}
	return sess, nil
}

// deviceExists сообщает, существует ли ещё устройство закэшированной сессии.
// При ошибке чтения запись считается актуальной.
func (s *Service) deviceExists(ctx context.Context, sess models.Session) bool {
	_, err := s.devices.GetDevice(ctx, sess.DeviceID)
	return !errors.Is(err, models.ErrNotFound)
}
