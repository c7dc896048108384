// Package session ведёт жизненный цикл игровых сессий.
//
// Ledger — конечный автомат OPEN -> CLOSED поверх транзакций хранилища.
// Service — операции для HTTP-слоя: проверки доступа, часы, кеш закрытых
// сессий, метрики и события.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/ps-manager/internal/models"
	"github.com/magabrotheeeer/ps-manager/internal/services/device"
	"github.com/magabrotheeeer/ps-manager/internal/storage"
)

// DeleteMode определяет, что происходит с устройством при удалении открытой сессии.
type DeleteMode string

const (
	// DeleteKeepDevice не трогает устройство: оно остаётся занятым.
	DeleteKeepDevice DeleteMode = "keep_device"
	// DeleteReleaseDevice освобождает устройство в той же транзакции.
	DeleteReleaseDevice DeleteMode = "release_device"
)

// Calculator считает сумму к оплате.
type Calculator interface {
	Compute(hourlyPrice decimal.Decimal, start, end time.Time) (int64, error)
}

// Reader читает сессии вне транзакции.
type Reader interface {
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	ListSessions(ctx context.Context, shopID *int64) ([]*models.Session, error)
}

// Ledger владеет записями сессий и их переходами.
type Ledger struct {
	uow        storage.UnitOfWork
	reader     Reader
	billing    Calculator
	deleteMode DeleteMode
}

// NewLedger создаёт Ledger. Пустой режим удаления считается DeleteKeepDevice.
func NewLedger(uow storage.UnitOfWork, reader Reader, billing Calculator, mode DeleteMode) *Ledger {
	if mode == "" {
		mode = DeleteKeepDevice
	}
	return &Ledger{
		uow:        uow,
		reader:     reader,
		billing:    billing,
		deleteMode: mode,
	}
}

// Start занимает устройство и открывает на нём сессию. При ошибке сессия
// не создаётся, а состояние устройства не меняется.
func (l *Ledger) Start(ctx context.Context, deviceID int64, now time.Time) (*models.Session, error) {
	const op = "session.Start"
	var started *models.Session
	err := l.uow.InTx(ctx, func(tx storage.Tx) error {
		d, err := device.NewRegistry(tx).Acquire(ctx, deviceID)
		if err != nil {
			return err
		}
		started, err = tx.CreateSession(ctx, models.Session{
			DeviceID:  d.ID,
			ShopID:    d.ShopID,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return started, nil
}

// End закрывает открытую сессию: освобождает устройство и фиксирует сумму
// по тарифу устройства на момент закрытия. Обе записи меняются в одной
// транзакции. Повторное закрытие даёт models.ErrSessionAlreadyEnded.
func (l *Ledger) End(ctx context.Context, sessionID int64, now time.Time) (*models.Session, error) {
	const op = "session.End"
	var closed *models.Session
	err := l.uow.InTx(ctx, func(tx storage.Tx) error {
		sess, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.IsOver {
			return models.ErrSessionAlreadyEnded
		}

		registry := device.NewRegistry(tx)
		d, err := registry.Get(ctx, sess.DeviceID)
		if err != nil {
			return err
		}
		totalDue, err := l.billing.Compute(d.HourlyPrice, sess.CreatedAt, now)
		if err != nil {
			return err
		}
		if err := registry.Release(ctx, d.ID); err != nil {
			return err
		}
		closed, err = tx.CloseSession(ctx, sess.ID, now, totalDue)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return closed, nil
}

// Get возвращает сессию.
func (l *Ledger) Get(ctx context.Context, sessionID int64) (*models.Session, error) {
	const op = "session.Get"
	sess, err := l.reader.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// List возвращает сессии магазина или все сессии, если shopID == nil.
func (l *Ledger) List(ctx context.Context, shopID *int64) ([]*models.Session, error) {
	const op = "session.List"
	sessions, err := l.reader.ListSessions(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sessions, nil
}

// Delete удаляет запись о сессии в любом состоянии и возвращает удалённую
// запись. В режиме DeleteKeepDevice устройство открытой сессии остаётся
// занятым.
func (l *Ledger) Delete(ctx context.Context, sessionID int64) (*models.Session, error) {
	const op = "session.Delete"
	var deleted *models.Session
	err := l.uow.InTx(ctx, func(tx storage.Tx) error {
		sess, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := tx.DeleteSession(ctx, sess.ID); err != nil {
			return err
		}
		if l.deleteMode == DeleteReleaseDevice && !sess.IsOver {
			if err := device.NewRegistry(tx).Release(ctx, sess.DeviceID); err != nil {
				return err
			}
		}
		deleted = sess
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return deleted, nil
}
