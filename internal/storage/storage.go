// Package storage описывает транзакционный контракт хранилища, общий для
// реализации на PostgreSQL (repository) и реализации в памяти (memory).
//
// Переходы сессии (старт и закрытие) меняют две записи: устройство и
// сессию. Обе записи меняются внутри одного Tx и фиксируются вместе.
package storage

import (
	"context"
	"time"

	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// DeviceTx — операции над устройством внутри транзакции.
type DeviceTx interface {
	// GetDevice возвращает устройство или models.ErrDeviceNotFound.
	GetDevice(ctx context.Context, id int64) (*models.Device, error)
	// AcquireDevice атомарно переводит простаивающее устройство в занятое.
	// Занятое устройство даёт models.ErrDeviceBusy, отсутствующее даёт
	// models.ErrDeviceNotFound.
	AcquireDevice(ctx context.Context, id int64) (*models.Device, error)
	// ReleaseDevice безусловно снимает флаг занятости.
	ReleaseDevice(ctx context.Context, id int64) error
}

// Tx — операции над устройствами и сессиями внутри одной транзакции.
type Tx interface {
	DeviceTx
	CreateSession(ctx context.Context, s models.Session) (*models.Session, error)
	// LockSession читает сессию и блокирует её до конца транзакции.
	LockSession(ctx context.Context, id int64) (*models.Session, error)
	CloseSession(ctx context.Context, id int64, endedAt time.Time, totalDue int64) (*models.Session, error)
	DeleteSession(ctx context.Context, id int64) error
}

// UnitOfWork выполняет fn в транзакции. Если fn вернула ошибку,
// все изменения откатываются и ошибка возвращается без изменений.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
