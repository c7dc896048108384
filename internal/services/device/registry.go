// Package device управляет устройствами магазинов: флагом занятости
// (Registry) и административными операциями (Service).
package device

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/ps-manager/internal/models"
	"github.com/magabrotheeeer/ps-manager/internal/storage"
)

// Registry — единственный источник истины о занятости устройства.
// Работает поверх открытой транзакции и живёт не дольше её.
type Registry struct {
	tx storage.DeviceTx
}

// NewRegistry привязывает Registry к транзакции.
func NewRegistry(tx storage.DeviceTx) *Registry {
	return &Registry{tx: tx}
}

// Acquire атомарно занимает простаивающее устройство и возвращает его снимок.
func (r *Registry) Acquire(ctx context.Context, deviceID int64) (*models.Device, error) {
	const op = "device.Acquire"
	d, err := r.tx.AcquireDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// Release безусловно освобождает устройство.
func (r *Registry) Release(ctx context.Context, deviceID int64) error {
	const op = "device.Release"
	if err := r.tx.ReleaseDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get возвращает устройство.
func (r *Registry) Get(ctx context.Context, deviceID int64) (*models.Device, error) {
	const op = "device.Get"
	d, err := r.tx.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}
