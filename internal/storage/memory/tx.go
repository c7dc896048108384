package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ps-manager/internal/models"
	"github.com/magabrotheeeer/ps-manager/internal/storage"
)

// txn работает с картами хранилища напрямую: InTx уже держит блокировку записи.
type txn struct {
	s    *Storage
	undo []func()
}

var _ storage.Tx = (*txn)(nil)

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// saveDevice запоминает состояние устройства для отката.
func (t *txn) saveDevice(d *models.Device) {
	prev := cloneDevice(d)
	t.undo = append(t.undo, func() { *d = *prev })
}

// saveSession запоминает состояние сессии для отката.
func (t *txn) saveSession(id int64) {
	prev, existed := t.s.sessions[id]
	if existed {
		prev = cloneSession(prev)
	}
	t.undo = append(t.undo, func() {
		if existed {
			t.s.sessions[id] = prev
		} else {
			delete(t.s.sessions, id)
		}
	})
}

func (t *txn) GetDevice(ctx context.Context, id int64) (*models.Device, error) {
	const op = "memory.tx.GetDevice"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	d, ok := t.s.devices[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrDeviceNotFound)
	}
	return cloneDevice(d), nil
}

func (t *txn) AcquireDevice(ctx context.Context, id int64) (*models.Device, error) {
	const op = "memory.tx.AcquireDevice"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	d, ok := t.s.devices[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrDeviceNotFound)
	}
	if d.IsActive {
		return nil, fmt.Errorf("%s: %w", op, models.ErrDeviceBusy)
	}
	t.saveDevice(d)
	d.IsActive = true
	d.UpdatedAt = t.s.now()
	return cloneDevice(d), nil
}

func (t *txn) ReleaseDevice(ctx context.Context, id int64) error {
	const op = "memory.tx.ReleaseDevice"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}
	d, ok := t.s.devices[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, models.ErrDeviceNotFound)
	}
	t.saveDevice(d)
	d.IsActive = false
	d.UpdatedAt = t.s.now()
	return nil
}

func (t *txn) CreateSession(ctx context.Context, sess models.Session) (*models.Session, error) {
	const op = "memory.tx.CreateSession"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	if _, ok := t.s.devices[sess.DeviceID]; !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrDeviceNotFound)
	}
	for _, other := range t.s.sessions {
		if other.DeviceID == sess.DeviceID && !other.IsOver {
			return nil, fmt.Errorf("%s: %w", op, models.ErrDeviceBusy)
		}
	}

	prevID := t.s.lastSessionID
	t.s.lastSessionID++
	sess.ID = t.s.lastSessionID
	sess.EndedAt = nil
	sess.IsOver = false
	sess.TotalDue = 0

	t.saveSession(sess.ID)
	t.undo = append(t.undo, func() { t.s.lastSessionID = prevID })
	t.s.sessions[sess.ID] = cloneSession(&sess)
	return cloneSession(&sess), nil
}

func (t *txn) LockSession(ctx context.Context, id int64) (*models.Session, error) {
	const op = "memory.tx.LockSession"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	sess, ok := t.s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrSessionNotFound)
	}
	return cloneSession(sess), nil
}

func (t *txn) CloseSession(ctx context.Context, id int64, endedAt time.Time, totalDue int64) (*models.Session, error) {
	const op = "memory.tx.CloseSession"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	sess, ok := t.s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrSessionNotFound)
	}
	if sess.IsOver {
		return nil, fmt.Errorf("%s: %w", op, models.ErrSessionAlreadyEnded)
	}
	t.saveSession(id)
	closed := cloneSession(sess)
	closed.EndedAt = &endedAt
	closed.IsOver = true
	closed.TotalDue = totalDue
	t.s.sessions[id] = closed
	return cloneSession(closed), nil
}

func (t *txn) DeleteSession(ctx context.Context, id int64) error {
	const op = "memory.tx.DeleteSession"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}
	if _, ok := t.s.sessions[id]; !ok {
		return fmt.Errorf("%s: %w", op, models.ErrSessionNotFound)
	}
	t.saveSession(id)
	delete(t.s.sessions, id)
	return nil
}
