//go:build integration

package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/ps-manager/internal/migrations"
	"github.com/magabrotheeeer/ps-manager/internal/models"
	"github.com/magabrotheeeer/ps-manager/internal/storage"
)

func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, dsn)
	require.NoError(t, err)

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(s.DB, filepath.Join(root, "migrations")))
	require.NoError(t, s.CheckDatabaseReady(ctx))

	t.Cleanup(func() {
		_ = s.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return s
}

func TestIntegration_SessionLifecycle(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()

	shop, err := s.CreateShop(ctx, models.Shop{Name: "Central", City: "Moscow", Area: "North"}, nil)
	require.NoError(t, err)
	device, err := s.CreateDevice(ctx, models.Device{Name: "PS5 #7", HourlyPrice: decimal.NewFromInt(20), ShopID: &shop.ID})
	require.NoError(t, err)
	assert.False(t, device.IsActive)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var sess *models.Session
	err = s.InTx(ctx, func(tx storage.Tx) error {
		d, err := tx.AcquireDevice(ctx, device.ID)
		if err != nil {
			return err
		}
		sess, err = tx.CreateSession(ctx, models.Session{DeviceID: d.ID, ShopID: d.ShopID, CreatedAt: start})
		return err
	})
	require.NoError(t, err)

	got, err := s.GetDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	end := start.Add(45 * time.Minute)
	err = s.InTx(ctx, func(tx storage.Tx) error {
		locked, err := tx.LockSession(ctx, sess.ID)
		if err != nil {
			return err
		}
		if err := tx.ReleaseDevice(ctx, locked.DeviceID); err != nil {
			return err
		}
		_, err = tx.CloseSession(ctx, locked.ID, end, 15)
		return err
	})
	require.NoError(t, err)

	closed, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, closed.IsOver)
	assert.Equal(t, int64(15), closed.TotalDue)

	got, err = s.GetDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Удаление магазина каскадно удаляет устройство и его сессии.
	require.NoError(t, s.DeleteShop(ctx, shop.ID))
	_, err = s.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestIntegration_ConcurrentAcquire(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()

	device, err := s.CreateDevice(ctx, models.Device{Name: "PS5 #1", HourlyPrice: decimal.NewFromInt(20)})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.InTx(ctx, func(tx storage.Tx) error {
				d, err := tx.AcquireDevice(ctx, device.ID)
				if err != nil {
					return err
				}
				_, err = tx.CreateSession(ctx, models.Session{DeviceID: d.ID, CreatedAt: time.Now().UTC()})
				return err
			})
		}(i)
	}
	wg.Wait()

	var ok, busy int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, models.ErrDeviceBusy):
			busy++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, busy)

	sessions, err := s.ListSessions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestIntegration_UserShopSetNullOnShopDelete(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, models.User{
		Username:     "alice",
		PasswordHash: "hash",
		Enabled:      true,
		Roles:        []models.Role{models.RoleUser, models.RoleAdmin},
	})
	require.NoError(t, err)

	shop, err := s.CreateShop(ctx, models.Shop{Name: "Central"}, &u.ID)
	require.NoError(t, err)

	u, err = s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, u.ShopID)
	assert.Equal(t, shop.ID, *u.ShopID)

	require.NoError(t, s.DeleteShop(ctx, shop.ID))

	u, err = s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, u.ShopID)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAdmin}, u.Roles)

	_, err = s.CreateUser(ctx, models.User{Username: "alice", PasswordHash: "x", Roles: []models.Role{models.RoleUser}})
	assert.ErrorIs(t, err, models.ErrUsernameTaken)
}
