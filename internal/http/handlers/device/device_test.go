package device

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/ps-manager/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ps-manager/internal/models"
	devicesvc "github.com/magabrotheeeer/ps-manager/internal/services/device"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) List(ctx context.Context, caller *models.Caller) ([]*models.Device, error) {
	args := m.Called(ctx, caller)
	d, _ := args.Get(0).([]*models.Device)
	return d, args.Error(1)
}

func (m *MockService) Get(ctx context.Context, caller *models.Caller, id int64) (*models.Device, error) {
	args := m.Called(ctx, caller, id)
	d, _ := args.Get(0).(*models.Device)
	return d, args.Error(1)
}

func (m *MockService) Add(ctx context.Context, caller *models.Caller, req devicesvc.NewDevice) (*models.Device, error) {
	args := m.Called(ctx, caller, req)
	d, _ := args.Get(0).(*models.Device)
	return d, args.Error(1)
}

func (m *MockService) Update(ctx context.Context, caller *models.Caller, id int64, changes models.DeviceChanges) (*models.Device, error) {
	args := m.Called(ctx, caller, id, changes)
	d, _ := args.Get(0).(*models.Device)
	return d, args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, caller *models.Caller, id int64) error {
	return m.Called(ctx, caller, id).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var (
	shopID = int64(1)
	admin  = &models.Caller{AccountID: 1, Roles: []models.Role{models.RoleUser, models.RoleAdmin}, ShopID: &shopID}
	ts     = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
)

func newRequest(method, body string, id string) *http.Request {
	req := httptest.NewRequest(method, "/", bytes.NewBufferString(body))
	ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "req-id")
	ctx = middlewarectx.WithCaller(ctx, admin)
	rctx := chi.NewRouteContext()
	if id != "" {
		rctx.URLParams.Add("id", id)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

// matchPrice сравнивает цену по значению: у decimal.Decimal нет канонического представления.
func matchPrice(name string, price string) any {
	want := decimal.RequireFromString(price)
	return mock.MatchedBy(func(req devicesvc.NewDevice) bool {
		return req.Name == name && req.HourlyPrice.Equal(want)
	})
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(m *MockService)
		wantStatus int
		wantBody   string
	}{
		{
			name: "устройство добавлено",
			body: `{"name":"PS5 #1","hourly_price":20}`,
			setupMocks: func(m *MockService) {
				m.On("Add", mock.Anything, admin, matchPrice("PS5 #1", "20")).Return(&models.Device{
					ID: 1, Name: "PS5 #1", HourlyPrice: decimal.NewFromInt(20), ShopID: &shopID, CreatedAt: ts, UpdatedAt: ts,
				}, nil).Once()
			},
			wantStatus: http.StatusCreated,
			wantBody:   `{"status":"OK","data":{"id":1,"name":"PS5 #1","hourly_price":"20","is_active":false,"shop_id":1,"created_at":"2024-03-01T18:00:00Z","updated_at":"2024-03-01T18:00:00Z"}}`,
		},
		{
			name: "цена строкой",
			body: `{"name":"PS4","hourly_price":"12.50"}`,
			setupMocks: func(m *MockService) {
				m.On("Add", mock.Anything, admin, matchPrice("PS4", "12.5")).Return(&models.Device{ID: 2, Name: "PS4"}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "без цены",
			body:       `{"name":"PS4"}`,
			setupMocks: func(_ *MockService) {},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `{"status":"Error","error":"field HourlyPrice is a required field"}`,
		},
		{
			name:       "отрицательная цена",
			body:       `{"name":"PS4","hourly_price":-1}`,
			setupMocks: func(_ *MockService) {},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `{"status":"Error","error":"field HourlyPrice must not be negative"}`,
		},
		{
			name: "имя занято",
			body: `{"name":"PS5 #1","hourly_price":20}`,
			setupMocks: func(m *MockService) {
				m.On("Add", mock.Anything, admin, mock.Anything).Return(nil, models.ErrDeviceNameTaken).Once()
			},
			wantStatus: http.StatusConflict,
			wantBody:   `{"status":"Error","error":"device name is already taken"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMocks(svc)
			w := httptest.NewRecorder()

			New(newNoopLogger(), svc).Add(w, newRequest(http.MethodPost, tt.body, ""))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestUpdate(t *testing.T) {
	svc := new(MockService)
	svc.On("Update", mock.Anything, admin, int64(3), mock.MatchedBy(func(c models.DeviceChanges) bool {
		return c.Name == "PS5 Pro" && c.HourlyPrice.Equal(decimal.NewFromInt(30))
	})).Return(&models.Device{ID: 3, Name: "PS5 Pro", HourlyPrice: decimal.NewFromInt(30), IsActive: true}, nil).Once()
	svc.On("Update", mock.Anything, admin, int64(404), mock.Anything).Return(nil, models.ErrDeviceNotFound).Once()
	h := New(newNoopLogger(), svc)

	w := httptest.NewRecorder()
	h.Update(w, newRequest(http.MethodPut, `{"name":"PS5 Pro","hourly_price":30,"shop_id":99}`, "3"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_active":true`)

	w = httptest.NewRecorder()
	h.Update(w, newRequest(http.MethodPut, `{"name":"PS5 Pro","hourly_price":30}`, "404"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.Update(w, newRequest(http.MethodPut, `{"name":"PS5 Pro","hourly_price":30}`, "x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestListGetDelete(t *testing.T) {
	svc := new(MockService)
	svc.On("List", mock.Anything, admin).Return([]*models.Device{}, nil).Once()
	svc.On("Get", mock.Anything, admin, int64(5)).Return(nil, models.ErrOtherShop).Once()
	svc.On("Delete", mock.Anything, admin, int64(6)).Return(nil).Once()
	svc.On("Delete", mock.Anything, admin, int64(7)).Return(errors.New("db down")).Once()
	h := New(newNoopLogger(), svc)

	w := httptest.NewRecorder()
	h.List(w, newRequest(http.MethodGet, "", ""))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","data":[]}`, w.Body.String())

	w = httptest.NewRecorder()
	h.Get(w, newRequest(http.MethodGet, "", "5"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"status":"Error","error":"resource belongs to a different shop"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.Delete(w, newRequest(http.MethodDelete, "", "6"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.Delete(w, newRequest(http.MethodDelete, "", "7"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"Error","error":"internal error"}`, w.Body.String())
	svc.AssertExpectations(t)
}
