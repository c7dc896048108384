package response

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ps-manager/internal/lib/jwt"
	"github.com/magabrotheeeer/ps-manager/internal/models"
)

func TestWriteError(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "устройство занято",
			err:        fmt.Errorf("session.Start: %w", models.ErrDeviceBusy),
			wantStatus: http.StatusConflict,
			wantBody:   `{"status":"Error","error":"device has another session already running"}`,
		},
		{
			name:       "не найдено",
			err:        models.ErrSessionNotFound,
			wantStatus: http.StatusNotFound,
			wantBody:   `{"status":"Error","error":"session not found"}`,
		},
		{
			name:       "запрещено",
			err:        models.ErrCannotSuspendAdmin,
			wantStatus: http.StatusForbidden,
			wantBody:   `{"status":"Error","error":"Admin can't suspend admins"}`,
		},
		{
			name:       "неверный пароль",
			err:        models.ErrBadCredentials,
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"status":"Error","error":"Invalid credentials"}`,
		},
		{
			name:       "неверный токен",
			err:        fmt.Errorf("account.Authenticate: %w", jwt.ErrInvalidToken),
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"status":"Error","error":"invalid or expired token"}`,
		},
		{
			name:       "нарушение контракта",
			err:        models.ErrClockSkew,
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"status":"Error","error":"session end is before its start"}`,
		},
		{
			name:       "внутренняя ошибка",
			err:        errors.New("pq: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"status":"Error","error":"internal error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			WriteError(w, r, log, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestValidationError(t *testing.T) {
	type req struct {
		Username string `validate:"required,min=3"`
		Password string `validate:"required"`
	}
	err := validator.New().Struct(req{Username: "ab"})
	require.Error(t, err)

	resp := ValidationError(err.(validator.ValidationErrors))
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "field Username must be at least 3 characters long, field Password is a required field", resp.Error)
}

func TestOKWithData(t *testing.T) {
	resp := OKWithData(map[string]int{"id": 1})
	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Error)
	assert.Equal(t, map[string]int{"id": 1}, resp.Data)
}
