// Package request разбирает тело и параметры HTTP-запросов для обработчиков.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ps-manager/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ps-manager/internal/http/response"
	"github.com/magabrotheeeer/ps-manager/internal/lib/sl"
	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// ErrBadID — идентификатор в пути не является положительным числом.
var ErrBadID = errors.New("invalid id")

// ID читает числовой параметр пути key.
func ID(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadID, raw)
	}
	return id, nil
}

// DecodeAndValidate разбирает JSON-тело в dst и проверяет его тегами validate.
// При ошибке ответ уже записан и возвращается false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, log *slog.Logger, v *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Info("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return false
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Info("validation failed", sl.Err(err))
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return false
		}
		log.Error("validator failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return false
	}
	return true
}

// PathID читает параметр пути key. При ошибке ответ 400 уже записан.
func PathID(w http.ResponseWriter, r *http.Request, log *slog.Logger, key string) (int64, bool) {
	id, err := ID(r, key)
	if err != nil {
		log.Info("failed to decode id from url", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return 0, false
	}
	return id, true
}

// Caller достаёт инициатора запроса. Без него пишет 401.
func Caller(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*models.Caller, bool) {
	c, ok := middlewarectx.CallerFrom(r.Context())
	if !ok {
		log.Error("caller not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return nil, false
	}
	return c, true
}
