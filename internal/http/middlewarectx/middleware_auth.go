// Package middlewarectx содержит HTTP middleware: проверку JWT, проверку
// ролей и ограничение частоты запросов.
//
// JWTMiddleware проверяет токен из заголовка Authorization и кладёт
// инициатора запроса (models.Caller) в контекст. Обработчики достают его
// через CallerFrom.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ps-manager/internal/http/response"
	"github.com/magabrotheeeer/ps-manager/internal/lib/sl"
	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// CallerKey — ключ инициатора запроса в контексте.
const CallerKey Key = "caller"

// Authenticator проверяет токен и возвращает инициатора.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Caller, error)
}

// WithCaller возвращает контекст с инициатором запроса.
func WithCaller(ctx context.Context, c *models.Caller) context.Context {
	return context.WithValue(ctx, CallerKey, c)
}

// CallerFrom достаёт инициатора запроса из контекста.
func CallerFrom(ctx context.Context) (*models.Caller, bool) {
	c, ok := ctx.Value(CallerKey).(*models.Caller)
	return c, ok && c != nil
}

// JWTMiddleware возвращает middleware, который проверяет Bearer-токен.
// Без валидного токена запрос получает 401 Unauthorized.
func JWTMiddleware(auth Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Info("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			caller, err := auth.Authenticate(r.Context(), tokenStr)
			if err != nil {
				msg := "invalid or expired token"
				if errors.Is(err, models.ErrUserDisabled) {
					msg, _ = models.Message(models.ErrUserDisabled)
				}
				log.Info("authentication failed", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error(msg))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
