package middlewarectx

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ps-manager/internal/http/response"
	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// RequireAnyRole пропускает запрос, если у инициатора есть хотя бы одна из ролей.
// Ставится после JWTMiddleware.
func RequireAnyRole(log *slog.Logger, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFrom(r.Context())
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}
			if !slices.ContainsFunc(roles, caller.HasRole) {
				log.Info("role check failed",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.Int64("account_id", caller.AccountID),
					slog.Any("required", models.RoleNames(roles)),
				)
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("Forbidden request"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole требует одну роль.
func RequireRole(log *slog.Logger, role models.Role) func(http.Handler) http.Handler {
	return RequireAnyRole(log, role)
}
