package psmanager

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/ps-manager/internal/http/handlers/auth"
	"github.com/magabrotheeeer/ps-manager/internal/http/handlers/device"
	"github.com/magabrotheeeer/ps-manager/internal/http/handlers/health"
	"github.com/magabrotheeeer/ps-manager/internal/http/handlers/session"
	"github.com/magabrotheeeer/ps-manager/internal/http/handlers/shop"
	"github.com/magabrotheeeer/ps-manager/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ps-manager/internal/metrics"
	"github.com/magabrotheeeer/ps-manager/internal/models"
	"github.com/magabrotheeeer/ps-manager/internal/services/authz"
)

// Infra содержит служебные части маршрутизатора.
type Infra struct {
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Limiter  *rate.Limiter
	Checks   map[string]health.Checker
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, svc *Services, infra Infra) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		infra.Metrics.Middleware,
	)

	authHandler := auth.New(logger, svc.Accounts)
	deviceHandler := device.New(logger, svc.Devices)
	shopHandler := shop.New(logger, svc.Shops)
	sessionHandler := session.New(logger, svc.Sessions)

	requireAdmin := middlewarectx.RequireRole(logger, models.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, infra.Limiter))

		// Открытые конечные точки
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(svc.Accounts, logger))
			r.Use(middlewarectx.RequireAnyRole(logger, models.RoleUser, models.RoleAdmin))

			if svc.Policy.PasswordChangeScope == authz.ScopeByTargetRole {
				r.With(middlewarectx.RequireRole(logger, models.RoleUser)).
					Post("/auth/change_password/user", authHandler.ChangePassword(models.RoleUser))
				r.With(requireAdmin).
					Post("/auth/change_password/admin", authHandler.ChangePassword(models.RoleAdmin))
			} else {
				r.Post("/auth/change_password", authHandler.ChangePassword(""))
			}

			r.Get("/devices", deviceHandler.List)
			r.Get("/devices/{id}", deviceHandler.Get)

			r.Post("/sessions/start/{deviceId}", sessionHandler.Start)
			r.Put("/sessions/end/{id}", sessionHandler.End)
			r.Get("/sessions", sessionHandler.List)
			r.Get("/sessions/{id}", sessionHandler.Get)
			r.Delete("/sessions/{id}", sessionHandler.Delete)

			// Только администраторы
			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)

				r.Post("/auth/add_user", authHandler.AddUser)
				r.Post("/auth/add_admin", authHandler.AddAdmin)
				r.Put("/auth/suspend_user/{id}", authHandler.Suspend)

				r.Post("/devices", deviceHandler.Add)
				r.Put("/devices/{id}", deviceHandler.Update)
				r.Delete("/devices/{id}", deviceHandler.Delete)

				r.Get("/shops", shopHandler.List)
				r.Get("/shops/{id}", shopHandler.Get)
				r.Post("/shops", shopHandler.Add)
				r.Put("/shops/{id}", shopHandler.Update)
				r.Delete("/shops/{id}", shopHandler.Delete)
			})
		})
	})

	r.Handle("/metrics", metrics.Handler(infra.Gatherer))
	r.Get("/health", health.New(logger, infra.Checks).ServeHTTP)
}
