// Package health отвечает на проверки живости и готовности сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ps-manager/internal/http/response"
	"github.com/magabrotheeeer/ps-manager/internal/lib/sl"
)

// Checker — зависимость, доступность которой проверяется.
type Checker func(ctx context.Context) error

// Handler опрашивает зависимости и отвечает 200 или 503.
type Handler struct {
	log     *slog.Logger
	checks  map[string]Checker
	timeout time.Duration
}

// New создаёт Handler. Пустой checks означает проверку только живости.
func New(log *slog.Logger, checks map[string]Checker) *Handler {
	return &Handler{
		log:     log,
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := make(map[string]string, len(h.checks)+1)
	status["status"] = "ok"
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("dependency is unavailable", slog.String("op", op), slog.String("dependency", name), sl.Err(err))
			status[name] = "unavailable"
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		status["status"] = "degraded"
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Response{Status: response.StatusError, Error: "dependency unavailable", Data: status})
		return
	}
	render.JSON(w, r, response.OKWithData(status))
}
