// Package shop реализует HTTP-обработчики магазинов.
package shop

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ps-manager/internal/http/request"
	"github.com/magabrotheeeer/ps-manager/internal/http/response"
	"github.com/magabrotheeeer/ps-manager/internal/models"
	shopsvc "github.com/magabrotheeeer/ps-manager/internal/services/shop"
)

// Service описывает операции над магазинами.
type Service interface {
	List(ctx context.Context, caller *models.Caller) ([]*models.Shop, error)
	Get(ctx context.Context, caller *models.Caller, id int64) (*models.Shop, error)
	Add(ctx context.Context, caller *models.Caller, req shopsvc.NewShop) (*models.Shop, error)
	Update(ctx context.Context, caller *models.Caller, id int64, changes models.ShopChanges) (*models.Shop, error)
	Delete(ctx context.Context, caller *models.Caller, id int64) error
}

// Request — тело создания и изменения магазина. OwnerID учитывается только при создании.
type Request struct {
	Name    string `json:"name" validate:"required,max=100"`
	City    string `json:"city" validate:"max=100"`
	Area    string `json:"area" validate:"max=100"`
	OwnerID *int64 `json:"owner_id,omitempty"`
}

// Handler обрабатывает запросы к магазинам.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// List обрабатывает GET /shops.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.shop.List")
	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	shops, err := h.service.List(r.Context(), caller)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(shops))
}

// Get обрабатывает GET /shops/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.shop.Get")
	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	id, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	sh, err := h.service.Get(r.Context(), caller, id)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(sh))
}

// Add обрабатывает POST /shops.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.shop.Add")
	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	var req Request
	if !request.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}
	sh, err := h.service.Add(r.Context(), caller, shopsvc.NewShop{
		Name:    req.Name,
		City:    req.City,
		Area:    req.Area,
		OwnerID: req.OwnerID,
	})
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(sh))
}

// Update обрабатывает PUT /shops/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.shop.Update")
	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	id, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	var req Request
	if !request.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}
	sh, err := h.service.Update(r.Context(), caller, id, models.ShopChanges{
		Name: req.Name,
		City: req.City,
		Area: req.Area,
	})
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(sh))
}

// Delete обрабатывает DELETE /shops/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.shop.Delete")
	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	id, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), caller, id); err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.Message("shop deleted"))
}
