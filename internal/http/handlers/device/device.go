// Package device реализует HTTP-обработчики устройств магазина.
package device

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/ps-manager/internal/http/request"
	"github.com/magabrotheeeer/ps-manager/internal/http/response"
	"github.com/magabrotheeeer/ps-manager/internal/models"
	devicesvc "github.com/magabrotheeeer/ps-manager/internal/services/device"
)

// Service описывает операции над устройствами.
type Service interface {
	List(ctx context.Context, caller *models.Caller) ([]*models.Device, error)
	Get(ctx context.Context, caller *models.Caller, id int64) (*models.Device, error)
	Add(ctx context.Context, caller *models.Caller, req devicesvc.NewDevice) (*models.Device, error)
	Update(ctx context.Context, caller *models.Caller, id int64, changes models.DeviceChanges) (*models.Device, error)
	Delete(ctx context.Context, caller *models.Caller, id int64) error
}

// Request — тело создания и изменения устройства. Цена принимается
// числом или строкой ("20.50").
type Request struct {
	Name        string           `json:"name" validate:"required,max=100"`
	HourlyPrice *decimal.Decimal `json:"hourly_price" validate:"required"`
	ShopID      *int64           `json:"shop_id,omitempty"`
}

// Handler обрабатывает запросы к устройствам.
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

// decode разбирает тело и отклоняет отрицательную цену с 422.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*Request, bool) {
	var req Request
	if !request.DecodeAndValidate(w, r, log, h.validate, &req) {
		return nil, false
	}
	if req.HourlyPrice.IsNegative() {
		log.Info("negative hourly price", slog.String("price", req.HourlyPrice.String()))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("field HourlyPrice must not be negative"))
		return nil, false
	}
	return &req, true
}

// List обрабатывает GET /devices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.device.List")
	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	devices, err := h.service.List(r.Context(), caller)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(devices))
}

// Get обрабатывает GET /devices/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.device.Get")
	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	id, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), caller, id)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(d))
}

// Add обрабатывает POST /devices.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.device.Add")
	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	req, ok := h.decode(w, r, log)
	if !ok {
		return
	}
	d, err := h.service.Add(r.Context(), caller, devicesvc.NewDevice{
		Name:        req.Name,
		HourlyPrice: *req.HourlyPrice,
		ShopID:      req.ShopID,
	})
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(d))
}

// Update обрабатывает PUT /devices/{id}. Меняются только имя и цена; shop_id игнорируется.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.device.Update")
	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	id, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	req, ok := h.decode(w, r, log)
	if !ok {
		return
	}
	d, err := h.service.Update(r.Context(), caller, id, models.DeviceChanges{
		Name:        req.Name,
		HourlyPrice: *req.HourlyPrice,
	})
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(d))
}

// Delete обрабатывает DELETE /devices/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.device.Delete")
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
	render.JSON(w, r, response.Message("device deleted"))
}
