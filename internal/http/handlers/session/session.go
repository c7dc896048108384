// Package session реализует HTTP-обработчики игровых сессий.
package session

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ps-manager/internal/http/request"
	"github.com/magabrotheeeer/ps-manager/internal/http/response"
	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// Service описывает операции над сессиями.
type Service interface {
	StartSession(ctx context.Context, caller *models.Caller, deviceID int64) (*models.Session, error)
	EndSession(ctx context.Context, caller *models.Caller, sessionID int64) (*models.Session, error)
	GetSession(ctx context.Context, caller *models.Caller, sessionID int64) (*models.Session, error)
	ListSessions(ctx context.Context, caller *models.Caller) ([]*models.Session, error)
	DeleteSession(ctx context.Context, caller *models.Caller, sessionID int64) error
}

// Handler обрабатывает запросы к сессиям.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// call выполняет общую часть обработчиков: логгер, инициатор и id из пути.
func (h *Handler) call(w http.ResponseWriter, r *http.Request, op, key string) (*slog.Logger, *models.Caller, int64, bool) {
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	caller, ok := request.Caller(w, r, log)
	if !ok {
		return nil, nil, 0, false
	}
	if key == "" {
		return log, caller, 0, true
	}
	id, ok := request.PathID(w, r, log, key)
	if !ok {
		return nil, nil, 0, false
	}
	return log, caller, id, true
}

// Start обрабатывает POST /sessions/start/{deviceId}.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	log, caller, deviceID, ok := h.call(w, r, "handlers.session.Start", "deviceId")
	if !ok {
		return
	}
	sess, err := h.service.StartSession(r.Context(), caller, deviceID)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(sess))
}

// End обрабатывает PUT /sessions/end/{id}.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	log, caller, id, ok := h.call(w, r, "handlers.session.End", "id")
	if !ok {
		return
	}
	sess, err := h.service.EndSession(r.Context(), caller, id)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(sess))
}

// Get обрабатывает GET /sessions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log, caller, id, ok := h.call(w, r, "handlers.session.Get", "id")
	if !ok {
		return
	}
	sess, err := h.service.GetSession(r.Context(), caller, id)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(sess))
}

// List обрабатывает GET /sessions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log, caller, _, ok := h.call(w, r, "handlers.session.List", "")
	if !ok {
		return
	}
	sessions, err := h.service.ListSessions(r.Context(), caller)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(sessions))
}

// Delete обрабатывает DELETE /sessions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log, caller, id, ok := h.call(w, r, "handlers.session.Delete", "id")
	if !ok {
		return
	}
	if err := h.service.DeleteSession(r.Context(), caller, id); err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.Message("session deleted"))
}
