// Package auth реализует HTTP-обработчики учётных записей: вход, регистрацию,
// добавление сотрудников и администраторов, блокировку и смену пароля.
package auth

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
	"github.com/magabrotheeeer/ps-manager/internal/services/account"
)

// Service описывает операции каталога учётных записей.
type Service interface {
	Register(ctx context.Context, username, password string) (*account.LoginResult, error)
	Login(ctx context.Context, username, password string) (*account.LoginResult, error)
	AddUser(ctx context.Context, caller *models.Caller, req account.NewAccount) (*models.User, error)
	AddAdmin(ctx context.Context, caller *models.Caller, req account.NewAccount) (*models.User, error)
	Suspend(ctx context.Context, caller *models.Caller, id int64) error
	ChangePassword(ctx context.Context, caller *models.Caller, endpointRole models.Role, req account.PasswordChange) error
}

// Request — учётные данные для входа и регистрации.
type Request struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Password string `json:"password" validate:"required,min=8,max=40"`
}

// AddAccountRequest — тело запросов add_user и add_admin.
type AddAccountRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Password string `json:"password" validate:"required,min=8,max=40"`
	ShopID   *int64 `json:"shop_id,omitempty"`
}

// ChangePasswordRequest — тело запроса смены пароля. ID задаёт цель,
// пустой ID означает собственную учётную запись.
type ChangePasswordRequest struct {
	ID          *int64 `json:"id,omitempty"`
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=40"`
}

// Handler обрабатывает запросы к учётным записям.
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

// Login обрабатывает POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.auth.Login")

	var req Request
	if !request.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(res))
}

// Register обрабатывает POST /auth/register. После регистрации сразу выполняется вход.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.auth.Register")

	var req Request
	if !request.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	log.Info("user registered", slog.Int64("account_id", res.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(res))
}

// AddUser обрабатывает POST /auth/add_user.
func (h *Handler) AddUser(w http.ResponseWriter, r *http.Request) {
	h.addAccount(w, r, "handlers.auth.AddUser", h.service.AddUser)
}

// AddAdmin обрабатывает POST /auth/add_admin.
func (h *Handler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	h.addAccount(w, r, "handlers.auth.AddAdmin", h.service.AddAdmin)
}

type addFunc func(ctx context.Context, caller *models.Caller, req account.NewAccount) (*models.User, error)

func (h *Handler) addAccount(w http.ResponseWriter, r *http.Request, op string, add addFunc) {
	log := h.logger(r, op)

	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	var req AddAccountRequest
	if !request.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}
	user, err := add(r.Context(), caller, account.NewAccount{
		Username: req.Username,
		Password: req.Password,
		ShopID:   req.ShopID,
	})
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(user))
}

// Suspend обрабатывает PUT /auth/suspend_user/{id}.
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.auth.Suspend")

	caller, ok := request.Caller(w, r, log)
	if !ok {
		return
	}
	id, ok := request.PathID(w, r, log, "id")
	if !ok {
		return
	}
	if err := h.service.Suspend(r.Context(), caller, id); err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.Message("User suspended successfully"))
}

// ChangePassword возвращает обработчик смены пароля для эндпоинта с ролью
// endpointRole. Пустая роль означает роль инициатора: ADMIN для
// администратора, иначе USER.
func (h *Handler) ChangePassword(endpointRole models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := h.logger(r, "handlers.auth.ChangePassword")

		caller, ok := request.Caller(w, r, log)
		if !ok {
			return
		}
		var req ChangePasswordRequest
		if !request.DecodeAndValidate(w, r, log, h.validate, &req) {
			return
		}

		role := endpointRole
		if role == "" {
			role = models.RoleUser
			if caller.IsAdmin() {
				role = models.RoleAdmin
			}
		}
		err := h.service.ChangePassword(r.Context(), caller, role, account.PasswordChange{
			TargetID:    req.ID,
			OldPassword: req.OldPassword,
			NewPassword: req.NewPassword,
		})
		if err != nil {
			response.WriteError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.Message("password changed successfully"))
	}
}
