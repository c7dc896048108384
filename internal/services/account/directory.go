// Package account отвечает за учётные записи: регистрацию, вход по JWT,
// создание сотрудников и администраторов, блокировку и смену пароля.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/ps-manager/internal/lib/jwt"
	"github.com/magabrotheeeer/ps-manager/internal/lib/sl"
	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// UserRepository описывает хранилище учётных записей.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	SetUserToken(ctx context.Context, id int64, token string) error
	SetUserEnabled(ctx context.Context, id int64, enabled bool) error
	SetUserPassword(ctx context.Context, id int64, passwordHash string) error
}

// ShopReader проверяет существование магазина.
type ShopReader interface {
	GetShop(ctx context.Context, id int64) (*models.Shop, error)
}

// PasswordHasher хеширует и сверяет пароли.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Matches(plain, hash string) (bool, error)
}

// TokenMaker выпускает и проверяет токены доступа.
type TokenMaker interface {
	GenerateToken(accountID int64, username string, roles []string) (string, error)
	ParseToken(token string) (*jwt.Claims, error)
}

// Guard содержит правила доступа, нужные каталогу.
type Guard interface {
	CanSuspend(admin *models.Caller, target *models.User) error
	CanTargetPassword(caller *models.Caller, targetID int64) error
	CanChangePassword(caller *models.Caller, target *models.User, endpointRole models.Role) error
	CanAccessShop(caller *models.Caller, shopID *int64) error
}

// LoginResult — ответ на успешный вход.
type LoginResult struct {
	Token    string   `json:"token"`
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	ShopID   *int64   `json:"shop_id"`
	Roles    []string `json:"roles"`
	IsAdmin  bool     `json:"is_admin"`
}

// NewAccount — данные для создания сотрудника или администратора.
// Пустой ShopID означает магазин инициатора.
type NewAccount struct {
	Username string
	Password string
	ShopID   *int64
}

// PasswordChange — запрос на смену пароля. TargetID == nil означает
// собственную учётную запись инициатора.
type PasswordChange struct {
	TargetID    *int64
	OldPassword string
	NewPassword string
}

// Directory управляет учётными записями.
type Directory struct {
	users                       UserRepository
	shops                       ShopReader
	hasher                      PasswordHasher
	tokens                      TokenMaker
	guard                       Guard
	selfRegistrationGrantsAdmin bool
	log                         *slog.Logger
}

// Deps собирает зависимости Directory.
type Deps struct {
	Users                       UserRepository
	Shops                       ShopReader
	Hasher                      PasswordHasher
	Tokens                      TokenMaker
	Guard                       Guard
	SelfRegistrationGrantsAdmin bool
	Log                         *slog.Logger
}

// NewDirectory создаёт Directory.
func NewDirectory(d Deps) *Directory {
	return &Directory{
		users:                       d.Users,
		shops:                       d.Shops,
		hasher:                      d.Hasher,
		tokens:                      d.Tokens,
		guard:                       d.Guard,
		selfRegistrationGrantsAdmin: d.SelfRegistrationGrantsAdmin,
		log:                         d.Log,
	}
}

// Register создаёт учётную запись без магазина и сразу выполняет вход.
func (d *Directory) Register(ctx context.Context, username, password string) (*LoginResult, error) {
	const op = "account.Register"
	roles := []models.Role{models.RoleUser}
	if d.selfRegistrationGrantsAdmin {
		roles = append(roles, models.RoleAdmin)
	}
	if _, err := d.create(ctx, username, password, nil, roles); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := d.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Login проверяет пароль, выпускает токен и запоминает его как последний
// выданный.
func (d *Directory) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	const op = "account.Login"
	user, err := d.users.GetUserByUsername(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		// Неизвестное имя неотличимо от неверного пароля.
		return nil, fmt.Errorf("%s: %w", op, models.ErrBadCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ok, err := d.hasher.Matches(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrBadCredentials)
	}
	if !user.Enabled {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserDisabled)
	}

	roles := models.RoleNames(user.Roles)
	token, err := d.tokens.GenerateToken(user.ID, user.Username, roles)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := d.users.SetUserToken(ctx, user.ID, token); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d.log.Info("user logged in", slog.Int64("account_id", user.ID), slog.String("username", user.Username))
	return &LoginResult{
		Token:    token,
		ID:       user.ID,
		Username: user.Username,
		ShopID:   user.ShopID,
		Roles:    roles,
		IsAdmin:  user.IsAdmin(),
	}, nil
}

// AddUser создаёт сотрудника с ролью USER.
func (d *Directory) AddUser(ctx context.Context, caller *models.Caller, req NewAccount) (*models.User, error) {
	const op = "account.AddUser"
	user, err := d.addMember(ctx, caller, req, []models.Role{models.RoleUser})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// AddAdmin создаёт администратора с ролями USER и ADMIN.
func (d *Directory) AddAdmin(ctx context.Context, caller *models.Caller, req NewAccount) (*models.User, error) {
	const op = "account.AddAdmin"
	user, err := d.addMember(ctx, caller, req, []models.Role{models.RoleUser, models.RoleAdmin})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (d *Directory) addMember(ctx context.Context, caller *models.Caller, req NewAccount, roles []models.Role) (*models.User, error) {
	shopID := req.ShopID
	if shopID == nil {
		shopID = caller.ShopID
	}
	if shopID != nil {
		if _, err := d.shops.GetShop(ctx, *shopID); err != nil {
			return nil, err
		}
	}
	if err := d.guard.CanAccessShop(caller, shopID); err != nil {
		return nil, err
	}
	user, err := d.create(ctx, req.Username, req.Password, shopID, roles)
	if err != nil {
		return nil, err
	}
	d.log.Info("account added",
		slog.Int64("account_id", user.ID),
		slog.Int64("by", caller.AccountID),
		slog.Any("roles", models.RoleNames(roles)),
	)
	return user, nil
}

func (d *Directory) create(ctx context.Context, username, password string, shopID *int64, roles []models.Role) (*models.User, error) {
	_, err := d.users.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return nil, models.ErrUsernameTaken
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	hash, err := d.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	return d.users.CreateUser(ctx, models.User{
		Username:     username,
		PasswordHash: hash,
		Enabled:      true,
		Roles:        roles,
		ShopID:       shopID,
	})
}

// Suspend блокирует учётную запись id. Токены заблокированной учётной
// записи перестают проходить Authenticate.
func (d *Directory) Suspend(ctx context.Context, caller *models.Caller, id int64) error {
	const op = "account.Suspend"
	target, err := d.users.GetUserByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := d.guard.CanSuspend(caller, target); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := d.users.SetUserEnabled(ctx, target.ID, false); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d.log.Info("account suspended", slog.Int64("account_id", target.ID), slog.Int64("by", caller.AccountID))
	return nil
}

// ChangePassword меняет пароль цели после проверки старого пароля.
// endpointRole задаёт роль эндпоинта, через который пришёл запрос.
func (d *Directory) ChangePassword(ctx context.Context, caller *models.Caller, endpointRole models.Role, req PasswordChange) error {
	const op = "account.ChangePassword"
	targetID := caller.AccountID
	if req.TargetID != nil {
		targetID = *req.TargetID
	}
	if err := d.guard.CanTargetPassword(caller, targetID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	target, err := d.users.GetUserByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := d.guard.CanChangePassword(caller, target, endpointRole); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ok, err := d.hasher.Matches(req.OldPassword, target.PasswordHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, models.ErrBadCredentials)
	}
	hash, err := d.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := d.users.SetUserPassword(ctx, target.ID, hash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d.log.Info("password changed", slog.Int64("account_id", target.ID), slog.Int64("by", caller.AccountID))
	return nil
}

// Authenticate проверяет токен и возвращает инициатора по текущему
// состоянию учётной записи: роли и магазин берутся из хранилища, а не из токена.
func (d *Directory) Authenticate(ctx context.Context, token string) (*models.Caller, error) {
	const op = "account.Authenticate"
	claims, err := d.tokens.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	id, err := claims.AccountID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, err := d.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			d.log.Debug("token of deleted account", slog.Int64("account_id", id), sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, jwt.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !user.Enabled {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserDisabled)
	}
	return models.CallerFromUser(user), nil
}
