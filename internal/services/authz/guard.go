// Package authz проверяет ролевые и арендные (по магазину) правила доступа,
// которые нельзя выразить одной статической проверкой роли.
package authz

import (
	"fmt"

	"github.com/magabrotheeeer/ps-manager/internal/models"
)

// PasswordChangeScope определяет, чей пароль может сменить инициатор.
type PasswordChangeScope string

const (
	// ScopeSelfOnly — только собственный пароль, цель берётся из токена.
	ScopeSelfOnly PasswordChangeScope = "self_only"
	// ScopeByTargetRole — цель задаётся в запросе, эндпоинт определяется ролью цели.
	ScopeByTargetRole PasswordChangeScope = "by_target_role"
)

// Policy — правила доступа, выбранные при старте.
type Policy struct {
	TenantScoping       bool
	PasswordChangeScope PasswordChangeScope
}

// Guard вычисляет решения о доступе. Не хранит состояния кроме политики.
type Guard struct {
	policy Policy
}

// NewGuard создаёт Guard. Пустая PasswordChangeScope считается ScopeSelfOnly.
func NewGuard(policy Policy) *Guard {
	if policy.PasswordChangeScope == "" {
		policy.PasswordChangeScope = ScopeSelfOnly
	}
	return &Guard{policy: policy}
}

// Policy возвращает действующую политику.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CanManageShopResources требует роль администратора.
func (g *Guard) CanManageShopResources(caller *models.Caller) error {
	const op = "authz.CanManageShopResources"
	if caller == nil || !caller.IsAdmin() {
		return fmt.Errorf("%s: %w", op, models.ErrAdminRequired)
	}
	return nil
}

// CanSuspend разрешает администратору блокировать только не-администраторов
// своего магазина. Администратор без магазина не может блокировать никого.
func (g *Guard) CanSuspend(admin *models.Caller, target *models.User) error {
	const op = "authz.CanSuspend"
	if target.IsAdmin() {
		return fmt.Errorf("%s: %w", op, models.ErrCannotSuspendAdmin)
	}
	if !models.SameShop(admin.ShopID, target.ShopID) {
		return fmt.Errorf("%s: %w", op, models.ErrCannotSuspendOtherShop)
	}
	return nil
}

// CanChangePassword проверяет смену пароля target через эндпоинт endpointRole.
//
// В режиме ScopeByTargetRole эндпоинт USER отклоняет цели-администраторы,
// а эндпоинт ADMIN отклоняет цели без роли администратора. Роль инициатора
// здесь не учитывается. В режиме ScopeSelfOnly цель обязана совпадать
// с инициатором.
func (g *Guard) CanChangePassword(caller *models.Caller, target *models.User, endpointRole models.Role) error {
	const op = "authz.CanChangePassword"
	switch g.policy.PasswordChangeScope {
	case ScopeByTargetRole:
		if endpointRole == models.RoleUser && target.IsAdmin() {
			return fmt.Errorf("%s: %w", op, models.ErrForbiddenRequest)
		}
		if endpointRole == models.RoleAdmin && !target.IsAdmin() {
			return fmt.Errorf("%s: %w", op, models.ErrForbiddenRequest)
		}
		return nil
	default:
		if caller == nil || caller.AccountID != target.ID {
			return fmt.Errorf("%s: %w", op, models.ErrForbiddenRequest)
		}
		return nil
	}
}

// CanTargetPassword проверяет цель смены пароля до чтения учётной записи:
// в режиме ScopeSelfOnly чужой id отклоняется, есть такая запись или нет.
func (g *Guard) CanTargetPassword(caller *models.Caller, targetID int64) error {
	const op = "authz.CanTargetPassword"
	if g.policy.PasswordChangeScope == ScopeByTargetRole {
		return nil
	}
	if caller == nil || caller.AccountID != targetID {
		return fmt.Errorf("%s: %w", op, models.ErrForbiddenRequest)
	}
	return nil
}

// CanAccessShop при включённой арендной изоляции требует, чтобы ресурс
// принадлежал магазину инициатора. Ресурс без магазина и инициатор без
// магазина доступа не дают.
func (g *Guard) CanAccessShop(caller *models.Caller, shopID *int64) error {
	const op = "authz.CanAccessShop"
	if !g.policy.TenantScoping {
		return nil
	}
	if caller == nil || !models.SameShop(caller.ShopID, shopID) {
		return fmt.Errorf("%s: %w", op, models.ErrOtherShop)
	}
	return nil
}

// ListScope возвращает фильтр по магазину для списков. visible == false
// означает, что инициатору не видно ни одной записи.
func (g *Guard) ListScope(caller *models.Caller) (shopID *int64, visible bool) {
	if !g.policy.TenantScoping {
		return nil, true
	}
	if caller == nil || caller.ShopID == nil {
		return nil, false
	}
	id := *caller.ShopID
	return &id, true
}
