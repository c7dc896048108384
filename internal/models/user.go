// Package models содержит доменные модели сервиса: магазины, устройства,
// игровые сессии и учётные записи, а также общие доменные ошибки.
// Связи между сущностями выражены идентификаторами (внешними ключами),
// а не вложенными объектами.
package models

import (
	"slices"
	"time"
)

// Role — роль учётной записи.
type Role string

const (
	// RoleUser — сотрудник магазина.
	RoleUser Role = "ROLE_USER"
	// RoleAdmin — администратор магазина.
	RoleAdmin Role = "ROLE_ADMIN"
)

// User представляет учётную запись для входа в систему.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Enabled      bool      `json:"enabled"`
	Token        *string   `json:"-"` // Последний выданный токен
	Roles        []Role    `json:"roles"`
	ShopID       *int64    `json:"shop_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin сообщает, есть ли у учётной записи роль администратора.
func (u *User) IsAdmin() bool {
	return slices.Contains(u.Roles, RoleAdmin)
}

// Caller — аутентифицированный инициатор запроса.
type Caller struct {
	AccountID int64
	Username  string
	Roles     []Role
	ShopID    *int64
}

// HasRole сообщает, есть ли у инициатора указанная роль.
func (c *Caller) HasRole(role Role) bool {
	return slices.Contains(c.Roles, role)
}

// IsAdmin сообщает, является ли инициатор администратором.
func (c *Caller) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}

// CallerFromUser строит Caller по учётной записи.
func CallerFromUser(u *User) *Caller {
	return &Caller{
		AccountID: u.ID,
		Username:  u.Username,
		Roles:     slices.Clone(u.Roles),
		ShopID:    u.ShopID,
	}
}

// RoleNames возвращает имена ролей в виде строк.
func RoleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return names
}

// SameShop сообщает, указывают ли обе ссылки на один и тот же магазин.
// Пустая ссылка не совпадает ни с чем.
func SameShop(a, b *int64) bool {
	return a != nil && b != nil && *a == *b
}
