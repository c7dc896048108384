package models

import "time"

// Session — один интервал использования устройства.
//
// Открытая сессия: EndedAt == nil, IsOver == false.
// Закрытая: EndedAt и TotalDue выставлены один раз, IsOver == true.
type Session struct {
	ID        int64      `json:"id"`
	DeviceID  int64      `json:"device_id"`
	ShopID    *int64     `json:"shop_id,omitempty"` // Копия магазина устройства на момент старта
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	IsOver    bool       `json:"is_over"`
	TotalDue  int64      `json:"total_due"`
}

// SessionEnded — событие о закрытии сессии и выставленной сумме.
type SessionEnded struct {
	EventID   string    `json:"event_id"`
	SessionID int64     `json:"session_id"`
	DeviceID  int64     `json:"device_id"`
	ShopID    *int64    `json:"shop_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	TotalDue  int64     `json:"total_due"`
}
