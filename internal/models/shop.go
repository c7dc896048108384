package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shop — магазин, граница арендатора.
type Shop struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	Area      string    `json:"area"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShopChanges — изменяемые поля магазина.
type ShopChanges struct {
	Name string
	City string
	Area string
}

// Device — оплачиваемое устройство (приставка, игровое место).
type Device struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	HourlyPrice decimal.Decimal `json:"hourly_price"`
	IsActive    bool            `json:"is_active"`
	ShopID      *int64          `json:"shop_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DeviceChanges — изменяемые поля устройства. Флаг занятости и магазин
// здесь намеренно отсутствуют: ими управляет только жизненный цикл сессии.
type DeviceChanges struct {
	Name        string
	HourlyPrice decimal.Decimal
}
