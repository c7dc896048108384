// Package billing считает сумму к оплате за закрытую сессию.
//
// Тариф почасовой, тарификация поминутная: учитываются только целые минуты,
// дробная часть итоговой суммы отбрасывается.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/ps-manager/internal/models"
)

var minutesPerHour = decimal.NewFromInt(60)

// Calculator не хранит состояния.
type Calculator struct{}

// New возвращает Calculator.
func New() Calculator {
	return Calculator{}
}

// Compute возвращает floor(минуты * hourlyPrice / 60).
//
// Считаются целые минуты между start и end, секунды отбрасываются.
// Деление выполняется после умножения, без промежуточного округления.
func (Calculator) Compute(hourlyPrice decimal.Decimal, start, end time.Time) (int64, error) {
	const op = "billing.Compute"
	if hourlyPrice.IsNegative() {
		return 0, fmt.Errorf("%s: %w", op, models.ErrNegativePrice)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%s: %w", op, models.ErrClockSkew)
	}

	minutes := int64(end.Sub(start) / time.Minute)
	// Точное целочисленное деление: оба операнда неотрицательные,
	// поэтому усечение QuoRem совпадает с floor.
	due, _ := decimal.NewFromInt(minutes).Mul(hourlyPrice).QuoRem(minutesPerHour, 0)
	return due.IntPart(), nil
}
