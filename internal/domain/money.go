package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeAmount - денежная сумма не может быть отрицательной
	ErrNegativeAmount = errors.New("amount cannot be negative")
	// ErrInvalidCurrency - валюта должна быть трёхбуквенным кодом
	ErrInvalidCurrency = errors.New("currency must be a 3-letter code")
	// ErrCurrencyMismatch - операции допустимы только над одной валютой
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

// Money представляет денежную сумму с валютой
type Money struct {
	Amount   float64
	Currency string
}

// NewMoney создаёт Money с валидацией суммы и кода валюты
func NewMoney(amount float64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Add складывает две суммы одной валюты
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// MulQuantity умножает сумму на количество единиц товара
func (m Money) MulQuantity(qty int) Money {
	return Money{Amount: m.Amount * float64(qty), Currency: m.Currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", m.Amount, m.Currency)
}
