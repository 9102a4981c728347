package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuantity - количество в операции над стоком должно быть > 0
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrInsufficientStock - доступного стока меньше, чем запрошено
	ErrInsufficientStock = errors.New("insufficient available stock")
	// ErrReleaseExceedsReserved - нельзя освободить больше, чем зарезервировано
	ErrReleaseExceedsReserved = errors.New("cannot release more than reserved")
	// ErrDeductExceedsQuantity - нельзя списать больше, чем есть на складе
	ErrDeductExceedsQuantity = errors.New("cannot deduct more than total quantity")
	// ErrQuantityBelowReserved - нельзя установить количество ниже зарезервированного
	ErrQuantityBelowReserved = errors.New("cannot set quantity below reserved amount")
)

// Stock - value object: общее количество и зарезервированная часть.
// Инварианты: 0 <= Reserved <= Quantity. Каждая операция возвращает
// новое значение Stock, старое не мутируется.
type Stock struct {
	Quantity int
	Reserved int
}

// NewStock создаёт Stock с проверкой инвариантов
func NewStock(quantity, reserved int) (Stock, error) {
	if quantity < 0 {
		return Stock{}, fmt.Errorf("stock quantity cannot be negative: %d", quantity)
	}
	if reserved < 0 {
		return Stock{}, fmt.Errorf("reserved quantity cannot be negative: %d", reserved)
	}
	if reserved > quantity {
		return Stock{}, fmt.Errorf("reserved quantity %d cannot exceed total quantity %d", reserved, quantity)
	}
	return Stock{Quantity: quantity, Reserved: reserved}, nil
}

// Available возвращает количество, доступное для резервирования
func (s Stock) Available() int {
	return s.Quantity - s.Reserved
}

// HasAvailable проверяет, хватает ли доступного стока под запрошенное количество
func (s Stock) HasAvailable(quantity int) bool {
	return s.Available() >= quantity
}

// Reserve увеличивает резерв. Ошибка, если доступного стока недостаточно
func (s Stock) Reserve(quantity int) (Stock, error) {
	if quantity <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	if !s.HasAvailable(quantity) {
		return Stock{}, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientStock, s.Available(), quantity)
	}
	return Stock{Quantity: s.Quantity, Reserved: s.Reserved + quantity}, nil
}

// Release уменьшает резерв. Ошибка, если запрошено больше, чем зарезервировано
func (s Stock) Release(quantity int) (Stock, error) {
	if quantity <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	if quantity > s.Reserved {
		return Stock{}, fmt.Errorf("%w: reserved %d, requested %d", ErrReleaseExceedsReserved, s.Reserved, quantity)
	}
	return Stock{Quantity: s.Quantity, Reserved: s.Reserved - quantity}, nil
}

// Deduct списывает сток при выполнении заказа: уменьшает общее количество
// и резерв на ту же величину (резерв не уходит ниже нуля)
func (s Stock) Deduct(quantity int) (Stock, error) {
	if quantity <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	if quantity > s.Quantity {
		return Stock{}, fmt.Errorf("%w: total %d, requested %d", ErrDeductExceedsQuantity, s.Quantity, quantity)
	}
	reserved := s.Reserved - quantity
	if reserved < 0 {
		reserved = 0
	}
	return Stock{Quantity: s.Quantity - quantity, Reserved: reserved}, nil
}

// Add увеличивает общее количество (административная операция)
func (s Stock) Add(quantity int) (Stock, error) {
	if quantity <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	return Stock{Quantity: s.Quantity + quantity, Reserved: s.Reserved}, nil
}

// Update устанавливает общее количество. Ошибка, если новое количество
// меньше уже обещанного (зарезервированного)
func (s Stock) Update(newQuantity int) (Stock, error) {
	if newQuantity < 0 {
		return Stock{}, fmt.Errorf("stock quantity cannot be negative: %d", newQuantity)
	}
	if newQuantity < s.Reserved {
		return Stock{}, fmt.Errorf("%w: reserved %d, new quantity %d", ErrQuantityBelowReserved, s.Reserved, newQuantity)
	}
	return Stock{Quantity: newQuantity, Reserved: s.Reserved}, nil
}

func (s Stock) String() string {
	return fmt.Sprintf("total=%d reserved=%d available=%d", s.Quantity, s.Reserved, s.Available())
}
