package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptyOrder - заказ должен содержать хотя бы одну позицию
	ErrEmptyOrder = errors.New("order must contain at least one item")
	// ErrInvalidStatusTransition - недопустимый переход статуса заказа
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

// OrderStatus - статус жизненного цикла заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderItem - позиция заказа. Цена - снапшот на момент оформления корзины,
// текущая цена товара не перечитывается
type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   Money
}

// Order - агрегат заказа
type Order struct {
	ID        string
	UserID    string
	Items     []OrderItem
	Total     Money
	Status    OrderStatus
	CreatedAt time.Time

	events []Event
}

// NewOrder создаёт заказ в статусе pending и поднимает OrderCreated
func NewOrder(userID string, items []OrderItem) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	total := Money{Amount: 0, Currency: items[0].UnitPrice.Currency}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, item.ProductID)
		}
		var err error
		total, err = total.Add(item.UnitPrice.MulQuantity(item.Quantity))
		if err != nil {
			return nil, err
		}
	}

	o := &Order{
		ID:        uuid.New().String(),
		UserID:    userID,
		Items:     items,
		Total:     total,
		Status:    OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	o.raise(OrderCreated{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Items:      items,
		Total:      total,
		OccurredAt: o.CreatedAt,
	})
	return o, nil
}

// Confirm переводит заказ pending -> confirmed
func (o *Order) Confirm() error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: %s -> confirmed", ErrInvalidStatusTransition, o.Status)
	}
	o.Status = OrderStatusConfirmed
	o.raise(OrderConfirmed{OrderID: o.ID})
	return nil
}

// Complete переводит заказ confirmed -> completed
func (o *Order) Complete() error {
	if o.Status != OrderStatusConfirmed {
		return fmt.Errorf("%w: %s -> completed", ErrInvalidStatusTransition, o.Status)
	}
	o.Status = OrderStatusCompleted
	o.raise(OrderCompleted{OrderID: o.ID})
	return nil
}

// Cancel отменяет заказ из pending или confirmed
func (o *Order) Cancel() error {
	if o.Status != OrderStatusPending && o.Status != OrderStatusConfirmed {
		return fmt.Errorf("%w: %s -> cancelled", ErrInvalidStatusTransition, o.Status)
	}
	o.Status = OrderStatusCancelled
	o.raise(OrderCancelled{OrderID: o.ID})
	return nil
}

// PullEvents выгребает накопленные доменные события
func (o *Order) PullEvents() []Event {
	events := o.events
	o.events = nil
	return events
}

func (o *Order) raise(e Event) {
	o.events = append(o.events, e)
}
