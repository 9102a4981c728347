// Package event содержит контракты интеграционных событий - сообщений,
// пересекающих границу процесса через брокер. Wire-формат: JSON в camelCase,
// UTF-8, без pretty-printing.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/shestoi/product-management/internal/domain"
)

// LineItem - позиция в интеграционном событии. Цена - снапшот на момент
// оформления корзины.
type LineItem struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Currency    string  `json:"currency"`
}

// CartCheckedOutEvent публикуется при оформлении корзины.
// EventID уникален на каждую публикацию (основа для дедупликации на consumers,
// сама дедупликация пока не реализована).
type CartCheckedOutEvent struct {
	EventID     string     `json:"eventId"`
	CartID      string     `json:"cartId"`
	UserID      string     `json:"userId"`
	Items       []LineItem `json:"items"`
	TotalAmount float64    `json:"totalAmount"`
	Currency    string     `json:"currency"`
	OccurredAt  time.Time  `json:"occurredAt"`
}

// OrderCreatedEvent публикуется после создания заказа; его независимо
// потребляют stock-deduction и cart-clearing consumers.
type OrderCreatedEvent struct {
	EventID     string     `json:"eventId"`
	OrderID     string     `json:"orderId"`
	UserID      string     `json:"userId"`
	Items       []LineItem `json:"items"`
	TotalAmount float64    `json:"totalAmount"`
	Currency    string     `json:"currency"`
	OccurredAt  time.Time  `json:"occurredAt"`
}

// NewCartCheckedOutEvent маппит доменное событие в интеграционное
func NewCartCheckedOutEvent(e domain.CartCheckedOut) CartCheckedOutEvent {
	items := make([]LineItem, 0, len(e.Items))
	for _, item := range e.Items {
		items = append(items, LineItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.Amount,
			Currency:    item.UnitPrice.Currency,
		})
	}
	return CartCheckedOutEvent{
		EventID:     uuid.New().String(),
		CartID:      e.CartID,
		UserID:      e.UserID,
		Items:       items,
		TotalAmount: e.Total.Amount,
		Currency:    e.Total.Currency,
		OccurredAt:  e.OccurredAt,
	}
}

// NewOrderCreatedEvent маппит доменное событие в интеграционное
func NewOrderCreatedEvent(e domain.OrderCreated) OrderCreatedEvent {
	items := make([]LineItem, 0, len(e.Items))
	for _, item := range e.Items {
		items = append(items, LineItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.Amount,
			Currency:    item.UnitPrice.Currency,
		})
	}
	return OrderCreatedEvent{
		EventID:     uuid.New().String(),
		OrderID:     e.OrderID,
		UserID:      e.UserID,
		Items:       items,
		TotalAmount: e.Total.Amount,
		Currency:    e.Total.Currency,
		OccurredAt:  e.OccurredAt,
	}
}
