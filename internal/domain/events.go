package domain

import "time"

// Event представляет доменное событие, поднятое агрегатом при изменении состояния.
// События накапливаются в pending-списке агрегата и явно выгребаются
// application-слоем после успешного сохранения (PullEvents).
type Event interface {
	EventName() string
}

// События стока. Используются только для наблюдаемости: application-слой
// логирует их, а публикации в брокер подлежат лишь CartCheckedOut и OrderCreated.

type StockReserved struct {
	ProductID string
	Quantity  int
}

func (StockReserved) EventName() string { return "stock.reserved" }

type StockReleased struct {
	ProductID string
	Quantity  int
}

func (StockReleased) EventName() string { return "stock.released" }

type StockDeducted struct {
	ProductID string
	Quantity  int
}

func (StockDeducted) EventName() string { return "stock.deducted" }

type StockAdded struct {
	ProductID string
	Quantity  int
}

func (StockAdded) EventName() string { return "stock.added" }

type StockUpdated struct {
	ProductID   string
	NewQuantity int
}

func (StockUpdated) EventName() string { return "stock.updated" }

type ProductCreated struct {
	ProductID string
	Name      string
}

func (ProductCreated) EventName() string { return "product.created" }

// События корзины

type CartItemAdded struct {
	UserID    string
	ProductID string
	Quantity  int
}

func (CartItemAdded) EventName() string { return "cart.item_added" }

type CartItemRemoved struct {
	UserID    string
	ProductID string
	Quantity  int
}

func (CartItemRemoved) EventName() string { return "cart.item_removed" }

type CartItemQuantityUpdated struct {
	UserID      string
	ProductID   string
	OldQuantity int
	NewQuantity int
}

func (CartItemQuantityUpdated) EventName() string { return "cart.item_quantity_updated" }

type CartCleared struct {
	UserID string
}

func (CartCleared) EventName() string { return "cart.cleared" }

// CartCheckedOut - факт оформления корзины; маппится в интеграционное событие
// и публикуется в cart-events exchange
type CartCheckedOut struct {
	CartID     string
	UserID     string
	Items      []CartItem
	Total      Money
	OccurredAt time.Time
}

func (CartCheckedOut) EventName() string { return "cart.checkedout" }

// События заказа

// OrderCreated - факт создания заказа; маппится в интеграционное событие
// и публикуется в order-events exchange
type OrderCreated struct {
	OrderID    string
	UserID     string
	Items      []OrderItem
	Total      Money
	OccurredAt time.Time
}

func (OrderCreated) EventName() string { return "order.created" }

type OrderConfirmed struct {
	OrderID string
}

func (OrderConfirmed) EventName() string { return "order.confirmed" }

type OrderCompleted struct {
	OrderID string
}

func (OrderCompleted) EventName() string { return "order.completed" }

type OrderCancelled struct {
	OrderID string
}

func (OrderCancelled) EventName() string { return "order.cancelled" }
