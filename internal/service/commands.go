package service

import "github.com/shestoi/product-management/internal/domain"

// Имена команд для реестра. Handler на команду регистрируется один,
// при дубле Register вернёт ошибку на старте приложения.
const (
	CreateOrderCommandName  = "order.create"
	CheckoutCartCommandName = "cart.checkout"
	ClearCartCommandName    = "cart.clear"
)

// CreateOrderCommand - создать заказ из позиций оформленной корзины.
// Отправляется order-creation consumer'ом при получении CartCheckedOut.
type CreateOrderCommand struct {
	UserID string
	Items  []domain.OrderItem
}

func (CreateOrderCommand) CommandName() string { return CreateOrderCommandName }

// CheckoutCartCommand - оформить корзину пользователя
type CheckoutCartCommand struct {
	UserID string
}

func (CheckoutCartCommand) CommandName() string { return CheckoutCartCommandName }

// ClearCartCommand - удалить корзину пользователя. Отправляется
// cart-clearing consumer'ом при получении OrderCreated; отсутствие
// корзины - не ошибка.
type ClearCartCommand struct {
	UserID string
}

func (ClearCartCommand) CommandName() string { return ClearCartCommandName }
