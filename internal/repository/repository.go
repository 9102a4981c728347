package repository

import (
	"context"
	"errors"

	"github.com/shestoi/product-management/internal/domain"
)

// ErrNotFound возвращается, когда сущность отсутствует в хранилище
var ErrNotFound = errors.New("not found")

// ProductRepository - хранилище товаров
type ProductRepository interface {
	Save(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	// Update сохраняет изменённый товар; ErrNotFound если товара нет
	Update(ctx context.Context, product *domain.Product) error
	List(ctx context.Context) ([]*domain.Product, error)
}

// OrderRepository - хранилище заказов
type OrderRepository interface {
	Save(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
}

// CartStore - process-wide concurrent хранилище корзин, ключ - user id.
// Операции корзины идут от одного пользователя и не параллелятся намеренно,
// но сама структура обязана выдерживать конкурентный доступ HTTP-потоков
// и cart-clearing consumer.
type CartStore interface {
	Get(userID string) (*domain.Cart, bool)
	Put(cart *domain.Cart)
	// Delete удаляет корзину; true если корзина существовала
	// (delete-if-exists, отсутствие корзины - не ошибка)
	Delete(userID string) bool
}
