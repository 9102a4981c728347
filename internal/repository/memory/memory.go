// Package memory содержит in-memory реализации репозиториев.
// Используются по умолчанию (STORAGE_BACKEND=memory) и в тестах;
// postgres-реализации живут в соседнем пакете.
package memory

import (
	"context"
	"sync"

	"github.com/shestoi/product-management/internal/domain"
	"github.com/shestoi/product-management/internal/repository"
)

// ProductRepository реализует repository.ProductRepository в памяти
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewProductRepository создаёт новый in-memory репозиторий товаров
func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		products: make(map[string]domain.Product),
	}
}

// Save сохраняет товар (копию, чтобы хранилище не делило состояние с вызывающим)
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Копия хранится без pending-событий: их выгребает и диспатчит
	// вызывающий, GetByID не должен выдавать их повторно
	stored := *product
	stored.PullEvents()
	r.products[product.ID] = stored
	return nil
}

// GetByID возвращает товар по id
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, exists := r.products[id]
	if !exists {
		return nil, repository.ErrNotFound
	}
	return &product, nil
}

// Update сохраняет изменённый товар; ErrNotFound если товара нет
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[product.ID]; !exists {
		return repository.ErrNotFound
	}

	stored := *product
	stored.PullEvents()
	r.products[product.ID] = stored
	return nil
}

// List возвращает все товары
func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Product, 0, len(r.products))
	for id := range r.products {
		product := r.products[id]
		result = append(result, &product)
	}
	return result, nil
}

// OrderRepository реализует repository.OrderRepository в памяти
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewOrderRepository создаёт новый in-memory репозиторий заказов
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]domain.Order),
	}
}

// Save сохраняет заказ
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *order
	stored.Items = make([]domain.OrderItem, len(order.Items))
	copy(stored.Items, order.Items)
	// Pending-события принадлежат вызывающему, хранилище их не переживает
	stored.PullEvents()
	r.orders[order.ID] = stored
	return nil
}

// GetByID возвращает заказ по id
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.orders[id]
	if !exists {
		return nil, repository.ErrNotFound
	}
	return &order, nil
}

// GetByUserID возвращает все заказы пользователя
func (r *OrderRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Order, 0)
	for id := range r.orders {
		if r.orders[id].UserID == userID {
			order := r.orders[id]
			result = append(result, &order)
		}
	}
	return result, nil
}
