package memory

import (
	"sync"

	"github.com/shestoi/product-management/internal/domain"
)

// CartStore - concurrent map user id -> корзина. Явная зависимость,
// передаётся по ссылке всем, кому нужна; жизненный цикл привязан
// к старту/остановке процесса.
type CartStore struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

// NewCartStore создаёт пустое хранилище корзин
func NewCartStore() *CartStore {
	return &CartStore{
		carts: make(map[string]*domain.Cart),
	}
}

// Get возвращает корзину пользователя
func (s *CartStore) Get(userID string) (*domain.Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, exists := s.carts[userID]
	return cart, exists
}

// Put сохраняет корзину под её user id
func (s *CartStore) Put(cart *domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cart.UserID] = cart
}

// Delete удаляет корзину пользователя; true если корзина существовала
func (s *CartStore) Delete(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.carts[userID]
	if exists {
		delete(s.carts, userID)
	}
	return exists
}
