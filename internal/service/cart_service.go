package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shestoi/product-management/internal/domain"
	"github.com/shestoi/product-management/internal/repository"
)

var (
	// ErrCartNotFound - у пользователя нет корзины
	ErrCartNotFound = errors.New("cart not found")
	// ErrProductNotFound - товар не существует
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock - доступного стока не хватает под запрошенное количество
	ErrInsufficientStock = errors.New("insufficient stock")
)

// CartService - application-слой корзины. Резервирует сток при добавлении
// товара и снимает резерв при удалении; при оформлении публикует
// CartCheckedOut через dispatcher. Корзину НЕ очищает - это делает
// cart-clearing consumer после создания заказа.
type CartService struct {
	logger     *zap.Logger
	carts      repository.CartStore
	products   repository.ProductRepository
	dispatcher *EventDispatcher
}

// NewCartService создаёт сервис корзины
func NewCartService(
	logger *zap.Logger,
	carts repository.CartStore,
	products repository.ProductRepository,
	dispatcher *EventDispatcher,
) *CartService {
	return &CartService{
		logger:     logger,
		carts:      carts,
		products:   products,
		dispatcher: dispatcher,
	}
}

// GetCart возвращает корзину пользователя
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, exists := s.carts.Get(userID)
	if !exists {
		return nil, ErrCartNotFound
	}
	return cart, nil
}

// AddItem добавляет товар в корзину пользователя, резервируя сток.
// Корзина создаётся лениво при первом добавлении.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return nil, err
	}

	if !product.HasAvailableStock(quantity) {
		return nil, fmt.Errorf("%w: product %s", ErrInsufficientStock, product.Name)
	}
	if err := product.ReserveStock(quantity); err != nil {
		return nil, err
	}
	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}
	if err := s.dispatcher.Dispatch(ctx, product.PullEvents()); err != nil {
		s.logger.Warn("failed to dispatch product events", zap.Error(err))
	}

	cart, exists := s.carts.Get(userID)
	if !exists {
		cart = domain.NewCart(userID)
	}
	if err := cart.AddItem(product.ID, product.Name, quantity, product.Price); err != nil {
		return nil, err
	}
	s.carts.Put(cart)

	if err := s.dispatcher.Dispatch(ctx, cart.PullEvents()); err != nil {
		s.logger.Warn("failed to dispatch cart events", zap.Error(err))
	}

	s.logger.Info("item added to cart",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)
	return cart, nil
}

// UpdateItemQuantity меняет количество товара в корзине, донабирая
// или снимая резерв на разницу
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	cart, exists := s.carts.Get(userID)
	if !exists {
		return nil, ErrCartNotFound
	}

	current, ok := cart.ItemQuantity(productID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCartItemNotFound, productID)
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return nil, err
	}

	delta := quantity - current
	switch {
	case delta > 0:
		if !product.HasAvailableStock(delta) {
			return nil, fmt.Errorf("%w: product %s", ErrInsufficientStock, product.Name)
		}
		if err := product.ReserveStock(delta); err != nil {
			return nil, err
		}
	case delta < 0:
		if err := product.ReleaseStock(-delta); err != nil {
			return nil, err
		}
	}

	if delta != 0 {
		if err := s.products.Update(ctx, product); err != nil {
			return nil, err
		}
		if err := s.dispatcher.Dispatch(ctx, product.PullEvents()); err != nil {
			s.logger.Warn("failed to dispatch product events", zap.Error(err))
		}
	}

	if err := cart.UpdateItemQuantity(productID, quantity); err != nil {
		return nil, err
	}
	s.carts.Put(cart)

	if err := s.dispatcher.Dispatch(ctx, cart.PullEvents()); err != nil {
		s.logger.Warn("failed to dispatch cart events", zap.Error(err))
	}
	return cart, nil
}

// RemoveItem убирает товар из корзины и снимает его резерв
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	cart, exists := s.carts.Get(userID)
	if !exists {
		return nil, ErrCartNotFound
	}

	removed, err := cart.RemoveItem(productID)
	if err != nil {
		return nil, err
	}
	s.carts.Put(cart)

	// Снятие резерва best-effort: товар мог быть удалён из каталога
	product, err := s.products.GetByID(ctx, productID)
	if err == nil {
		if err := product.ReleaseStock(removed.Quantity); err != nil {
			s.logger.Warn("failed to release stock",
				zap.Error(err),
				zap.String("product_id", productID),
			)
		} else if err := s.products.Update(ctx, product); err != nil {
			s.logger.Warn("failed to update product after release", zap.Error(err))
		} else if err := s.dispatcher.Dispatch(ctx, product.PullEvents()); err != nil {
			s.logger.Warn("failed to dispatch product events", zap.Error(err))
		}
	}

	if err := s.dispatcher.Dispatch(ctx, cart.PullEvents()); err != nil {
		s.logger.Warn("failed to dispatch cart events", zap.Error(err))
	}
	return cart, nil
}

// Checkout оформляет корзину пользователя. Поднятое агрегатом событие
// CartCheckedOut уходит подписчикам dispatcher - в том числе publisher'у
// интеграционных событий. Корзина остаётся на месте до OrderCreated.
func (s *CartService) Checkout(ctx context.Context, userID string) error {
	cart, exists := s.carts.Get(userID)
	if !exists {
		return ErrCartNotFound
	}

	if err := cart.Checkout(); err != nil {
		return err
	}

	if err := s.dispatcher.Dispatch(ctx, cart.PullEvents()); err != nil {
		s.logger.Error("failed to dispatch checkout events",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return err
	}

	s.logger.Info("cart checked out",
		zap.String("user_id", userID),
		zap.String("cart_id", cart.ID),
	)
	return nil
}

// ClearCart снимает резерв по позициям корзины и удаляет её.
// Снятие резерва best-effort: stock-deduction consumer обрабатывает тот же
// OrderCreated независимо и мог уже конвертировать резерв в списание.
// Отсутствие корзины - не ошибка.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	cart, exists := s.carts.Get(userID)
	if !exists {
		s.logger.Info("no cart to clear", zap.String("user_id", userID))
		return nil
	}

	for _, item := range cart.Items {
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			s.logger.Warn("failed to load product for release",
				zap.Error(err),
				zap.String("product_id", item.ProductID),
			)
			continue
		}
		if err := product.ReleaseStock(item.Quantity); err != nil {
			s.logger.Warn("failed to release stock",
				zap.Error(err),
				zap.String("product_id", item.ProductID),
			)
			continue
		}
		if err := s.products.Update(ctx, product); err != nil {
			s.logger.Warn("failed to update product after release", zap.Error(err))
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, product.PullEvents()); err != nil {
			s.logger.Warn("failed to dispatch product events", zap.Error(err))
		}
	}

	s.carts.Delete(userID)

	if err := s.dispatcher.Dispatch(ctx, []domain.Event{domain.CartCleared{UserID: userID}}); err != nil {
		s.logger.Warn("failed to dispatch cart cleared event", zap.Error(err))
	}

	s.logger.Info("cart cleared", zap.String("user_id", userID))
	return nil
}
