package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shestoi/product-management/internal/domain"
	"github.com/shestoi/product-management/internal/repository"
)

// ErrOrderNotFound - заказ не существует
var ErrOrderNotFound = errors.New("order not found")

// OrderService - application-слой заказов. CreateOrder вызывается
// order-creation consumer'ом через command registry; после сохранения
// заказа событие OrderCreated уходит publisher'у через dispatcher.
type OrderService struct {
	logger     *zap.Logger
	orders     repository.OrderRepository
	dispatcher *EventDispatcher
}

// NewOrderService создаёт сервис заказов
func NewOrderService(logger *zap.Logger, orders repository.OrderRepository, dispatcher *EventDispatcher) *OrderService {
	return &OrderService{
		logger:     logger,
		orders:     orders,
		dispatcher: dispatcher,
	}
}

// CreateOrder создаёт заказ из позиций оформленной корзины и публикует
// OrderCreated. Ошибка публикации - это ошибка операции: consumer,
// вызвавший команду, уйдёт в retry с тем же сообщением.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, items []domain.OrderItem) (*domain.Order, error) {
	order, err := domain.NewOrder(userID, items)
	if err != nil {
		return nil, err
	}

	if err := s.orders.Save(ctx, order); err != nil {
		s.logger.Error("failed to save order", zap.Error(err), zap.String("user_id", userID))
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, order.PullEvents()); err != nil {
		s.logger.Error("failed to dispatch order events",
			zap.Error(err),
			zap.String("order_id", order.ID),
		)
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Int("items", len(items)),
		zap.Float64("total", order.Total.Amount),
		zap.String("currency", order.Total.Currency),
	)
	return order, nil
}

// GetOrder возвращает заказ по id
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return nil, err
	}
	return order, nil
}

// GetOrdersByUser возвращает заказы пользователя
func (s *OrderService) GetOrdersByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.orders.GetByUserID(ctx, userID)
}

// ConfirmOrder переводит заказ в confirmed
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, (*domain.Order).Confirm)
}

// CompleteOrder переводит заказ в completed
func (s *OrderService) CompleteOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, (*domain.Order).Complete)
}

// CancelOrder отменяет заказ
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, (*domain.Order).Cancel)
}

func (s *OrderService) transition(ctx context.Context, orderID string, fn func(*domain.Order) error) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := fn(order); err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, order.PullEvents()); err != nil {
		s.logger.Warn("failed to dispatch order events", zap.Error(err), zap.String("order_id", orderID))
	}

	s.logger.Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("status", string(order.Status)),
	)
	return order, nil
}
