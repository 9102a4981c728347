package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shestoi/product-management/internal/dispatch"
	"github.com/shestoi/product-management/internal/domain"
	"github.com/shestoi/product-management/internal/event"
	"github.com/shestoi/product-management/internal/repository"
	"github.com/shestoi/product-management/internal/service"
)

// NewOrderCreationConsumer потребляет CartCheckedOut и создаёт заказ
// через command registry. Позиции и цены берутся из события как есть,
// текущие цены каталога не перечитываются.
func NewOrderCreationConsumer(
	logger *zap.Logger,
	channels ChannelFactory,
	route Route,
	retry RetryConfig,
	dlx DeadLetterConfig,
	registry *dispatch.Registry,
) *Consumer {
	return NewConsumer(logger, channels, route, retry, dlx,
		func(ctx context.Context, e event.CartCheckedOutEvent) error {
			logger.Info("processing cart checked out event",
				zap.String("event_id", e.EventID),
				zap.String("cart_id", e.CartID),
				zap.String("user_id", e.UserID),
				zap.Int("items", len(e.Items)),
			)

			items := make([]domain.OrderItem, 0, len(e.Items))
			for _, item := range e.Items {
				items = append(items, domain.OrderItem{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
					Quantity:    item.Quantity,
					UnitPrice:   domain.Money{Amount: item.UnitPrice, Currency: item.Currency},
				})
			}

			result, err := registry.Send(ctx, service.CreateOrderCommand{
				UserID: e.UserID,
				Items:  items,
			})
			if err != nil {
				return fmt.Errorf("create order for cart %s: %w", e.CartID, err)
			}

			if order, ok := result.(*domain.Order); ok {
				logger.Info("order created from cart",
					zap.String("event_id", e.EventID),
					zap.String("cart_id", e.CartID),
					zap.String("order_id", order.ID),
				)
			}
			return nil
		})
}

// NewStockDeductionConsumer потребляет OrderCreated и списывает сток
// по каждой позиции заказа, проверяя доступный остаток (quantity - reserved).
// Сбои по отдельным позициям накапливаются, consumer продолжает обрабатывать
// остальные; итоговая ошибка агрегирует все сбои и отправляет сообщение
// целиком в retry (позиции, списанные на прошлой попытке, будут списаны
// повторно - дедупликации нет).
func NewStockDeductionConsumer(
	logger *zap.Logger,
	channels ChannelFactory,
	route Route,
	retry RetryConfig,
	dlx DeadLetterConfig,
	products repository.ProductRepository,
	dispatcher *service.EventDispatcher,
) *Consumer {
	return NewConsumer(logger, channels, route, retry, dlx,
		func(ctx context.Context, e event.OrderCreatedEvent) error {
			logger.Info("processing order created event for stock deduction",
				zap.String("event_id", e.EventID),
				zap.String("order_id", e.OrderID),
				zap.Int("items", len(e.Items)),
			)

			var failures []string
			for _, item := range e.Items {
				product, err := products.GetByID(ctx, item.ProductID)
				if err != nil {
					if errors.Is(err, repository.ErrNotFound) {
						failures = append(failures, fmt.Sprintf("Product %s not found", item.ProductID))
						continue
					}
					failures = append(failures, fmt.Sprintf("Error loading product %s: %v", item.ProductID, err))
					continue
				}

				if !product.HasAvailableStock(item.Quantity) {
					failures = append(failures, fmt.Sprintf("Insufficient stock for product %s", product.Name))
					continue
				}

				if err := product.DeductStock(item.Quantity); err != nil {
					failures = append(failures, fmt.Sprintf("Error deducting stock for product %s", product.Name))
					continue
				}
				if err := products.Update(ctx, product); err != nil {
					failures = append(failures, fmt.Sprintf("Error deducting stock for product %s", product.Name))
					continue
				}

				if err := dispatcher.Dispatch(ctx, product.PullEvents()); err != nil {
					logger.Warn("failed to dispatch stock events", zap.Error(err))
				}

				logger.Info("stock deducted",
					zap.String("order_id", e.OrderID),
					zap.String("product_id", item.ProductID),
					zap.Int("quantity", item.Quantity),
				)
			}

			if len(failures) > 0 {
				return fmt.Errorf("stock deduction failed for order %s: %s", e.OrderID, strings.Join(failures, "; "))
			}
			return nil
		})
}

// NewCartClearingConsumer потребляет OrderCreated и через command registry
// снимает резерв по позициям корзины пользователя и удаляет её.
// Отсутствие корзины - успех: cart-clearing и stock-deduction consumers
// независимы, порядок не гарантирован.
func NewCartClearingConsumer(
	logger *zap.Logger,
	channels ChannelFactory,
	route Route,
	retry RetryConfig,
	dlx DeadLetterConfig,
	registry *dispatch.Registry,
) *Consumer {
	return NewConsumer(logger, channels, route, retry, dlx,
		func(ctx context.Context, e event.OrderCreatedEvent) error {
			logger.Info("processing order created event for cart clearing",
				zap.String("event_id", e.EventID),
				zap.String("order_id", e.OrderID),
				zap.String("user_id", e.UserID),
			)

			if _, err := registry.Send(ctx, service.ClearCartCommand{UserID: e.UserID}); err != nil {
				return fmt.Errorf("clear cart for user %s: %w", e.UserID, err)
			}
			return nil
		})
}
