// Package service содержит application-слой: сервисы корзины, заказов
// и товаров, внутрипроцессный dispatcher доменных событий и command
// registry wiring.
package service

import (
	"context"
	"fmt"

	"github.com/shestoi/product-management/internal/dispatch"
)

// RegisterCommandHandlers регистрирует все command handlers в реестре.
// Вызывается один раз на старте приложения; дубль имени - ошибка конфигурации.
func RegisterCommandHandlers(registry *dispatch.Registry, orders *OrderService, carts *CartService) error {
	if err := registry.Register(CreateOrderCommandName, func(ctx context.Context, cmd dispatch.Command) (any, error) {
		c, ok := cmd.(CreateOrderCommand)
		if !ok {
			return nil, fmt.Errorf("unexpected command type %T for %s", cmd, CreateOrderCommandName)
		}
		return orders.CreateOrder(ctx, c.UserID, c.Items)
	}); err != nil {
		return err
	}

	if err := registry.Register(CheckoutCartCommandName, func(ctx context.Context, cmd dispatch.Command) (any, error) {
		c, ok := cmd.(CheckoutCartCommand)
		if !ok {
			return nil, fmt.Errorf("unexpected command type %T for %s", cmd, CheckoutCartCommandName)
		}
		return nil, carts.Checkout(ctx, c.UserID)
	}); err != nil {
		return err
	}

	if err := registry.Register(ClearCartCommandName, func(ctx context.Context, cmd dispatch.Command) (any, error) {
		c, ok := cmd.(ClearCartCommand)
		if !ok {
			return nil, fmt.Errorf("unexpected command type %T for %s", cmd, ClearCartCommandName)
		}
		return nil, carts.ClearCart(ctx, c.UserID)
	}); err != nil {
		return err
	}

	return nil
}
