package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/product-management/internal/dispatch"
	"github.com/shestoi/product-management/internal/domain"
	"github.com/shestoi/product-management/internal/event"
	"github.com/shestoi/product-management/internal/repository/memory"
	"github.com/shestoi/product-management/internal/service"
)

type publishedMessage struct {
	message    any
	exchange   string
	routingKey string
}

// capturePublisher собирает публикации вместо отправки в брокер
type capturePublisher struct {
	published []publishedMessage
}

func (p *capturePublisher) Publish(ctx context.Context, message any, exchange, routingKey string) error {
	p.published = append(p.published, publishedMessage{message: message, exchange: exchange, routingKey: routingKey})
	return nil
}

// pipeline - полный граф приложения на in-memory хранилище
type pipeline struct {
	products  *memory.ProductRepository
	orders    *memory.OrderRepository
	carts     *memory.CartStore
	publisher *capturePublisher
	registry  *dispatch.Registry

	productService *service.ProductService
	cartService    *service.CartService
	orderService   *service.OrderService
	dispatcher     *service.EventDispatcher
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := zap.NewNop()

	p := &pipeline{
		products:  memory.NewProductRepository(),
		orders:    memory.NewOrderRepository(),
		carts:     memory.NewCartStore(),
		publisher: &capturePublisher{},
		registry:  dispatch.NewRegistry(),
	}

	p.dispatcher = service.NewEventDispatcher(logger)
	service.SubscribeIntegrationEvents(p.dispatcher, p.publisher, service.IntegrationRoutes{
		CartEventsExchange:  "cart.events",
		CartCheckedOutKey:   "cart.checkedout",
		OrderEventsExchange: "order.events",
		OrderCreatedKey:     "order.created",
	})

	p.productService = service.NewProductService(logger, p.products, p.dispatcher)
	p.cartService = service.NewCartService(logger, p.carts, p.products, p.dispatcher)
	p.orderService = service.NewOrderService(logger, p.orders, p.dispatcher)

	require.NoError(t, service.RegisterCommandHandlers(p.registry, p.orderService, p.cartService))
	return p
}

func (p *pipeline) deliver(t *testing.T, consumer *Consumer, message any) *fakeAcknowledger {
	t.Helper()
	body, err := json.Marshal(message)
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body})
	return ack
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BackoffBase: 1 * time.Millisecond}
}

// Полный путь: checkout -> CartCheckedOut -> заказ -> OrderCreated ->
// списание стока и очистка корзины
func TestPipeline_CheckoutToOrderToStockAndCart(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	logger := zap.NewNop()

	product, err := p.productService.CreateProduct(ctx, "Keyboard", domain.Money{Amount: 49.99, Currency: "USD"}, 10)
	require.NoError(t, err)

	_, err = p.cartService.AddItem(ctx, "user-1", product.ID, 3)
	require.NoError(t, err)

	// Checkout публикует CartCheckedOut
	_, err = p.registry.Send(ctx, service.CheckoutCartCommand{UserID: "user-1"})
	require.NoError(t, err)

	require.Len(t, p.publisher.published, 1)
	require.Equal(t, "cart.events", p.publisher.published[0].exchange)
	require.Equal(t, "cart.checkedout", p.publisher.published[0].routingKey)

	checkedOut, ok := p.publisher.published[0].message.(event.CartCheckedOutEvent)
	require.True(t, ok)
	require.Equal(t, "user-1", checkedOut.UserID)
	require.NotEmpty(t, checkedOut.EventID)
	require.Len(t, checkedOut.Items, 1)
	require.InDelta(t, 149.97, checkedOut.TotalAmount, 0.001)

	// Корзина после checkout остаётся
	_, err = p.cartService.GetCart(ctx, "user-1")
	require.NoError(t, err)

	// Order-creation consumer получает CartCheckedOut и создаёт заказ
	orderCreation := NewOrderCreationConsumer(logger, nil, testRoute(), fastRetry(), DeadLetterConfig{}, p.registry)
	ack := p.deliver(t, orderCreation, checkedOut)
	require.Equal(t, 1, ack.acks)

	orders, err := p.orderService.GetOrdersByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, domain.OrderStatusPending, orders[0].Status)
	require.InDelta(t, 149.97, orders[0].Total.Amount, 0.001)

	// Создание заказа публикует OrderCreated
	require.Len(t, p.publisher.published, 2)
	orderCreated, ok := p.publisher.published[1].message.(event.OrderCreatedEvent)
	require.True(t, ok)
	require.Equal(t, "order.events", p.publisher.published[1].exchange)
	require.Equal(t, "order.created", p.publisher.published[1].routingKey)
	require.Equal(t, orders[0].ID, orderCreated.OrderID)

	// Stock-deduction consumer списывает сток, конвертируя резерв
	stockDeduction := NewStockDeductionConsumer(logger, nil, testRoute(), fastRetry(), DeadLetterConfig{}, p.products, p.dispatcher)
	ack = p.deliver(t, stockDeduction, orderCreated)
	require.Equal(t, 1, ack.acks)

	updated, err := p.products.GetByID(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 7, updated.Stock.Quantity)
	require.Equal(t, 0, updated.Stock.Reserved)

	// Cart-clearing consumer удаляет корзину
	cartClearing := NewCartClearingConsumer(logger, nil, testRoute(), fastRetry(), DeadLetterConfig{}, p.registry)
	ack = p.deliver(t, cartClearing, orderCreated)
	require.Equal(t, 1, ack.acks)

	_, err = p.cartService.GetCart(ctx, "user-1")
	require.ErrorIs(t, err, service.ErrCartNotFound)
}

func TestCartClearingConsumer_AbsentCartIsSuccess(t *testing.T) {
	p := newPipeline(t)

	consumer := NewCartClearingConsumer(zap.NewNop(), nil, testRoute(), fastRetry(), DeadLetterConfig{}, p.registry)
	ack := p.deliver(t, consumer, event.OrderCreatedEvent{
		EventID: "evt-1",
		OrderID: "order-1",
		UserID:  "user-without-cart",
	})

	// Отсутствие корзины не считается сбоем
	require.Equal(t, 1, ack.acks)
	require.Equal(t, 0, ack.nacks)
}

func TestStockDeductionConsumer_AggregatesFailures(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	scarce, err := p.productService.CreateProduct(ctx, "Rare Item", domain.Money{Amount: 5, Currency: "USD"}, 1)
	require.NoError(t, err)
	plenty, err := p.productService.CreateProduct(ctx, "Common Item", domain.Money{Amount: 2, Currency: "USD"}, 100)
	require.NoError(t, err)

	// Одна попытка: проверяем только исход, без retry
	consumer := NewStockDeductionConsumer(zap.NewNop(), nil, testRoute(),
		RetryConfig{MaxAttempts: 1, BackoffBase: 1 * time.Millisecond}, DeadLetterConfig{}, p.products, p.dispatcher)

	ack := p.deliver(t, consumer, event.OrderCreatedEvent{
		EventID: "evt-1",
		OrderID: "order-1",
		UserID:  "user-1",
		Items: []event.LineItem{
			{ProductID: "missing-product", Quantity: 1},
			{ProductID: scarce.ID, Quantity: 5},
			{ProductID: plenty.ID, Quantity: 10},
		},
	})

	// Сбои по отдельным позициям не останавливают обработку остальных:
	// сообщение отклоняется целиком, но валидная позиция уже списана
	require.Equal(t, 0, ack.acks)
	require.Equal(t, 1, ack.nacks)
	require.Equal(t, []bool{false}, ack.nackRequeue)

	updatedScarce, err := p.products.GetByID(ctx, scarce.ID)
	require.NoError(t, err)
	require.Equal(t, 1, updatedScarce.Stock.Quantity)

	updatedPlenty, err := p.products.GetByID(ctx, plenty.ID)
	require.NoError(t, err)
	require.Equal(t, 90, updatedPlenty.Stock.Quantity)
}

func TestStockDeductionConsumer_RespectsReservedStock(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	// quantity=3, из них 2 зарезервированы под чужую корзину: available=1
	product, err := p.productService.CreateProduct(ctx, "Keyboard", domain.Money{Amount: 49.99, Currency: "USD"}, 3)
	require.NoError(t, err)
	_, err = p.cartService.AddItem(ctx, "user-2", product.ID, 2)
	require.NoError(t, err)

	consumer := NewStockDeductionConsumer(zap.NewNop(), nil, testRoute(),
		RetryConfig{MaxAttempts: 1, BackoffBase: 1 * time.Millisecond}, DeadLetterConfig{}, p.products, p.dispatcher)

	ack := p.deliver(t, consumer, event.OrderCreatedEvent{
		EventID: "evt-1",
		OrderID: "order-1",
		UserID:  "user-1",
		Items:   []event.LineItem{{ProductID: product.ID, Quantity: 2}},
	})

	// Зарезервированный чужой корзиной сток списывать нельзя:
	// позиция фиксируется как сбой, сток не меняется
	require.Equal(t, 0, ack.acks)
	require.Equal(t, 1, ack.nacks)
	require.Equal(t, []bool{false}, ack.nackRequeue)

	stored, err := p.products.GetByID(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.Stock.Quantity)
	require.Equal(t, 2, stored.Stock.Reserved)
}

func TestOrderCreationConsumer_RetriesOnFailure(t *testing.T) {
	// Пустой registry: CreateOrderCommand без handler - каждая попытка падает
	registry := dispatch.NewRegistry()
	consumer := NewOrderCreationConsumer(zap.NewNop(), nil, testRoute(), fastRetry(), DeadLetterConfig{}, registry)

	body, err := json.Marshal(event.CartCheckedOutEvent{
		EventID: "evt-1",
		CartID:  "cart-1",
		UserID:  "user-1",
		Items:   []event.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: 1, Currency: "USD"}},
	})
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body})

	require.Equal(t, 0, ack.acks)
	require.Equal(t, 1, ack.nacks)
	require.Equal(t, []bool{false}, ack.nackRequeue)
}
