package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/shestoi/product-management/internal/domain"
	"github.com/shestoi/product-management/internal/event"
)

// EventPublisher публикует сообщение в exchange под routing key.
// Реализуется rabbitmq.Publisher; в тестах подставляется fake.
type EventPublisher interface {
	Publish(ctx context.Context, message any, exchange, routingKey string) error
}

// EventHandlerFunc обрабатывает одно доменное событие
type EventHandlerFunc func(ctx context.Context, e domain.Event) error

// EventDispatcher доставляет доменные события подписчикам внутри процесса.
// Application-слой выгребает pending-события агрегата после сохранения
// (PullEvents) и отдаёт их сюда; подписчики решают, что из этого уходит
// в брокер, а что только логируется.
type EventDispatcher struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]EventHandlerFunc
}

// NewEventDispatcher создаёт dispatcher без подписчиков
func NewEventDispatcher(logger *zap.Logger) *EventDispatcher {
	return &EventDispatcher{
		logger:   logger,
		handlers: make(map[string][]EventHandlerFunc),
	}
}

// Subscribe добавляет подписчика на событие с указанным именем
func (d *EventDispatcher) Subscribe(eventName string, h EventHandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventName] = append(d.handlers[eventName], h)
}

// Dispatch доставляет события всем подписчикам по порядку. Ошибка одного
// подписчика не останавливает остальных; все ошибки собираются в одну.
func (d *EventDispatcher) Dispatch(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, e := range events {
		d.logger.Debug("dispatching domain event", zap.String("event", e.EventName()))

		d.mu.RLock()
		handlers := d.handlers[e.EventName()]
		d.mu.RUnlock()

		for _, h := range handlers {
			if err := h(ctx, e); err != nil {
				d.logger.Error("event handler failed",
					zap.Error(err),
					zap.String("event", e.EventName()),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// IntegrationRoutes - адреса публикации интеграционных событий
type IntegrationRoutes struct {
	CartEventsExchange  string
	CartCheckedOutKey   string
	OrderEventsExchange string
	OrderCreatedKey     string
}

// SubscribeIntegrationEvents подписывает publisher на события, пересекающие
// границу процесса: CartCheckedOut и OrderCreated маппятся в интеграционные
// контракты и уходят в брокер. Остальные доменные события наружу не публикуются.
func SubscribeIntegrationEvents(d *EventDispatcher, publisher EventPublisher, routes IntegrationRoutes) {
	d.Subscribe(domain.CartCheckedOut{}.EventName(), func(ctx context.Context, e domain.Event) error {
		checkedOut, ok := e.(domain.CartCheckedOut)
		if !ok {
			return nil
		}
		return publisher.Publish(ctx, event.NewCartCheckedOutEvent(checkedOut), routes.CartEventsExchange, routes.CartCheckedOutKey)
	})

	d.Subscribe(domain.OrderCreated{}.EventName(), func(ctx context.Context, e domain.Event) error {
		created, ok := e.(domain.OrderCreated)
		if !ok {
			return nil
		}
		return publisher.Publish(ctx, event.NewOrderCreatedEvent(created), routes.OrderEventsExchange, routes.OrderCreatedKey)
	})
}
