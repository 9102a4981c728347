package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher публикует одно сообщение в exchange/routing key.
// Самодостаточен: сам декларирует exchange (идемпотентно), сам открывает
// и закрывает канал на каждую публикацию. Внутреннего retry нет -
// ошибка уходит вызывающему, решение о повторе за ним.
type Publisher struct {
	logger   *zap.Logger
	channels ChannelFactory
}

// NewPublisher создаёт publisher поверх фабрики каналов
func NewPublisher(logger *zap.Logger, channels ChannelFactory) *Publisher {
	return &Publisher{
		logger:   logger,
		channels: channels,
	}
}

// Publish сериализует сообщение в JSON (camelCase теги на контрактах)
// и публикует его durable topic exchange под указанным routing key.
// Сообщение помечается persistent, получает свежий messageId и timestamp.
func (p *Publisher) Publish(ctx context.Context, message any, exchange, routingKey string) error {
	ch, err := p.channels.CreateChannel()
	if err != nil {
		p.logger.Error("failed to open channel for publish",
			zap.Error(err),
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
		)
		return err
	}
	defer ch.Close()

	// Декларация идемпотентна: существующий exchange с теми же параметрами - no-op
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		p.logger.Error("failed to declare exchange",
			zap.Error(err),
			zap.String("exchange", exchange),
		)
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		p.logger.Error("failed to marshal message",
			zap.Error(err),
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
		)
		return err
	}

	messageID := uuid.New().String()
	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.logger.Error("failed to publish message",
			zap.Error(err),
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
		)
		return err
	}

	p.logger.Info("message published",
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
		zap.String("message_id", messageID),
	)
	return nil
}
