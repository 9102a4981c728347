package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Route - статическая привязка consumer к топологии брокера
type Route struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

// RetryConfig - параметры retry машины consumer
type RetryConfig struct {
	// MaxAttempts - сколько всего попыток обработки (включая первую)
	MaxAttempts int
	// BackoffBase - задержка перед второй попыткой; дальше растёт x2 без jitter
	BackoffBase time.Duration
}

// DeadLetterConfig управляет dead-letter exchange для очереди consumer.
// По умолчанию выключен: сообщение, исчерпавшее retry, отбрасывается
// (nack без requeue). С включённым DLX такие сообщения попадают
// в парковочную очередь "<queue>.dlq" для ручного разбора.
type DeadLetterConfig struct {
	Enabled  bool
	Exchange string
}

// Consumer - generic движок "подписаться на очередь, обработать с retry,
// подтвердить или отклонить". Конкретные consumers собираются через
// NewConsumer: роутинг и типизированный processing callback передаются
// параметрами, наследования нет.
type Consumer struct {
	logger   *zap.Logger
	channels ChannelFactory
	route    Route
	retry    RetryConfig
	dlx      DeadLetterConfig

	decode  func(body []byte) (any, error)
	process func(ctx context.Context, msg any) error

	mu          sync.Mutex
	ch          Channel
	consumerTag string
	closed      bool
	loopDone    chan struct{}
}

// NewConsumer создаёт consumer для событий типа T.
// process вызывается только для успешно декодированных сообщений.
func NewConsumer[T any](
	logger *zap.Logger,
	channels ChannelFactory,
	route Route,
	retry RetryConfig,
	dlx DeadLetterConfig,
	process func(ctx context.Context, msg T) error,
) *Consumer {
	// Safety defaults на случай кривого конфига
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.BackoffBase <= 0 {
		retry.BackoffBase = 1 * time.Second
	}

	return &Consumer{
		logger:   logger.With(zap.String("queue", route.Queue)),
		channels: channels,
		route:    route,
		retry:    retry,
		dlx:      dlx,
		decode: func(body []byte) (any, error) {
			var msg T
			if err := json.Unmarshal(body, &msg); err != nil {
				return nil, err
			}
			return msg, nil
		},
		process: func(ctx context.Context, msg any) error {
			return process(ctx, msg.(T))
		},
	}
}

// StartConsuming декларирует топологию (exchange, очередь, binding),
// ставит prefetch 1 и запускает цикл доставки с ручным acknowledgment
func (c *Consumer) StartConsuming(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("consumer for queue %s is closed", c.route.Queue)
	}
	if c.consumerTag != "" {
		return fmt.Errorf("consumer for queue %s is already running", c.route.Queue)
	}

	ch, err := c.channels.CreateChannel()
	if err != nil {
		c.logger.Error("failed to open channel for consuming", zap.Error(err))
		return err
	}

	if err := c.setupTopology(ch); err != nil {
		ch.Close()
		return err
	}

	// prefetch 1: одно сообщение in-flight, обработка строго по порядку доставки
	if err := ch.Qos(1, 0, false); err != nil {
		c.logger.Error("failed to set qos", zap.Error(err))
		ch.Close()
		return err
	}

	consumerTag := c.route.Queue + "." + uuid.New().String()
	deliveries, err := ch.Consume(c.route.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		c.logger.Error("failed to start consuming", zap.Error(err))
		ch.Close()
		return err
	}

	c.ch = ch
	c.consumerTag = consumerTag

	done := make(chan struct{})
	c.loopDone = done
	go func() {
		defer close(done)
		c.deliveryLoop(ctx, deliveries)
	}()

	c.logger.Info("started consuming",
		zap.String("exchange", c.route.Exchange),
		zap.String("routing_key", c.route.RoutingKey),
		zap.String("consumer_tag", consumerTag),
		zap.Int("max_attempts", c.retry.MaxAttempts),
		zap.Duration("backoff_base", c.retry.BackoffBase),
		zap.Bool("dead_letter_enabled", c.dlx.Enabled),
	)
	return nil
}

// setupTopology декларирует exchange, очередь и binding.
// Все декларации идемпотентны.
func (c *Consumer) setupTopology(ch Channel) error {
	if err := ch.ExchangeDeclare(c.route.Exchange, "topic", true, false, false, false, nil); err != nil {
		c.logger.Error("failed to declare exchange", zap.Error(err), zap.String("exchange", c.route.Exchange))
		return err
	}

	var queueArgs amqp.Table
	if c.dlx.Enabled {
		// Парковочная очередь для сообщений, отклонённых без requeue
		if err := ch.ExchangeDeclare(c.dlx.Exchange, "topic", true, false, false, false, nil); err != nil {
			c.logger.Error("failed to declare dead-letter exchange", zap.Error(err), zap.String("exchange", c.dlx.Exchange))
			return err
		}
		dlqName := c.route.Queue + ".dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			c.logger.Error("failed to declare dead-letter queue", zap.Error(err), zap.String("dlq", dlqName))
			return err
		}
		if err := ch.QueueBind(dlqName, "#", c.dlx.Exchange, false, nil); err != nil {
			c.logger.Error("failed to bind dead-letter queue", zap.Error(err), zap.String("dlq", dlqName))
			return err
		}
		queueArgs = amqp.Table{"x-dead-letter-exchange": c.dlx.Exchange}
	}

	if _, err := ch.QueueDeclare(c.route.Queue, true, false, false, false, queueArgs); err != nil {
		c.logger.Error("failed to declare queue", zap.Error(err))
		return err
	}

	if err := ch.QueueBind(c.route.Queue, c.route.RoutingKey, c.route.Exchange, false, nil); err != nil {
		c.logger.Error("failed to bind queue", zap.Error(err))
		return err
	}
	return nil
}

// deliveryLoop обрабатывает доставки последовательно до закрытия канала
// доставок (Cancel/Close) или отмены контекста
func (c *Consumer) deliveryLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		if ctx.Err() != nil {
			c.logger.Info("consumer context cancelled, stopping delivery loop")
			return
		}
		c.handleDelivery(ctx, d)
	}
	c.logger.Info("delivery channel closed, consumer loop finished")
}

// handleDelivery - ack/nack машина для одного сообщения
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	messageID := d.MessageId
	if messageID == "" {
		messageID = "unknown"
	}

	msg, err := c.decode(d.Body)
	if err != nil {
		// Malformed payload: retry бессмысленен, processing не вызывается
		c.logger.Error("failed to decode message, dropping",
			zap.Error(err),
			zap.String("message_id", messageID),
		)
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("failed to nack message", zap.Error(nackErr), zap.String("message_id", messageID))
		}
		return
	}

	c.logger.Info("received message", zap.String("message_id", messageID))

	if c.processWithRetry(ctx, msg, messageID) {
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", zap.Error(ackErr), zap.String("message_id", messageID))
			return
		}
		c.logger.Info("message processed successfully", zap.String("message_id", messageID))
		return
	}

	// Попытки исчерпаны: nack без requeue. Без DLX сообщение теряется.
	if nackErr := d.Nack(false, false); nackErr != nil {
		c.logger.Error("failed to nack message", zap.Error(nackErr), zap.String("message_id", messageID))
		return
	}
	c.logger.Error("failed to process message after all retries, dropping",
		zap.String("message_id", messageID),
		zap.Int("max_attempts", c.retry.MaxAttempts),
		zap.Bool("dead_letter_enabled", c.dlx.Enabled),
	)
}

// processWithRetry выполняет processing callback с экспоненциальным backoff:
// 1s, 2s, ... (base * 2^(attempt-2)). Возвращает false при исчерпании попыток.
func (c *Consumer) processWithRetry(ctx context.Context, msg any, messageID string) bool {
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.retry.BackoffBase * time.Duration(1<<uint(attempt-2))
			c.logger.Info("retrying message",
				zap.String("message_id", messageID),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.retry.MaxAttempts),
				zap.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		}

		err := c.process(ctx, msg)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("message processed successfully after retry",
					zap.String("message_id", messageID),
					zap.Int("attempt", attempt),
				)
			}
			return true
		}

		lastErr = err
		c.logger.Warn("failed to process message",
			zap.Error(err),
			zap.String("message_id", messageID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.retry.MaxAttempts),
		)
	}

	c.logger.Error("exhausted all retry attempts",
		zap.Error(lastErr),
		zap.String("message_id", messageID),
		zap.Int("max_attempts", c.retry.MaxAttempts),
	)
	return false
}

// StopConsuming отменяет подписку на брокере по сохранённому consumer tag.
// Безопасен при уже остановленном consumer (no-op). Текущее сообщение
// дорабатывается, насильной отмены обработки нет.
func (c *Consumer) StopConsuming() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil || c.consumerTag == "" {
		return nil
	}

	if err := c.ch.Cancel(c.consumerTag, false); err != nil {
		c.logger.Error("error while cancelling consumer", zap.Error(err))
		return err
	}

	c.logger.Info("stopped consuming", zap.String("consumer_tag", c.consumerTag))
	c.consumerTag = ""
	return nil
}

// Close останавливает подписку, дожидается in-flight сообщения
// и закрывает канал. Идемпотентен.
func (c *Consumer) Close() error {
	if err := c.StopConsuming(); err != nil {
		return err
	}

	// Cancel закрывает канал доставок; цикл дорабатывает текущее
	// сообщение и завершается
	c.mu.Lock()
	done := c.loopDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			c.logger.Error("error while closing consumer channel", zap.Error(err))
			return err
		}
		c.ch = nil
	}
	return nil
}
