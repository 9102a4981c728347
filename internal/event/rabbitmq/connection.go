// Package rabbitmq реализует интеграционный конвейер поверх AMQP:
// менеджер соединения, publisher и generic consumer с retry/ack машиной.
package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrConnectionDisposed - менеджер соединения уже закрыт
var ErrConnectionDisposed = errors.New("rabbitmq connection manager is disposed")

// Channel - операции AMQP-канала, используемые publisher и consumer.
// *amqp.Channel реализует интерфейс; в тестах подставляются fakes.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// ChannelFactory отдаёт свежий канал на каждого логического подписчика
// или публикацию; каналы между ними не шарятся.
type ChannelFactory interface {
	CreateChannel() (Channel, error)
}

// Connection владеет единственным соединением с брокером на процесс.
// Соединение создаётся лениво и пересоздаётся при следующем обращении,
// если брокер его закрыл (библиотека сама соединение не восстанавливает).
type Connection struct {
	logger *zap.Logger
	url    string

	mu       sync.RWMutex
	conn     *amqp.Connection
	disposed bool
}

// NewConnection создаёт менеджер соединения; самого подключения ещё не происходит
func NewConnection(logger *zap.Logger, url string) *Connection {
	return &Connection{
		logger: logger,
		url:    url,
	}
}

// GetConnection возвращает живое соединение, открывая новое при необходимости.
// Double-checked locking: быстрый путь под read lock, пересоздание под write lock.
// Ошибка подключения уходит вызывающему как есть, без retry на этом уровне.
func (c *Connection) GetConnection() (*amqp.Connection, error) {
	c.mu.RLock()
	if c.conn != nil && !c.conn.IsClosed() {
		conn := c.conn
		c.mu.RUnlock()
		return conn, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return nil, ErrConnectionDisposed
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}

	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		c.logger.Error("failed to create rabbitmq connection", zap.Error(err))
		return nil, err
	}

	c.conn = conn
	c.logger.Info("rabbitmq connection established")
	return c.conn, nil
}

// CreateChannel открывает новый канал на общем соединении
func (c *Connection) CreateChannel() (Channel, error) {
	conn, err := c.GetConnection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		c.logger.Error("failed to create rabbitmq channel", zap.Error(err))
		return nil, err
	}

	c.logger.Debug("rabbitmq channel created")
	return ch, nil
}

// Close закрывает соединение. Идемпотентен: повторные вызовы - no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return nil
	}
	c.disposed = true

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("error while closing rabbitmq connection", zap.Error(err))
			return err
		}
		c.logger.Info("rabbitmq connection closed")
	}
	return nil
}
