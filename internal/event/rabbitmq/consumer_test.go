package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAcknowledger считает ack/nack вызовы вместо реального канала
type fakeAcknowledger struct {
	mu          sync.Mutex
	acks        int
	nacks       int
	nackRequeue []bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.nackRequeue = append(f.nackRequeue, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

type testPayload struct {
	Value string `json:"value"`
}

func testRetry() RetryConfig {
	// Маленький backoff, чтобы тесты не спали секундами
	return RetryConfig{MaxAttempts: 3, BackoffBase: 1 * time.Millisecond}
}

func testRoute() Route {
	return Route{Exchange: "test.events", Queue: "test.queue", RoutingKey: "test.key"}
}

func TestConsumer_AckOnSuccess(t *testing.T) {
	calls := 0
	consumer := NewConsumer(zap.NewNop(), nil, testRoute(), testRetry(), DeadLetterConfig{},
		func(ctx context.Context, msg testPayload) error {
			calls++
			require.Equal(t, "hello", msg.Value)
			return nil
		})

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"value":"hello"}`),
	})

	require.Equal(t, 1, calls)
	require.Equal(t, 1, ack.acks)
	require.Equal(t, 0, ack.nacks)
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	consumer := NewConsumer(zap.NewNop(), nil, testRoute(), testRetry(), DeadLetterConfig{},
		func(ctx context.Context, msg testPayload) error {
			calls++
			if calls < 3 {
				return errors.New("transient failure")
			}
			return nil
		})

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"value":"x"}`),
	})

	// Две неудачи, третья попытка успешна: ack, четвёртой попытки нет
	require.Equal(t, 3, calls)
	require.Equal(t, 1, ack.acks)
	require.Equal(t, 0, ack.nacks)
}

func TestConsumer_NackAfterExhaustedRetries(t *testing.T) {
	calls := 0
	consumer := NewConsumer(zap.NewNop(), nil, testRoute(), testRetry(), DeadLetterConfig{},
		func(ctx context.Context, msg testPayload) error {
			calls++
			return errors.New("permanent failure")
		})

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"value":"x"}`),
	})

	require.Equal(t, 3, calls)
	require.Equal(t, 0, ack.acks)
	require.Equal(t, 1, ack.nacks)
	// Без requeue: повторная доставка означала бы бесконечный цикл
	require.Equal(t, []bool{false}, ack.nackRequeue)
}

func TestConsumer_MalformedPayloadNackedWithoutProcessing(t *testing.T) {
	calls := 0
	consumer := NewConsumer(zap.NewNop(), nil, testRoute(), testRetry(), DeadLetterConfig{},
		func(ctx context.Context, msg testPayload) error {
			calls++
			return nil
		})

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{not json`),
	})

	// Битый payload: handler не вызывается, retry не делается
	require.Equal(t, 0, calls)
	require.Equal(t, 0, ack.acks)
	require.Equal(t, 1, ack.nacks)
	require.Equal(t, []bool{false}, ack.nackRequeue)
}

func TestConsumer_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	consumer := NewConsumer(zap.NewNop(), nil, testRoute(),
		RetryConfig{MaxAttempts: 3, BackoffBase: 1 * time.Hour}, DeadLetterConfig{},
		func(ctx context.Context, msg testPayload) error {
			calls++
			cancel()
			return errors.New("failure")
		})

	ack := &fakeAcknowledger{}
	consumer.handleDelivery(ctx, amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"value":"x"}`),
	})

	// Отмена контекста прерывает backoff, сообщение отклоняется
	require.Equal(t, 1, calls)
	require.Equal(t, 0, ack.acks)
	require.Equal(t, 1, ack.nacks)
}

// fakeChannel записывает декларации топологии
type fakeChannel struct {
	exchanges  []string
	queues     []string
	queueArgs  map[string]amqp.Table
	bindings   map[string]string // queue -> routing key
	qosApplied bool
	consuming  string
	cancelled  string
	closed     bool
	deliveries chan amqp.Delivery
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		queueArgs:  make(map[string]amqp.Table),
		bindings:   make(map[string]string),
		deliveries: make(chan amqp.Delivery),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.exchanges = append(f.exchanges, name)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.queues = append(f.queues, name)
	f.queueArgs[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.bindings[name] = key
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.qosApplied = prefetchCount == 1
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.consuming = consumer
	return f.deliveries, nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error {
	f.cancelled = consumer
	close(f.deliveries)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeChannelFactory struct {
	ch *fakeChannel
}

func (f *fakeChannelFactory) CreateChannel() (Channel, error) {
	return f.ch, nil
}

func TestConsumer_StartConsumingDeclaresTopology(t *testing.T) {
	ch := newFakeChannel()
	consumer := NewConsumer(zap.NewNop(), &fakeChannelFactory{ch: ch}, testRoute(), testRetry(), DeadLetterConfig{},
		func(ctx context.Context, msg testPayload) error { return nil })

	require.NoError(t, consumer.StartConsuming(context.Background()))

	require.Contains(t, ch.exchanges, "test.events")
	require.Contains(t, ch.queues, "test.queue")
	require.Equal(t, "test.key", ch.bindings["test.queue"])
	require.True(t, ch.qosApplied)
	require.NotEmpty(t, ch.consuming)

	// Повторный старт - ошибка
	require.Error(t, consumer.StartConsuming(context.Background()))

	require.NoError(t, consumer.Close())
	require.Equal(t, ch.consuming, ch.cancelled)
	require.True(t, ch.closed)
}

func TestConsumer_DeadLetterTopology(t *testing.T) {
	ch := newFakeChannel()
	dlx := DeadLetterConfig{Enabled: true, Exchange: "test.dlx"}
	consumer := NewConsumer(zap.NewNop(), &fakeChannelFactory{ch: ch}, testRoute(), testRetry(), dlx,
		func(ctx context.Context, msg testPayload) error { return nil })

	require.NoError(t, consumer.StartConsuming(context.Background()))
	defer consumer.Close()

	require.Contains(t, ch.exchanges, "test.dlx")
	require.Contains(t, ch.queues, "test.queue.dlq")
	require.Equal(t, "#", ch.bindings["test.queue.dlq"])
	require.Equal(t, amqp.Table{"x-dead-letter-exchange": "test.dlx"}, ch.queueArgs["test.queue"])
}

func TestConsumer_StopConsumingIdempotent(t *testing.T) {
	consumer := NewConsumer(zap.NewNop(), nil, testRoute(), testRetry(), DeadLetterConfig{},
		func(ctx context.Context, msg testPayload) error { return nil })

	// Consumer не запускался - no-op
	require.NoError(t, consumer.StopConsuming())
	require.NoError(t, consumer.Close())
	require.NoError(t, consumer.Close())
}

func TestConsumer_CloseWaitsForInFlightDelivery(t *testing.T) {
	ch := newFakeChannel()
	started := make(chan struct{})
	consumer := NewConsumer(zap.NewNop(), &fakeChannelFactory{ch: ch}, testRoute(), testRetry(), DeadLetterConfig{},
		func(ctx context.Context, msg testPayload) error {
			close(started)
			time.Sleep(50 * time.Millisecond)
			return nil
		})

	require.NoError(t, consumer.StartConsuming(context.Background()))

	ack := &fakeAcknowledger{}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte(`{"value":"x"}`)}
	<-started

	// Close обязан дождаться дообработки текущего сообщения:
	// ack уже записан к моменту возврата
	require.NoError(t, consumer.Close())
	require.Equal(t, 1, ack.acks)
}

func TestConsumer_DeliveryLoopProcessesMessages(t *testing.T) {
	ch := newFakeChannel()
	processed := make(chan string, 2)
	consumer := NewConsumer(zap.NewNop(), &fakeChannelFactory{ch: ch}, testRoute(), testRetry(), DeadLetterConfig{},
		func(ctx context.Context, msg testPayload) error {
			processed <- msg.Value
			return nil
		})

	require.NoError(t, consumer.StartConsuming(context.Background()))

	ack := &fakeAcknowledger{}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte(`{"value":"first"}`)}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte(`{"value":"second"}`)}

	require.Equal(t, "first", <-processed)
	require.Equal(t, "second", <-processed)

	require.NoError(t, consumer.Close())
	require.Equal(t, 2, ack.acks)
}
