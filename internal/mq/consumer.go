package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение. Ошибка означает nack.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery - доставленное сообщение.
type Delivery struct {
	Message Message

	// Redelivered - сообщение уже доставлялось и не было подтверждено.
	Redelivered bool
}

// Consumer читает одну очередь с ручным подтверждением.
//
// Сообщение, которое не удалось разобрать, сразу уходит в DLQ.
// Ошибка обработчика возвращает сообщение в очередь один раз (если
// включён Requeue); повторная ошибка отправляет его в DLQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int
	requeue  bool

	cancelFunc context.CancelFunc
}

// ConsumerConfig - конфигурация consumer.
type ConsumerConfig struct {
	Queue   Queue
	Handler Handler

	// Prefetch - сообщений без подтверждения на канал (default: 1).
	Prefetch int

	// Requeue - вернуть сообщение в очередь при первой ошибке обработчика.
	Requeue bool
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
		requeue:  cfg.Requeue,
	}
}

// Start читает очередь до отмены ctx или Stop.
// После разрыва соединения чтение возобновляется автоматически.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		// Подписываемся заранее, чтобы не пропустить переподключение
		reconnected := c.conn.Reconnected()

		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
			if ctx.Err() == nil {
				c.logger.Warn("deliveries channel closed, waiting for reconnect")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnected:
		}
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue),
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}
	return deliveries, nil
}

// drain обрабатывает сообщения, пока канал доставки открыт.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			c.settle(raw, c.handle(ctx, raw))
		}
	}
}

// ackMode - чем закончилась обработка сообщения.
type ackMode int

const (
	ack ackMode = iota
	requeue
	deadLetter
)

func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) ackMode {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("malformed message", "error", err, "body", string(raw.Body))
		return deadLetter
	}

	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)
	logger.Debug("received message", "redelivered", raw.Redelivered)

	if err := c.handler(ctx, &Delivery{Message: msg, Redelivered: raw.Redelivered}); err != nil {
		if c.requeue && !raw.Redelivered {
			logger.Warn("handler failed, requeueing", "error", err)
			return requeue
		}
		logger.Error("handler failed, dead-lettering", "error", err)
		return deadLetter
	}
	return ack
}

func (c *Consumer) settle(raw amqp.Delivery, mode ackMode) {
	var err error
	switch mode {
	case ack:
		err = raw.Ack(false)
	case requeue:
		err = raw.Nack(false, true)
	case deadLetter:
		err = raw.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("failed to settle delivery", "delivery_tag", raw.DeliveryTag, "error", err)
	}
}

// ParsePayload декодирует payload сообщения в T.
// После json.Unmarshal конверта payload хранится как map, поэтому
// он кодируется повторно.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return result, nil
}
