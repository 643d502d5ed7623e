package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNoChannel - канал ещё не открыт или соединение переподключается.
var ErrNoChannel = errors.New("no channel available")

// Границы задержки между попытками переподключения.
const (
	reconnectMinDelay = time.Second
	reconnectMaxDelay = 30 * time.Second
)

// ConnState - состояние соединения.
type ConnState string

const (
	ConnStateConnected    ConnState = "connected"
	ConnStateReconnecting ConnState = "reconnecting"
	ConnStateClosed       ConnState = "closed"
)

// Connection - AMQP соединение с одним общим каналом и автоматическим
// переподключением. Publisher и Consumer получают канал через WithChannel
// и ждут восстановления через Reconnected.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	state   ConnState

	// reconnected закрывается после каждого успешного переподключения
	// и заменяется новым.
	reconnected chan struct{}

	done chan struct{}
}

// NewConnection подключается к RabbitMQ. Первая попытка синхронная:
// при недоступном брокере возвращается ошибка.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:         url,
		logger:      logger.With("component", "amqp"),
		reconnected: make(chan struct{}),
		done:        make(chan struct{}),
	}

	if err := c.dial(); err != nil {
		return nil, err
	}

	go c.watch()

	return c, nil
}

// dial открывает соединение и канал.
func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.state = ConnStateConnected
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// watch ждёт разрыва соединения и восстанавливает его.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.done:
			return
		case err := <-closeCh:
			c.logger.Warn("connection lost", "error", err)
		}

		c.mu.Lock()
		if c.state == ConnStateClosed {
			c.mu.Unlock()
			return
		}
		c.channel = nil
		c.state = ConnStateReconnecting
		c.mu.Unlock()

		if !c.redial() {
			return
		}
	}
}

// redial переподключается с экспоненциальной задержкой.
// Возвращает false, если соединение закрыто через Close.
func (c *Connection) redial() bool {
	delay := reconnectMinDelay
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-c.done:
			return false
		case <-timer.C:
		}

		if err := c.dial(); err != nil {
			delay = min(delay*2, reconnectMaxDelay)
			c.logger.Warn("reconnect failed", "attempt", attempt, "retry_in", delay, "error", err)
			timer.Reset(delay)
			continue
		}

		c.mu.Lock()
		close(c.reconnected)
		c.reconnected = make(chan struct{})
		c.mu.Unlock()

		c.logger.Info("reconnected to RabbitMQ", "attempts", attempt)
		return true
	}
}

// Reconnected возвращает канал, который закроется после ближайшего
// переподключения. Его могут ждать сразу несколько потребителей.
func (c *Connection) Reconnected() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnected
}

// Channel возвращает текущий AMQP канал или nil во время переподключения.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// WithChannel выполняет fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.Channel()
	if ch == nil {
		return ErrNoChannel
	}
	return fn(ch)
}

// State возвращает состояние соединения.
func (c *Connection) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close закрывает соединение и останавливает переподключение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ConnStateClosed {
		return nil
	}
	c.state = ConnStateClosed
	close(c.done)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		c.channel = nil
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}
