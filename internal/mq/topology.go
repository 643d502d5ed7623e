package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange - тип для имени обменника.
type Exchange string

// Queue - тип для имени очереди.
type Queue string

// RoutingKey - тип для ключа маршрутизации.
type RoutingKey string

// Exchanges - имена обменников.
const (
	ExchangePlans Exchange = "portfolium.plans"
	ExchangeDLQ   Exchange = "portfolium.dlq"
)

// Queues - имена очередей.
const (
	QueuePlansPending  Queue = "plans.pending"
	QueuePlansFinished Queue = "plans.finished"
	QueueDLQPlans      Queue = "dlq.plans"
)

// Routing keys.
const (
	RoutingKeyPending  RoutingKey = "pending"
	RoutingKeyFinished RoutingKey = "finished"
	RoutingKeyDLQPlans RoutingKey = "plans"
)

type queueSpec struct {
	name     Queue
	exchange Exchange
	key      RoutingKey
	args     amqp.Table
}

// topology - все очереди и их привязки.
var topology = []queueSpec{
	// plans.pending: сообщения, которые worker не смог обработать, уходят в DLQ
	{QueuePlansPending, ExchangePlans, RoutingKeyPending, amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQPlans),
	}},
	// plans.finished - для внешних подписчиков, внутри сервиса не читается
	{QueuePlansFinished, ExchangePlans, RoutingKeyFinished, nil},
	{QueueDLQPlans, ExchangeDLQ, RoutingKeyDLQPlans, nil},
}

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangePlans, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"direct",   // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		for _, q := range topology {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}

			if err := ch.QueueBind(string(q.name), string(q.key), string(q.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q.name, q.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Portfolium RabbitMQ Topology:

    portfolium.plans (direct)
    ├── plans.pending [routing: pending]
    │       Consumer: Worker
    │       DLQ: dlq.plans
    └── plans.finished [routing: finished]
            External subscribers

    portfolium.dlq (direct)
    └── dlq.plans [routing: plans]
            Manual processing
  `
}
