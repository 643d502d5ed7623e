package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Portfolium/internal/domain"
)

// MessageType - тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypePlanPending  MessageType = "plan.pending"
	MessageTypePlanFinished MessageType = "plan.finished"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message - конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// PlanPendingPayload - запуск ожидает выполнения.
type PlanPendingPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// PlanFinishedPayload - итог завершённого запуска.
type PlanFinishedPayload struct {
	RunID       uuid.UUID          `json:"run_id"`
	Status      domain.RunStatus   `json:"status"`
	Source      string             `json:"source,omitempty"`
	Stages      int                `json:"stages"`
	FailedTasks int                `json:"failed_tasks"`
	AbortKind   domain.FailureKind `json:"abort_kind,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// NewPlanFinishedPayload собирает payload из завершённого запуска.
func NewPlanFinishedPayload(run *domain.PlanRun) PlanFinishedPayload {
	p := PlanFinishedPayload{
		RunID:  run.ID,
		Status: run.Status,
		Source: run.Source,
		Error:  run.Error,
	}
	if run.Result != nil {
		p.Stages = len(run.Result.Stages)
		for _, s := range run.Result.Stages {
			p.FailedTasks += s.Failed()
		}
		if run.Result.Abort != nil && run.Result.Abort.Failure != nil {
			p.AbortKind = run.Result.Abort.Failure.Kind
		}
	}
	return p
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishPlanPending сообщает worker'у о новом запуске.
func (p *Publisher) PublishPlanPending(ctx context.Context, runID uuid.UUID) error {
	msg := NewMessage(MessageTypePlanPending, PlanPendingPayload{RunID: runID})
	return p.Publish(ctx, ExchangePlans, RoutingKeyPending, msg)
}

// PublishPlanFinished публикует итог запуска.
func (p *Publisher) PublishPlanFinished(ctx context.Context, payload PlanFinishedPayload) error {
	msg := NewMessage(MessageTypePlanFinished, payload)
	return p.Publish(ctx, ExchangePlans, RoutingKeyFinished, msg)
}
