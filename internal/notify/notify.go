// Package notify publishes task status updates to RabbitMQ so other
// processes can follow a run.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/streadway/amqp"

	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/generation"
	"github.com/muhammadolammi/coverletter/internal/logger"
)

// Exchange is the topic exchange updates are published to.
const Exchange = "generation_updates"

// Update is the message body.
type Update struct {
	RunID     string    `json:"run_id"`
	Task      string    `json:"task"`
	Status    string    `json:"status"`
	Previous  string    `json:"previous"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishFunc sends one message body under routingKey.
type PublishFunc func(routingKey string, body []byte) error

// Publisher is a generation.Observer that turns transitions into messages.
type Publisher struct {
	publish PublishFunc
	conn    *amqp.Connection
}

// Dial connects to RabbitMQ and declares the exchange.
func Dial(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to rabbitmq channel: %w", err)
	}
	defer ch.Close()
	err = ch.ExchangeDeclare(
		Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := &Publisher{conn: conn}
	p.publish = p.publishOnConn
	return p, nil
}

// NewPublisher builds a Publisher around an arbitrary send function.
func NewPublisher(publish PublishFunc) *Publisher {
	return &Publisher{publish: publish}
}

// Close releases the connection, if any.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// OnTransition implements generation.Observer. Publish failures are logged,
// never returned to the task.
func (p *Publisher) OnTransition(ctx context.Context, t generation.Transition) {
	body, err := sonic.Marshal(NewUpdate(t))
	if err != nil {
		logger.FromContext(ctx).Error("failed to marshal update", "error", err)
		return
	}
	if err := p.publish(RoutingKey(t), body); err != nil {
		logger.FromContext(ctx).Warn("failed to publish update", "task", t.Task, "error", err)
	}
}

// RoutingKey is run.<run id>.<task>.
func RoutingKey(t generation.Transition) string {
	return fmt.Sprintf("run.%s.%s", t.RunID, t.Task)
}

// NewUpdate describes a transition for subscribers.
func NewUpdate(t generation.Transition) Update {
	u := Update{
		RunID:     t.RunID.String(),
		Task:      t.Task,
		Status:    string(t.To),
		Previous:  string(t.From),
		Timestamp: t.At,
	}
	switch t.To {
	case generation.StateDispatched:
		u.Message = "generation started"
	case generation.StateStreaming:
		u.Message = "streaming"
	case generation.StateCompleted:
		u.Message = "generation completed"
	default:
		u.Message = "generation failed"
	}
	if t.Err != nil {
		u.Code = domain.Code(t.Err)
		u.Message = domain.UserMessage(t.Err)
	}
	return u
}

func (p *Publisher) publishOnConn(routingKey string, body []byte) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.Publish(
		Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}
