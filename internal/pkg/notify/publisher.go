// internal/pkg/notify/publisher.go
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
	"github.com/your-org/merchstore-backend/internal/config"
)

// CouponIssued is the message published for every coupon handed to a user.
// A downstream worker turns these into emails.
type CouponIssued struct {
	Email      string  `json:"email"`
	FirstName  string  `json:"first_name"`
	CouponCode string  `json:"coupon_code"`
	Amount     float64 `json:"amount"`
	BatchName  string  `json:"batch_name"`
	OrgID      uint    `json:"org_id"`
}

// Publisher sends notification messages to the message broker.
type Publisher interface {
	PublishCouponIssued(msg CouponIssued) error
	Close() error
}

// AMQPPublisher publishes notifications to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *logrus.Logger
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(cfg *config.Config, log *logrus.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.Notify.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to message broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Notify.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		exchange: cfg.Notify.Exchange,
		log:      log,
	}, nil
}

// PublishCouponIssued sends one coupon-issued message.
func (p *AMQPPublisher) PublishCouponIssued(msg CouponIssued) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = p.channel.Publish(
		p.exchange,
		"coupon.issued",
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.log.WithError(err).Warn("Failed to close AMQP channel")
	}
	return p.conn.Close()
}

// NoopPublisher drops every message. Used when notifications are disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishCouponIssued(CouponIssued) error { return nil }
func (NoopPublisher) Close() error                           { return nil }
