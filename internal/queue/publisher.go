package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/contacts-auth/internal/logging"
)

// Publisher publishes EmailConfirmationRequested events. It dials the broker
// per message; confirmation requests are rare enough that a pooled
// connection is not worth its reconnect logic.
type Publisher struct {
	URL   string
	Queue string
	now   func() time.Time
}

// NewPublisher returns a publisher for the confirmation queue on url.
func NewPublisher(url string) *Publisher {
	return &Publisher{URL: url, Queue: EmailConfirmationQueue, now: time.Now}
}

// SendConfirmation publishes a persistent confirmation request.
func (p *Publisher) SendConfirmation(ctx context.Context, email, displayName, link string) error {
	ev := EmailConfirmationRequested{
		Email:       email,
		Username:    displayName,
		Link:        link,
		RequestedAt: p.now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.publish(ctx, body); err != nil {
		logging.FromContext(ctx).Error("rabbitmq: publish failed", "queue", p.Queue, "error", err)
		return err
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, body []byte) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch, p.Queue); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    p.now().UTC(),
			Body:         body,
		})
}

// declare ensures the durable queue exists. Publisher and consumer must
// declare it with identical arguments.
func declare(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return q, fmt.Errorf("queue declare: %w", err)
	}
	return q, nil
}
