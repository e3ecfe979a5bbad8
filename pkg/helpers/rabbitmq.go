package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/accessedu/portal-auth/pkg/mailer"
)

var ErrPublishNacked = errors.New("amqp: broker rejected publish")

// DeclareEmailQueue declares the durable queue shared by the API server and
// cmd/email_worker. Both sides must agree on its arguments.
func DeclareEmailQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}

// RabbitPublisher is the mailer.Dispatcher used when RABBITMQ_URL is set.
// The channel runs in confirm mode, so Dispatch returns only once the
// broker has taken responsibility for the job.
type RabbitPublisher struct {
	conn  *amqp.Connection
	mu    sync.Mutex // one in-flight publish per channel
	ch    *amqp.Channel
	queue string
}

func NewRabbitPublisher(url, queue string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err == nil {
		err = DeclareEmailQueue(ch, queue)
	}
	if err == nil {
		err = ch.Confirm(false)
	}
	if err != nil {
		if ch != nil {
			_ = ch.Close()
		}
		_ = conn.Close()
		return nil, fmt.Errorf("amqp setup %s: %w", queue, err)
	}
	return &RabbitPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *RabbitPublisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Dispatch queues an email job for the worker and waits for the broker ack.
func (p *RabbitPublisher) Dispatch(ctx context.Context, job mailer.EmailJob) error {
	job.Normalize()
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	conf, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         job.Template,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", job.Template, err)
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", job.Template, err)
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}
