package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueuePublisher hands promotions to a RabbitMQ queue so a separate worker
// does the slow CMS and email calls.
type QueuePublisher struct {
	url   string
	queue string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewQueuePublisher dials RabbitMQ and declares the durable queue.
func NewQueuePublisher(url, queue string) (*QueuePublisher, error) {
	p := &QueuePublisher{url: url, queue: queue}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *QueuePublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if _, err := declareQueue(ch, p.queue); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	p.conn, p.channel = conn, ch
	return nil
}

// NotifyPromotion publishes p as a persistent JSON message.
func (p *QueuePublisher) NotifyPromotion(ctx context.Context, promo model.Promotion) error {
	body, err := json.Marshal(promo)
	if err != nil {
		return fmt.Errorf("encode promotion: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return fmt.Errorf("%w: %w", model.ErrUpstreamUnavailable, err)
		}
	}

	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Type:         "waitlist.promoted",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: publish promotion: %w", model.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *QueuePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return q, nil
}

// Worker consumes queued promotions and runs them through a Notifier.
type Worker struct {
	url      string
	queue    string
	notifier Notifier
	logger   *log.Logger
}

// NewWorker returns a Worker delivering through n.
func NewWorker(url, queue string, n Notifier, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{url: url, queue: queue, notifier: n, logger: logger}
}

// Run consumes until ctx is cancelled or the connection drops.
func (w *Worker) Run(ctx context.Context) error {
	conn, err := amqp.Dial(w.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := declareQueue(ch, w.queue); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, w.queue, "promotion-worker", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.handle(ctx, d)
		}
	}
}

// acker is the part of amqp.Delivery the worker needs.
type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	w.process(ctx, d.Body, d.Redelivered, &d)
}

func (w *Worker) process(ctx context.Context, body []byte, redelivered bool, ack acker) {
	var p model.Promotion
	if err := json.Unmarshal(body, &p); err != nil {
		w.logger.Printf("dropping undecodable promotion message: %v", err)
		_ = ack.Nack(false, false)
		return
	}

	if err := w.notifier.NotifyPromotion(ctx, p); err != nil {
		// One retry through the broker, then give up; the seat is already confirmed.
		requeue := !redelivered
		w.logger.Printf("promotion notice failed event=%d level=%s registration=%s requeue=%t: %v",
			p.EventID, p.RideLevel, p.RegistrationID, requeue, err)
		_ = ack.Nack(false, requeue)
		return
	}
	_ = ack.Ack(false)
}
