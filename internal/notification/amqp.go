package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultAMQPQueue = "order_notifications"

func amqpConnect(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return conn, ch, nil
}

// confirmation is the broker's answer to one publish.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type publishFunc func(ctx context.Context, msg amqp.Publishing) (confirmation, error)

// AMQPPublisher publishes events to a durable RabbitMQ queue and waits for the
// broker's confirm of that publish, so an event accepted here survives an API
// restart.
type AMQPPublisher struct {
	conn           *amqp.Connection
	ch             *amqp.Channel
	queue          string
	publish        publishFunc
	confirmTimeout time.Duration
}

func DialAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	if queue == "" {
		queue = DefaultAMQPQueue
	}
	conn, ch, err := amqpConnect(url, queue)
	if err != nil {
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp confirm mode: %w", err)
	}

	publish := func(ctx context.Context, msg amqp.Publishing) (confirmation, error) {
		deferred, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
		if err != nil {
			return nil, err
		}
		if deferred == nil {
			return nil, errors.New("channel is not in confirm mode")
		}
		return deferred, nil
	}

	log.Printf("[NOTIFY] [INFO] publishing events to amqp queue %s", queue)
	return newAMQPPublisher(publish, queue, conn, ch), nil
}

func newAMQPPublisher(publish publishFunc, queue string, conn *amqp.Connection, ch *amqp.Channel) *AMQPPublisher {
	return &AMQPPublisher{
		conn:           conn,
		ch:             ch,
		queue:          queue,
		publish:        publish,
		confirmTimeout: 5 * time.Second,
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	confirm, err := p.publish(ctx, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    event.ID,
		Type:         string(event.Kind),
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("amqp confirm for %s: %w", event.ID, err)
	}
	if !acked {
		return errors.New("amqp publish nacked by broker")
	}
	return nil
}

func (p *AMQPPublisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// ConsumeAMQP hands every queued event to handler until ctx is cancelled or
// the connection drops. Undecodable messages are rejected without requeue.
func ConsumeAMQP(ctx context.Context, url, queue string, prefetch int, handler Handler) error {
	if queue == "" {
		queue = DefaultAMQPQueue
	}
	conn, ch, err := amqpConnect(url, queue)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()

	if prefetch <= 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "notifier", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	log.Printf("[NOTIFY] [INFO] consuming amqp queue %s", queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			handleDelivery(ctx, msg, handler)
		}
	}
}

func handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Printf("[NOTIFY] [ERROR] dropping undecodable message %s: %v", msg.MessageId, err)
		_ = msg.Nack(false, false)
		return
	}

	handler(ctx, event)

	if err := msg.Ack(false); err != nil {
		log.Printf("[NOTIFY] [ERROR] ack failed for %s: %v", msg.MessageId, err)
	}
}
