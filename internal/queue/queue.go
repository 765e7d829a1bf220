// internal/queue/queue.go
package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
)

// TopicCampaignDispatches carries wake events for the send worker. The jobs
// themselves live in the database; the event only tells the worker to sweep
// now instead of waiting for the next poll tick.
const TopicCampaignDispatches = "campaign_dispatches"

// DispatchEvent is the payload published on TopicCampaignDispatches.
type DispatchEvent struct {
	CampaignID int `json:"campaign_id"`
}

// Queue is the publish side of the broker.
type Queue interface {
	Publish(topic string, payload any) error
	Close() error
}

// AMQPQueue is the RabbitMQ-backed queue.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, declared: map[string]bool{}}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Wake consumes the topic and signals on the returned channel whenever a
// message arrives. The channel has a buffer of one; bursts collapse into a
// single pending wake, which is all a sweeping worker needs.
func (q *AMQPQueue) Wake(topic string) (<-chan struct{}, error) {
	if err := q.declare(topic); err != nil {
		return nil, err
	}
	msgs, err := q.ch.Consume(topic, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", topic, err)
	}
	wake := make(chan struct{}, 1)
	go func() {
		for range msgs {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
		close(wake)
	}()
	return wake, nil
}

func (q *AMQPQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}

// InMemoryQueue fans published payloads out to subscribed handlers
// synchronously. Used in tests and single-process setups.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{handlers: make(map[string][]func(payload any) error)}
}

func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(payload); err != nil {
			return err
		}
	}
	return nil
}

func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
}

// Wake mirrors AMQPQueue.Wake for single-process setups.
func (q *InMemoryQueue) Wake(topic string) <-chan struct{} {
	wake := make(chan struct{}, 1)
	q.Subscribe(topic, func(any) error {
		select {
		case wake <- struct{}{}:
		default:
		}
		return nil
	})
	return wake
}

func (q *InMemoryQueue) Close() error { return nil }

var (
	_ Queue = (*AMQPQueue)(nil)
	_ Queue = (*InMemoryQueue)(nil)
)
