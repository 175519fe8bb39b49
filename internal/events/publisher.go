package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Publisher emits relay outcomes to RabbitMQ for downstream consumers
// (reporting, reconciliation tooling). Publishing is fire-and-forget:
// the bridge gives no delivery guarantees and a publish failure never
// fails the webhook that triggered it. When no broker URL is
// configured the publisher stays disabled and every call is a no-op.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	enabled  bool
	queue    string
	prefix   string
	declared map[string]bool
}

// NewPublisher connects to the broker. An empty URL disables
// publishing without error.
func NewPublisher(url, queue, prefix string) *Publisher {
	p := &Publisher{declared: make(map[string]bool)}
	if queue == "" {
		queue = "relay_events"
	}
	if prefix == "" {
		prefix = "ladesk"
	}
	p.queue = queue
	p.prefix = prefix

	if url == "" {
		log.Info().Msg("RABBITMQ_URL is not set. Event publishing disabled.")
		return p
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		log.Error().Err(err).Msg("Could not connect to RabbitMQ, event publishing disabled")
		return p
	}
	channel, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Could not open RabbitMQ channel, event publishing disabled")
		conn.Close()
		return p
	}

	p.conn = conn
	p.channel = channel
	p.enabled = true
	log.Info().Str("queue", queue).Str("prefix", prefix).Msg("RabbitMQ connection established")
	return p
}

func (p *Publisher) queueName() string {
	return p.prefix + "_" + p.queue
}

// Publish sends one event record. Safe on a nil or disabled publisher.
func (p *Publisher) Publish(eventType string, payload interface{}) {
	if p == nil || !p.enabled {
		return
	}

	record := map[string]interface{}{
		"event":     eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      payload,
	}
	body, err := json.Marshal(record)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("Failed to encode event record")
		return
	}

	name := p.queueName()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[name] {
		if _, err := p.channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
			log.Error().Err(err).Str("queue", name).Msg("Failed to declare RabbitMQ queue")
			return
		}
		p.declared[name] = true
	}

	err = p.channel.Publish("", name, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
	if err != nil {
		log.Error().Err(err).Str("queue", name).Str("eventType", eventType).Msg("Failed to publish event")
		return
	}
	log.Debug().Str("queue", name).Str("eventType", eventType).Msg("Published event")
}

// Close shuts the broker connection down.
func (p *Publisher) Close() {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.enabled = false
}
