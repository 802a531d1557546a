// Package rabbit publishes session snapshots to a RabbitMQ topic exchange so
// other services can consume quiz events. Publishes are fire-and-forget.
package rabbit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"endurance-quiz-service/internal/domain"
)

const (
	// DefaultExchange is the topic exchange quiz events are published to.
	DefaultExchange = "quiz.events"

	stateRoutingPrefix  = "quiz.state."
	rosterRoutingPrefix = "quiz.players."
	listRoutingKey      = "quiz.list"

	publishTimeout = 5 * time.Second
)

// Broadcaster implements app.Broadcaster over an AMQP channel.
type Broadcaster struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewBroadcaster dials the broker and declares the topic exchange.
func NewBroadcaster(url, exchange string) (*Broadcaster, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	return &Broadcaster{conn: conn, channel: channel, exchange: exchange}, nil
}

func (b *Broadcaster) PublishState(quizID string, state domain.QuizState) {
	b.publish(stateRoutingPrefix+quizID, state)
}

func (b *Broadcaster) PublishRoster(quizID string, roster []domain.RosterEntry) {
	b.publish(rosterRoutingPrefix+quizID, roster)
}

func (b *Broadcaster) PublishQuizList(quizzes []domain.Quiz) {
	b.publish(listRoutingKey, quizzes)
}

func (b *Broadcaster) publish(routingKey string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("marshal %s payload: %v", routingKey, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = b.channel.PublishWithContext(ctx,
		b.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		log.Printf("publish %s: %v", routingKey, err)
	}
}

// Close releases the channel and connection.
func (b *Broadcaster) Close() error {
	if err := b.channel.Close(); err != nil {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}
