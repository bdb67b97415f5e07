package rabbit

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "trypie_group_events"

func NewRabbitConnection(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the durable topic exchange every group event goes through.
// Routing keys have the form <kind>.<action>.<group id>.
func DeclareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchangeName, err)
	}
	return nil
}
