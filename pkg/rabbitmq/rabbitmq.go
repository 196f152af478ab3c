package rabbitmq

import (
	"github.com/pkg/errors"
	"github.com/streadway/amqp"

	"infoset_conversion/config"
)

// Initialize new RabbitMQ connection
func NewRabbitMQConn(cfg config.RMQ) (*amqp.Connection, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is not configured")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "amqp.Dial")
	}
	return conn, nil
}
