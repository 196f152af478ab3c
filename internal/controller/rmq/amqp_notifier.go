package rmq

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/streadway/amqp"

	"infoset_conversion/config"
	"infoset_conversion/entity"
	"infoset_conversion/pkg/logger"
)

const subjectHeader = "subject"

// AMQPNotifier publishes transform alerts to the alert exchange.
type AMQPNotifier struct {
	mu         sync.Mutex
	amqpChan   Channel
	exchange   string
	routingKey string
	l          logger.Interface
}

var _ entity.Notifier = (*AMQPNotifier)(nil)

func NewAMQPNotifier(conn *amqp.Connection, cfg config.RMQ, l logger.Interface) (*AMQPNotifier, error) {
	amqpChan, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "amqpn.amqpConn.Channel")
	}
	return newAMQPNotifier(amqpChan, cfg, l)
}

func newAMQPNotifier(ch Channel, cfg config.RMQ, l logger.Interface) (*AMQPNotifier, error) {
	if err := declareExchange(ch, cfg.AlertExchange); err != nil {
		return nil, err
	}
	return &AMQPNotifier{amqpChan: ch, exchange: cfg.AlertExchange, routingKey: cfg.AlertRoutingKey, l: l}, nil
}

func (n *AMQPNotifier) Notify(_ context.Context, subject, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.l.Info("Publishing alert Exchange: %s, RoutingKey: %s", n.exchange, n.routingKey)
	err := n.amqpChan.Publish(
		n.exchange,
		n.routingKey,
		publishMandatory,
		publishImmediate,
		amqp.Publishing{
			Headers:      amqp.Table{subjectHeader: subject},
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.New().String(),
			Timestamp:    time.Now(),
			Body:         []byte(message),
		},
	)
	if err != nil {
		return errors.Wrap(err, "ch.Publish")
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	return n.amqpChan.Close()
}
