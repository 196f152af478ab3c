package rmq

import (
	"context"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"infoset_conversion/config"
	"infoset_conversion/pkg/logger"
)

// EventHandler consumes one object event notification.
type EventHandler interface {
	HandleEvent(ctx context.Context, body []byte) error
}

type AMQPWorker struct {
	amqpChan Channel
	cfg      config.RMQ
	l        logger.Interface
	handler  EventHandler
	done     chan struct{}
}

// NewAMQPWorker opens a channel on conn for consuming object events.
func NewAMQPWorker(conn *amqp.Connection, cfg config.RMQ, l logger.Interface, handler EventHandler) (*AMQPWorker, error) {
	amqpChan, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "amqpw.amqpConn.Channel")
	}
	return newAMQPWorker(amqpChan, cfg, l, handler), nil
}

func newAMQPWorker(ch Channel, cfg config.RMQ, l logger.Interface, handler EventHandler) *AMQPWorker {
	return &AMQPWorker{amqpChan: ch, cfg: cfg, l: l, handler: handler, done: make(chan struct{})}
}

// SetupExchangeAndQueue create exchange and queue
func (amqpw *AMQPWorker) SetupExchangeAndQueue(exchange, queueName, bindingKey string) error {
	amqpw.l.Info("Declaring exchange: %s", exchange)
	if err := declareExchange(amqpw.amqpChan, exchange); err != nil {
		return err
	}

	queue, err := amqpw.amqpChan.QueueDeclare(
		queueName,
		queueDurable,
		queueAutoDelete,
		queueExclusive,
		queueNoWait,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "Error ch.QueueDeclare")
	}

	amqpw.l.Info("Declared queue, binding it to exchange: Queue: %v, messageCount: %v, "+
		"consumerCount: %v, exchange: %v, bindingKey: %v",
		queue.Name,
		queue.Messages,
		queue.Consumers,
		exchange,
		bindingKey,
	)

	err = amqpw.amqpChan.QueueBind(
		queue.Name,
		bindingKey,
		exchange,
		queueNoWait,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "Error ch.QueueBind")
	}
	return nil
}

func declareExchange(ch Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange,
		exchangeKind,
		exchangeDurable,
		exchangeAutoDelete,
		exchangeInternal,
		exchangeNoWait,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "Error ch.ExchangeDeclare")
	}
	return nil
}

// CloseChan Close messages chan
func (amqpw *AMQPWorker) CloseChan() error {
	if err := amqpw.amqpChan.Close(); err != nil {
		amqpw.l.Error("AMQPWorker CloseChan: %v", err)
		return err
	}
	return nil
}

// StartConsumer declares the event queue and consumes it in the
// background. Deliveries are handled until the channel closes.
func (amqpw *AMQPWorker) StartConsumer(ctx context.Context) error {
	if err := amqpw.SetupExchangeAndQueue(amqpw.cfg.Exchange, amqpw.cfg.Queue, amqpw.cfg.BindingKey); err != nil {
		return errors.Wrap(err, "SetupExchangeAndQueue")
	}
	if err := amqpw.amqpChan.Qos(prefetchCount, 0, false); err != nil {
		return errors.Wrap(err, "Error ch.Qos")
	}

	deliveries, err := amqpw.amqpChan.Consume(
		amqpw.cfg.Queue,
		"",
		consumeAutoAck,
		consumeExclusive,
		consumeNoLocal,
		consumeNoWait,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "Consume")
	}

	amqpw.l.Info("consuming object events from queue %s", amqpw.cfg.Queue)
	go func() {
		defer close(amqpw.done)
		amqpw.consume(ctx, deliveries)
	}()
	return nil
}

// Done is closed once the delivery channel is drained.
func (amqpw *AMQPWorker) Done() <-chan struct{} {
	return amqpw.done
}

// Notify reports the reason the broker closed the channel.
func (amqpw *AMQPWorker) Notify() <-chan *amqp.Error {
	return amqpw.amqpChan.NotifyClose(make(chan *amqp.Error, 1))
}

func (amqpw *AMQPWorker) consume(ctx context.Context, messages <-chan amqp.Delivery) {
	for delivery := range messages {
		amqpw.handle(ctx, delivery)
	}
}

// handle acknowledges every delivery. Transform failures are settled by
// the usecase itself and a body that is not an event would only fail again
// on redelivery.
func (amqpw *AMQPWorker) handle(ctx context.Context, delivery amqp.Delivery) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "consumer")
	defer span.End()
	span.SetAttributes(attribute.String("message_id", delivery.MessageId))

	if err := amqpw.handler.HandleEvent(ctx, delivery.Body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		amqpw.l.Error("could not handle delivery %d: %v", delivery.DeliveryTag, err)
	}
	if err := delivery.Ack(false); err != nil {
		amqpw.l.Error("ack delivery %d: %v", delivery.DeliveryTag, err)
	}
}
