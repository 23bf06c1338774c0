package config

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
)

// Region events are fanned out on RegionExchange; RegionQueue is the durable
// queue bound to it.
const (
	RegionExchange = "region.events"
	RegionQueue    = "region_events"
)

func NewRabbitMQ(cfg RabbitMQConfig) (*amqp.Connection, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "rabbitmq connect")
	}
	return conn, nil
}

type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareRegionEvents sets up the fanout exchange and the queue bound to it.
// Publisher and consumers both call it; redeclaring is a no-op.
func DeclareRegionEvents(ch declarer) error {
	if err := ch.ExchangeDeclare(RegionExchange, "fanout", true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "declare exchange")
	}
	if _, err := ch.QueueDeclare(RegionQueue, true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "declare queue")
	}
	if err := ch.QueueBind(RegionQueue, "", RegionExchange, false, nil); err != nil {
		return eris.Wrap(err, "bind queue")
	}
	return nil
}
