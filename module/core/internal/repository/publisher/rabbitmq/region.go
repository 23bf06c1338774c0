package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"

	"github.com/nandanugg/region-check/config"
	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/repository/publisher"
)

var _ publisher.RegionPublisher = (*RegionPublisher)(nil)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RegionPublisher struct {
	ch channel
}

func NewRegionPublisher(conn *amqp.Connection) (*RegionPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, eris.Wrap(err, "rabbitmq channel")
	}
	if err := config.DeclareRegionEvents(ch); err != nil {
		return nil, err
	}
	return &RegionPublisher{ch: ch}, nil
}

type eventMessage struct {
	CheckID        string                 `json:"check_id"`
	DeviceID       string                 `json:"device_id"`
	Event          domain.RegionEventType `json:"event"`
	Location       eventLocation          `json:"location"`
	DistanceMeters float64                `json:"distance_meters"`
	Inside         bool                   `json:"inside"`
	Timestamp      int64                  `json:"timestamp"`
}

type eventLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p *RegionPublisher) PublishEvent(ctx context.Context, event *domain.RegionEvent) error {
	msg := eventMessage{
		CheckID:  event.CheckID,
		DeviceID: event.DeviceID,
		Event:    event.Event,
		Location: eventLocation{
			Latitude:  event.Location.Lat,
			Longitude: event.Location.Lon,
		},
		DistanceMeters: event.DistanceMeters,
		Inside:         event.Inside,
		Timestamp:      event.Timestamp,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "marshal event")
	}

	return p.ch.PublishWithContext(ctx, config.RegionExchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        string(event.Event),
		Body:        body,
	})
}
