package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/nandanugg/region-check/module/core/domain"
)

const topicPattern = "/region/device/+/location"

type regionChecker interface {
	Check(ctx context.Context, fix domain.Fix) (*domain.RegionCheck, error)
}

type locationMessage struct {
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

type LocationSubscriber struct {
	client  mqtt.Client
	checker regionChecker
	timeout time.Duration
}

func NewLocationSubscriber(client mqtt.Client, checker regionChecker) *LocationSubscriber {
	return &LocationSubscriber{
		client:  client,
		checker: checker,
		timeout: 10 * time.Second,
	}
}

func (s *LocationSubscriber) Start() error {
	token := s.client.Subscribe(topicPattern, 1, s.handleMessage)
	token.Wait()
	return token.Error()
}

func (s *LocationSubscriber) Stop() {
	s.client.Unsubscribe(topicPattern).WaitTimeout(time.Second)
}

func (s *LocationSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	log := zap.L().With(zap.String("topic", msg.Topic()))

	var raw locationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		log.Warn("invalid location message", zap.Error(err))
		return
	}

	// The topic decides which device a fix belongs to, as it does for
	// watchers of that topic.
	deviceID, ok := deviceFromTopic(msg.Topic())
	if !ok {
		log.Warn("unexpected location topic")
		return
	}
	switch raw.DeviceID {
	case "":
		raw.DeviceID = deviceID
	case deviceID:
	default:
		log.Warn("device_id does not match topic", zap.String("device_id", raw.DeviceID))
		return
	}

	if err := validateLocationMessage(&raw); err != nil {
		log.Warn("validation error", zap.Error(err))
		return
	}

	fix := domain.Fix{
		DeviceID:       raw.DeviceID,
		Point:          domain.GeoPoint{Lat: raw.Latitude, Lon: raw.Longitude},
		AccuracyMeters: raw.Accuracy,
		Timestamp:      time.Unix(raw.Timestamp, 0),
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.checker.Check(ctx, fix); err != nil {
		log.Error("region check error", zap.String("device_id", fix.DeviceID), zap.Error(err))
	}
}

// deviceFromTopic extracts {id} from /region/device/{id}/location.
func deviceFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, "/region/device/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/location")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func validateLocationMessage(msg *locationMessage) error {
	if msg.DeviceID == "" {
		return fmt.Errorf("device_id: required")
	}
	if msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Accuracy < 0 {
		return fmt.Errorf("accuracy: must not be negative")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}
