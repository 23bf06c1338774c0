package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/nandanugg/region-check/config"
)

type locationMessage struct {
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

type locateRequest struct {
	RequestID          string `json:"request_id"`
	ReplyTo            string `json:"reply_to"`
	EnableHighAccuracy bool   `json:"enable_high_accuracy"`
}

type locateReply struct {
	RequestID string  `json:"request_id"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
	ErrorCode string  `json:"error_code,omitempty"`
}

var errorCodes = []string{"permission_denied", "position_unavailable", "timeout"}

type flags struct {
	broker    string
	interval  time.Duration
	devices   int
	lat       float64
	lon       float64
	driftM    float64
	failRate  float64
	replyWait time.Duration
}

func main() {
	f := flags{}
	cmd := &cobra.Command{
		Use:   "publisher",
		Short: "Mock devices that publish fixes and answer locate requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.interval <= 0 {
				return fmt.Errorf("interval must be positive")
			}
			if f.devices <= 0 {
				return fmt.Errorf("devices must be positive")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, f)
		},
	}

	// The broker defaults to the server's mqtt.broker setting, so config.yaml
	// and REGION_MQTT_BROKER apply here too.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cmd.Flags().StringVar(&f.broker, "broker", cfg.MQTT.Broker, "MQTT broker URL")
	cmd.Flags().DurationVar(&f.interval, "interval", 2*time.Second, "time between published fixes")
	cmd.Flags().IntVar(&f.devices, "devices", 3, "number of mock devices")
	cmd.Flags().Float64Var(&f.lat, "lat", cfg.Geofence.Latitude, "latitude the devices wander around")
	cmd.Flags().Float64Var(&f.lon, "lon", cfg.Geofence.Longitude, "longitude the devices wander around")
	cmd.Flags().Float64Var(&f.driftM, "drift", 40, "maximum distance from the center in meters")
	cmd.Flags().Float64Var(&f.failRate, "fail-rate", 0.2, "share of locate requests answered with an error")
	cmd.Flags().DurationVar(&f.replyWait, "reply-delay", 300*time.Millisecond, "delay before answering a locate request")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	opts := mqtt.NewClientOptions().
		AddBroker(f.broker).
		SetClientID(fmt.Sprintf("region-mock-publisher-%d", rand.Intn(1e6)))

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer client.Disconnect(250)

	devices := make([]string, f.devices)
	for i := range devices {
		devices[i] = fmt.Sprintf("phone-%d", i+1)
		id := devices[i]
		topic := fmt.Sprintf("/region/device/%s/locate", id)
		token := client.Subscribe(topic, 1, func(c mqtt.Client, msg mqtt.Message) {
			go answerLocate(c, id, msg.Payload(), f)
		})
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
	}

	log.Printf("connected to %s, publishing every %s for %v", f.broker, f.interval, devices)

	limiter := rate.NewLimiter(rate.Every(f.interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			log.Println("shutting down")
			return nil
		}

		id := devices[rand.Intn(len(devices))]
		lat, lon := jitter(f.lat, f.lon, f.driftM)
		payload, _ := json.Marshal(locationMessage{
			DeviceID:  id,
			Latitude:  lat,
			Longitude: lon,
			Accuracy:  3 + rand.Float64()*20,
			Timestamp: time.Now().Unix(),
		})
		topic := fmt.Sprintf("/region/device/%s/location", id)
		client.Publish(topic, 1, false, payload).Wait()
		log.Printf("published to %s: %s", topic, payload)
	}
}

func answerLocate(c mqtt.Client, id string, payload []byte, f flags) {
	var req locateRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.RequestID == "" || req.ReplyTo == "" {
		log.Printf("ignoring locate request for %s: %s", id, payload)
		return
	}
	time.Sleep(f.replyWait)

	reply := locateReply{RequestID: req.RequestID}
	if rand.Float64() < f.failRate {
		reply.ErrorCode = errorCodes[rand.Intn(len(errorCodes))]
	} else {
		reply.Latitude, reply.Longitude = jitter(f.lat, f.lon, f.driftM)
		reply.Accuracy = 3 + rand.Float64()*10
		reply.Timestamp = time.Now().Unix()
	}

	body, _ := json.Marshal(reply)
	c.Publish(req.ReplyTo, 1, false, body).Wait()
	log.Printf("answered locate on %s: %s", req.ReplyTo, body)
}

// jitter moves (lat, lon) up to maxM meters in a random direction.
func jitter(lat, lon, maxM float64) (float64, float64) {
	const metersPerDegree = 111320.0
	dLat := (rand.Float64()*2 - 1) * maxM / metersPerDegree
	dLon := (rand.Float64()*2 - 1) * maxM / metersPerDegree
	return lat + dLat, lon + dLon
}
