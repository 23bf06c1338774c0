package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nandanugg/region-check/config"
)

type regionEvent struct {
	Event          string  `json:"event"`
	DeviceID       string  `json:"device_id"`
	DistanceMeters float64 `json:"distance_meters"`
	Inside         bool    `json:"inside"`
}

func main() {
	var transitionsOnly bool
	cmd := &cobra.Command{
		Use:   "event_listener",
		Short: "Print region events from RabbitMQ",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return run(cfg.RabbitMQ, transitionsOnly)
		},
	}
	cmd.Flags().BoolVar(&transitionsOnly, "transitions-only", false, "skip region_check events")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.RabbitMQConfig, transitionsOnly bool) error {
	conn, err := config.NewRabbitMQ(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := config.DeclareRegionEvents(ch); err != nil {
		return err
	}

	msgs, err := ch.Consume(config.RegionQueue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log.Printf("consuming from queue '%s', waiting for region events...", config.RegionQueue)

	go func() {
		for msg := range msgs {
			var event regionEvent
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				continue
			}
			if transitionsOnly && event.Event == "region_check" {
				continue
			}
			status := "outside"
			if event.Inside {
				status = "inside"
			}
			fmt.Printf("[%s] %s is %s, %.2f m from target\n", event.Event, event.DeviceID, status, event.DistanceMeters)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("shutting down")
	return nil
}
