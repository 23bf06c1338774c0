package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nandanugg/region-check/config"
	"github.com/nandanugg/region-check/module/core"
	"github.com/nandanugg/region-check/module/engagement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		zap.L().Fatal("server", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := config.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := core.Migrate(ctx, db); err != nil {
		return err
	}

	amqpConn, err := config.NewRabbitMQ(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer func() { _ = amqpConn.Close() }()

	mqttClient, err := config.NewMQTT(cfg.MQTT)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect(250)

	if cfg.Auth.AdminKey == "" {
		zap.L().Warn("auth.admin_key not set, stream token issuance disabled")
	}

	coreModule, err := core.Build(db, amqpConn, mqttClient, core.Options{
		Geofence:                cfg.GeofenceConfig(),
		AccuracyThresholdMeters: cfg.Geofence.AccuracyThresholdMeters,
		Locate:                  cfg.LocateOptions(),
		JWTSecret:               cfg.Auth.JWTSecret,
		AdminKey:                cfg.Auth.AdminKey,
		TokenTTL:                cfg.Auth.TokenTTL,
		OriginPatterns:          cfg.Stream.OriginPatterns,
	})
	if err != nil {
		return err
	}

	if err := coreModule.StartSubscribers(); err != nil {
		return err
	}
	defer coreModule.StopSubscribers()

	session := initEngagement(ctx, cfg.Engagement)
	if session != nil {
		defer func() {
			if err := session.Close(); err != nil {
				zap.L().Warn("close engagement session", zap.Error(err))
			}
		}()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	config.NewHealthChecker(db, amqpConn, mqttClient).Register(r)
	coreModule.RegisterRoutes(&r.RouterGroup)
	engagement.NewHandler(session).Register(&r.RouterGroup)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// initEngagement returns nil when engagement is disabled or unreachable;
// the rest of the server runs without it.
func initEngagement(ctx context.Context, cfg config.EngagementConfig) *engagement.Session {
	if cfg.ClientID == "" {
		return nil
	}
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	session, err := engagement.NewHTTPAdapter(nil).Init(initCtx, engagement.Options{
		Endpoint: cfg.Endpoint,
		ClientID: cfg.ClientID,
	})
	if err != nil {
		zap.L().Warn("engagement disabled", zap.Error(err))
		return nil
	}
	return session
}
