package core

import (
	"context"
	"database/sql"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"

	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/auth"
	handler "github.com/nandanugg/region-check/module/core/internal/handler/http"
	"github.com/nandanugg/region-check/module/core/internal/handler/subscriber"
	mqttprovider "github.com/nandanugg/region-check/module/core/internal/provider/mqtt"
	"github.com/nandanugg/region-check/module/core/internal/repository/database/postgres"
	"github.com/nandanugg/region-check/module/core/internal/repository/publisher/rabbitmq"
	"github.com/nandanugg/region-check/module/core/service"
)

type Options struct {
	Geofence                domain.GeofenceConfig
	AccuracyThresholdMeters float64
	Locate                  domain.LocateOptions
	JWTSecret               string
	AdminKey                string
	TokenTTL                time.Duration
	OriginPatterns          []string
}

type Module struct {
	CheckSvc    *service.RegionCheckService
	LocationSvc *service.LocationService
	LocateSvc   *service.LocateService
	PhotoSvc    *service.PhotoService

	checkHandler    *handler.RegionCheckHandler
	geofenceHandler *handler.GeofenceHandler
	streamHandler   *handler.StreamHandler
	subscriber      *subscriber.LocationSubscriber
}

// Migrate creates the tables the module stores checks and photos in.
func Migrate(ctx context.Context, db *sql.DB) error {
	return postgres.Migrate(ctx, db)
}

func Build(db *sql.DB, amqpConn *amqp.Connection, mqttClient mqtt.Client, opts Options) (*Module, error) {
	checkRepo := postgres.NewRegionCheckRepo(db)
	photoRepo := postgres.NewPhotoRepo(db)

	regionPub, err := rabbitmq.NewRegionPublisher(amqpConn)
	if err != nil {
		return nil, eris.Wrap(err, "region publisher")
	}

	locationProvider := mqttprovider.NewLocationProvider(mqttClient)
	issuer := auth.NewIssuer(opts.JWTSecret, opts.TokenTTL)

	checkSvc := service.NewRegionCheckService(checkRepo, regionPub, opts.Geofence, opts.AccuracyThresholdMeters)
	locationSvc := service.NewLocationService(checkRepo)
	locateSvc := service.NewLocateService(locationProvider, checkSvc, opts.Locate)
	photoSvc := service.NewPhotoService(checkRepo, photoRepo)

	return &Module{
		CheckSvc:        checkSvc,
		LocationSvc:     locationSvc,
		LocateSvc:       locateSvc,
		PhotoSvc:        photoSvc,
		checkHandler:    handler.NewRegionCheckHandler(checkSvc, locationSvc, locateSvc, photoSvc),
		geofenceHandler: handler.NewGeofenceHandler(opts.Geofence, service.Distance, service.Evaluate),
		streamHandler:   handler.NewStreamHandler(locationProvider, issuer, opts.AdminKey, opts.Geofence, service.Evaluate, opts.OriginPatterns),
		subscriber:      subscriber.NewLocationSubscriber(mqttClient, checkSvc),
	}, nil
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.checkHandler.Register(r)
	m.geofenceHandler.Register(r)
	m.streamHandler.Register(r)
}

func (m *Module) StartSubscribers() error {
	return m.subscriber.Start()
}

func (m *Module) StopSubscribers() {
	m.subscriber.Stop()
}
