package http

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/nandanugg/region-check/module/core/domain"
)

// DistanceFunc and EvaluateFunc are the pure geofence operations.
type (
	DistanceFunc func(a, b domain.GeoPoint) float64
	EvaluateFunc func(position domain.GeoPoint, cfg domain.GeofenceConfig) domain.EvaluationResult
)

type GeofenceHandler struct {
	geofence domain.GeofenceConfig
	distance DistanceFunc
	evaluate EvaluateFunc
}

func NewGeofenceHandler(geofence domain.GeofenceConfig, distance DistanceFunc, evaluate EvaluateFunc) *GeofenceHandler {
	return &GeofenceHandler{geofence: geofence, distance: distance, evaluate: evaluate}
}

func (h *GeofenceHandler) Register(r *gin.RouterGroup) {
	r.GET("/geofence", h.GetGeofence)
	r.GET("/geofence.geojson", h.GetGeoJSON)
	r.GET("/geofence/evaluate", h.Evaluate)
	r.GET("/distance", h.Distance)
}

func (h *GeofenceHandler) GetGeofence(c *gin.Context) {
	c.JSON(http.StatusOK, h.geofence)
}

func (h *GeofenceHandler) GetGeoJSON(c *gin.Context) {
	feature := &geojson.Feature{
		ID:       "target",
		Geometry: geom.NewPointFlat(geom.XY, []float64{h.geofence.Target.Lon, h.geofence.Target.Lat}),
		Properties: map[string]interface{}{
			"radius_meters": h.geofence.RadiusMeters,
		},
	}
	body, err := feature.MarshalJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode geofence"})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", body)
}

// Evaluate classifies ?at=lat,lon without storing anything.
func (h *GeofenceHandler) Evaluate(c *gin.Context) {
	at, err := parsePoint(c.Query("at"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid at parameter"})
		return
	}
	c.JSON(http.StatusOK, h.evaluate(at, h.geofence))
}

func (h *GeofenceHandler) Distance(c *gin.Context) {
	from, err := parsePoint(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from parameter"})
		return
	}
	to, err := parsePoint(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to parameter"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"distance_meters": h.distance(from, to)})
}

// parsePoint reads "lat,lon". Ranges are not enforced, but both values must
// be finite.
func parsePoint(s string) (domain.GeoPoint, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return domain.GeoPoint{}, fmt.Errorf("expected lat,lon, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("longitude: %w", err)
	}
	if !finite(lat) || !finite(lon) {
		return domain.GeoPoint{}, fmt.Errorf("coordinates must be finite, got %q", s)
	}
	return domain.GeoPoint{Lat: lat, Lon: lon}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
