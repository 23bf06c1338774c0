package domain

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// GeofenceConfig is a circular region around Target.
type GeofenceConfig struct {
	Target       GeoPoint `json:"target"`
	RadiusMeters float64  `json:"radius_meters"`
}

// EvaluationResult is derived per reading and never stored by the evaluator.
type EvaluationResult struct {
	DistanceMeters float64 `json:"distance_meters"`
	Inside         bool    `json:"inside"`
}

const (
	DefaultTargetLat    = 30.903825140141603
	DefaultTargetLon    = 75.90097405628944
	DefaultRadiusMeters = 20
)

func DefaultGeofence() GeofenceConfig {
	return GeofenceConfig{
		Target:       GeoPoint{Lat: DefaultTargetLat, Lon: DefaultTargetLon},
		RadiusMeters: DefaultRadiusMeters,
	}
}

type RegionEventType string

const (
	RegionEntry      RegionEventType = "region_entry"
	RegionExit       RegionEventType = "region_exit"
	RegionCheckEvent RegionEventType = "region_check"
)

type RegionEvent struct {
	CheckID        string          `json:"check_id"`
	DeviceID       string          `json:"device_id"`
	Event          RegionEventType `json:"event"`
	Location       GeoPoint        `json:"location"`
	DistanceMeters float64         `json:"distance_meters"`
	Inside         bool            `json:"inside"`
	Timestamp      int64           `json:"timestamp"`
}
