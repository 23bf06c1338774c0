package domain

import (
	"errors"
	"fmt"
	"time"
)

// Fix is a single position reading reported by a device.
type Fix struct {
	DeviceID       string    `json:"device_id"`
	Point          GeoPoint  `json:"location"`
	AccuracyMeters float64   `json:"accuracy"`
	Timestamp      time.Time `json:"timestamp"`
}

// MapsURL links the fix on Google Maps.
func (f Fix) MapsURL() string {
	return fmt.Sprintf("https://www.google.com/maps?q=%v,%v", f.Point.Lat, f.Point.Lon)
}

// RegionCheck is the audit record of one evaluation.
type RegionCheck struct {
	ID          string           `json:"id"`
	Fix         Fix              `json:"fix"`
	Result      EvaluationResult `json:"result"`
	LowAccuracy bool             `json:"low_accuracy"`
	CheckedAt   time.Time        `json:"checked_at"`
}

const LowAccuracyHint = "For better accuracy, try moving to an open area with clear sky view."

type Device struct {
	DeviceID string `json:"device_id"`
}

type HistoryQuery struct {
	DeviceID string
	Start    time.Time
	End      time.Time
}

type Photo struct {
	CheckID     string    `json:"check_id"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	CapturedAt  time.Time `json:"captured_at"`
}

var (
	ErrCheckNotFound = errors.New("region check not found")
	ErrPhotoNotFound = errors.New("photo not found")
	ErrNotAnImage    = errors.New("photo is not an image")
)
