package domain

import (
	"errors"
	"time"
)

type ProviderErrorCode string

const (
	ErrCodePermissionDenied    ProviderErrorCode = "permission_denied"
	ErrCodePositionUnavailable ProviderErrorCode = "position_unavailable"
	ErrCodeTimeout             ProviderErrorCode = "timeout"
	ErrCodeUnsupported         ProviderErrorCode = "unsupported"
	ErrCodeUnknown             ProviderErrorCode = "unknown"
)

// ProviderError is a failure to acquire a fix. Every category is retryable
// by issuing a fresh request.
type ProviderError struct {
	Code ProviderErrorCode
	Err  error
}

func NewProviderError(code ProviderErrorCode, err error) *ProviderError {
	return &ProviderError{Code: code, Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Message is the text shown to the person holding the device.
func (e *ProviderError) Message() string {
	const prefix = "Error getting location: "
	switch e.Code {
	case ErrCodePermissionDenied:
		return prefix + "Please allow location access to use this feature."
	case ErrCodePositionUnavailable:
		return prefix + "Location information is unavailable."
	case ErrCodeTimeout:
		return prefix + "The request to get user location timed out."
	case ErrCodeUnsupported:
		return "Geolocation is not supported by this browser."
	default:
		return prefix + "An unknown error occurred."
	}
}

// ParseProviderErrorCode maps a device-reported code onto a known category.
func ParseProviderErrorCode(s string) ProviderErrorCode {
	switch c := ProviderErrorCode(s); c {
	case ErrCodePermissionDenied, ErrCodePositionUnavailable, ErrCodeTimeout, ErrCodeUnsupported:
		return c
	default:
		return ErrCodeUnknown
	}
}

// AsProviderError unwraps err into a ProviderError if it carries one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

type LocateOptions struct {
	HighAccuracy bool          `json:"enable_high_accuracy"`
	Timeout      time.Duration `json:"-"`
	MaximumAge   time.Duration `json:"-"`
}
