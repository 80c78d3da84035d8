package models

import (
	"time"

	"github.com/benmeehan/location-agent/pkg/location"
)

// Location is a published position sample.
type Location struct {
	DeviceID           string    `json:"device_id"`
	Timestamp          time.Time `json:"timestamp"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	VerticalAccuracy   float64   `json:"vertical_accuracy"`
}

// NewLocation converts a sample into its wire form.
func NewLocation(deviceID string, s location.Sample) Location {
	return Location{
		DeviceID:           deviceID,
		Timestamp:          s.CapturedAt,
		Latitude:           s.Latitude,
		Longitude:          s.Longitude,
		HorizontalAccuracy: s.HorizontalAccuracy,
		VerticalAccuracy:   s.VerticalAccuracy,
	}
}

// LocateRequest asks the device for its position once. A request with Cancel set
// withdraws the in-flight request carrying the same RequestID.
type LocateRequest struct {
	RequestID       string  `json:"request_id"`
	TimeoutMS       int64   `json:"timeout_ms,omitempty"`
	DesiredAccuracy float64 `json:"desired_accuracy,omitempty"`
	Force           bool    `json:"force,omitempty"`
	Cancel          bool    `json:"cancel,omitempty"`
}

// LocateResponse answers a LocateRequest.
type LocateResponse struct {
	RequestID string    `json:"request_id"`
	DeviceID  string    `json:"device_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Location  *Location `json:"location,omitempty"`
}

// AuthorizationEvent reports a change of the location authorization status.
type AuthorizationEvent struct {
	DeviceID          string    `json:"device_id"`
	Timestamp         time.Time `json:"timestamp"`
	Status            string    `json:"status"`
	LocationAvailable bool      `json:"location_available"`
}
