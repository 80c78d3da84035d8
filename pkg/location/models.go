package location

import (
	"time"
)

// Sample represents a single position reading emitted by a provider.
// Accuracies are in meters; a negative accuracy means the provider could not estimate it.
type Sample struct {
	Latitude           float64
	Longitude          float64
	HorizontalAccuracy float64
	VerticalAccuracy   float64
	CapturedAt         time.Time
}

// Age returns how long ago the sample was captured relative to now.
func (s Sample) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

// WithinAccuracy reports whether both accuracies are at most limit.
// Unknown (negative) accuracies never fail the check.
func (s Sample) WithinAccuracy(limit float64) bool {
	return s.HorizontalAccuracy <= limit && s.VerticalAccuracy <= limit
}

// AuthorizationStatus is the platform's answer to whether the agent may read the location.
type AuthorizationStatus int

const (
	StatusNotDetermined AuthorizationStatus = iota
	StatusDenied
	StatusRestricted
	StatusAuthorizedAlways
	StatusAuthorizedWhenInUse
)

// String returns the wire name of the status.
func (s AuthorizationStatus) String() string {
	switch s {
	case StatusDenied:
		return "denied"
	case StatusRestricted:
		return "restricted"
	case StatusAuthorizedAlways:
		return "authorized_always"
	case StatusAuthorizedWhenInUse:
		return "authorized_when_in_use"
	default:
		return "not_determined"
	}
}

// Determined reports whether the status is anything but StatusNotDetermined.
func (s AuthorizationStatus) Determined() bool {
	return s != StatusNotDetermined
}

// Authorized reports whether location reads are allowed.
func (s AuthorizationStatus) Authorized() bool {
	return s == StatusAuthorizedAlways || s == StatusAuthorizedWhenInUse
}

// UsageMode is the kind of access the agent declares when it asks for authorization.
type UsageMode string

const (
	UsageNone      UsageMode = ""
	UsageAlways    UsageMode = "always"
	UsageWhenInUse UsageMode = "when_in_use"
)
