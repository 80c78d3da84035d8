package location

// Provider is a single location-sensing source. It is started while somebody needs
// positions and stopped otherwise; readings and authorization changes are pushed to
// the registered Listener from the provider's own goroutine.
type Provider interface {
	Start() error
	Stop() error
	SetDesiredAccuracy(meters float64)
	SetDistanceFilter(meters float64)
	SetListener(l Listener)
	AuthorizationStatus() AuthorizationStatus
	ServicesEnabled() bool
	RequestAuthorization(mode UsageMode) error
}

// Listener receives events from a Provider.
type Listener interface {
	// LocationsUpdated delivers a batch of readings, oldest first.
	LocationsUpdated(samples []Sample)
	AuthorizationChanged(status AuthorizationStatus)
}
