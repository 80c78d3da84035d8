package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

// DefaultPollInterval is how often the geolocation API is queried while the provider runs.
const DefaultPollInterval = 30 * time.Second

// geolocator is the subset of the Maps client used by the provider.
type geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// GoogleGeolocationProvider uses the Google Maps API to get location data.
type GoogleGeolocationProvider struct {
	client       geolocator // Maps API client for making geolocation requests
	enabled      bool
	pollInterval time.Duration
	modemIndex   int
	logger       zerolog.Logger
	clock        clockwork.Clock

	scanWiFi  func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	scanCells func(ctx context.Context, modemIndex int) ([]maps.CellTower, error)

	mu             sync.Mutex
	listener       Listener
	distanceFilter float64
	lastEmitted    *Sample
	cancel         context.CancelFunc
	runID          uint64
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
// An empty API key yields a provider whose location services are disabled.
func NewGoogleGeolocationProvider(apiKey string, pollInterval time.Duration, modemIndex int, logger zerolog.Logger) (*GoogleGeolocationProvider, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	p := &GoogleGeolocationProvider{
		enabled:      apiKey != "",
		pollInterval: pollInterval,
		modemIndex:   modemIndex,
		logger:       logger.With().Str("provider", "google_geolocation").Logger(),
		clock:        clockwork.NewRealClock(),
		scanWiFi:     getWiFiAccessPoints,
		scanCells:    getCellTowers,
	}
	if !p.enabled {
		return p, nil
	}

	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	p.client = c
	return p, nil
}

// SetListener registers the receiver of samples and authorization changes.
func (g *GoogleGeolocationProvider) SetListener(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listener = l
}

// SetDesiredAccuracy is a no-op: the API returns whatever accuracy it can resolve.
func (g *GoogleGeolocationProvider) SetDesiredAccuracy(meters float64) {
	g.logger.Debug().Float64("desired_accuracy", meters).Msg("Desired accuracy hint ignored")
}

// SetDistanceFilter sets the minimum displacement between two emitted samples.
func (g *GoogleGeolocationProvider) SetDistanceFilter(meters float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.distanceFilter = meters
}

// ServicesEnabled reports whether an API key was configured.
func (g *GoogleGeolocationProvider) ServicesEnabled() bool {
	return g.enabled
}

// AuthorizationStatus is AuthorizedAlways with a key and Restricted without one.
func (g *GoogleGeolocationProvider) AuthorizationStatus() AuthorizationStatus {
	if !g.enabled {
		return StatusRestricted
	}
	return StatusAuthorizedAlways
}

// RequestAuthorization has nothing to prompt for; the status is fixed by configuration.
func (g *GoogleGeolocationProvider) RequestAuthorization(mode UsageMode) error {
	return nil
}

// Start begins polling the geolocation API.
func (g *GoogleGeolocationProvider) Start() error {
	if !g.enabled {
		return errors.New("google geolocation provider has no API key")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.runID++
	g.lastEmitted = nil
	go g.pollLoop(ctx, g.runID)

	g.logger.Info().Dur("poll_interval", g.pollInterval).Msg("Geolocation polling started")
	return nil
}

// Stop cancels polling without waiting for an in-flight request.
func (g *GoogleGeolocationProvider) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel == nil {
		return nil
	}
	g.cancel()
	g.cancel = nil
	g.logger.Info().Msg("Geolocation polling stopped")
	return nil
}

func (g *GoogleGeolocationProvider) pollLoop(ctx context.Context, runID uint64) {
	ticker := g.clock.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		g.poll(ctx, runID)
		select {
		case <-ticker.Chan():
		case <-ctx.Done():
			return
		}
	}
}

// poll performs one geolocation lookup and emits the result.
func (g *GoogleGeolocationProvider) poll(ctx context.Context, runID uint64) {
	if ctx.Err() != nil {
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}
	if aps, err := g.scanWiFi(reqCtx); err != nil {
		g.logger.Debug().Err(err).Msg("WiFi scan unavailable")
	} else {
		req.WiFiAccessPoints = aps
	}
	if towers, err := g.scanCells(reqCtx, g.modemIndex); err != nil {
		g.logger.Debug().Err(err).Msg("Cell tower scan unavailable")
	} else {
		req.CellTowers = towers
	}

	resp, err := g.client.Geolocate(reqCtx, req)
	if err != nil {
		if ctx.Err() == nil {
			g.logger.Error().Err(err).Msg("Geolocation request failed")
		}
		return
	}

	g.emit(runID, Sample{
		Latitude:           resp.Location.Lat,
		Longitude:          resp.Location.Lng,
		HorizontalAccuracy: resp.Accuracy,
		VerticalAccuracy:   -1,
		CapturedAt:         g.clock.Now(),
	})
}

func (g *GoogleGeolocationProvider) emit(runID uint64, sample Sample) {
	g.mu.Lock()
	if g.cancel == nil || g.runID != runID {
		g.mu.Unlock()
		return
	}
	if g.distanceFilter > 0 && g.lastEmitted != nil && Distance(*g.lastEmitted, sample) < g.distanceFilter {
		g.mu.Unlock()
		return
	}
	g.lastEmitted = &sample
	listener := g.listener
	g.mu.Unlock()

	if listener != nil {
		listener.LocationsUpdated([]Sample{sample})
	}
}
