package locator

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/location-agent/internal/mocks"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

var epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// metersNorth converts a displacement along a meridian into degrees of latitude.
func metersNorth(m float64) float64 {
	return m / earthRadius * 180 / math.Pi
}

const earthRadius = 6371000

func sampleAt(lat, lon, accuracy float64, at time.Time) location.Sample {
	return location.Sample{
		Latitude:           lat,
		Longitude:          lon,
		HorizontalAccuracy: accuracy,
		VerticalAccuracy:   accuracy,
		CapturedAt:         at,
	}
}

// newAuthorizedProvider returns a provider mock that accepts every configuration write.
func newAuthorizedProvider() *mocks.MockProvider {
	p := new(mocks.MockProvider)
	p.On("SetDesiredAccuracy", mock.Anything).Return()
	p.On("SetDistanceFilter", mock.Anything).Return()
	p.On("Start").Return(nil)
	p.On("Stop").Return(nil)
	p.On("AuthorizationStatus").Return(location.StatusAuthorizedAlways)
	p.On("ServicesEnabled").Return(true)
	return p
}

// fakeClock is the part of clockwork's fake clock the tests drive.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

func newFakeClock() fakeClock {
	return clockwork.NewFakeClockAt(epoch)
}

func newTestCoordinator(t *testing.T, p *mocks.MockProvider, opts Options) (*Coordinator, fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts.Clock = clock
	c := New(p, opts, zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

// recorder is an Observer that keeps every delivered sample.
type recorder struct {
	mu      sync.Mutex
	samples []location.Sample
}

func (r *recorder) LocationUpdated(sample location.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample)
}

func (r *recorder) received() []location.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]location.Sample(nil), r.samples...)
}

func (r *recorder) count() int {
	return len(r.received())
}
