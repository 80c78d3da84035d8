package location

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/tarm/serial"
	"golang.org/x/sys/unix"
)

// DefaultUERE is the user equivalent range error (meters) used to turn DOP values into accuracies.
const DefaultUERE = 5.0

// DeviceSensorProvider streams positions from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication
	uere     float64
	logger   zerolog.Logger
	clock    clockwork.Clock

	openPort    func() (io.ReadCloser, error)
	checkAccess func(path string) error

	mu              sync.Mutex
	listener        Listener
	desiredAccuracy float64
	distanceFilter  float64
	lastEmitted     *Sample
	status          AuthorizationStatus
	current         *sensorRun
}

// sensorRun is one Start..Stop cycle of the reader goroutine.
type sensorRun struct {
	stream io.ReadCloser
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int, uere float64, logger zerolog.Logger) *DeviceSensorProvider {
	if uere <= 0 {
		uere = DefaultUERE
	}
	p := &DeviceSensorProvider{
		port:        port,
		baudRate:    baudRate,
		uere:        uere,
		logger:      logger.With().Str("provider", "gps_serial").Str("port", port).Logger(),
		clock:       clockwork.NewRealClock(),
		checkAccess: checkDeviceAccess,
	}
	p.openPort = func() (io.ReadCloser, error) {
		return serial.OpenPort(&serial.Config{Name: p.port, Baud: p.baudRate})
	}
	return p
}

// checkDeviceAccess reports os.ErrNotExist when the device node is absent and
// a permission error when the agent cannot read it.
func checkDeviceAccess(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return &os.PathError{Op: "access", Path: path, Err: err}
	}
	return nil
}

// SetListener registers the receiver of samples and authorization changes.
func (d *DeviceSensorProvider) SetListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = l
}

// SetDesiredAccuracy records the accuracy hint. A serial GPS cannot be tuned, so it is only logged.
func (d *DeviceSensorProvider) SetDesiredAccuracy(meters float64) {
	d.mu.Lock()
	d.desiredAccuracy = meters
	d.mu.Unlock()
	d.logger.Debug().Float64("desired_accuracy", meters).Msg("Desired accuracy updated")
}

// SetDistanceFilter sets the minimum displacement between two emitted samples.
func (d *DeviceSensorProvider) SetDistanceFilter(meters float64) {
	d.mu.Lock()
	d.distanceFilter = meters
	d.mu.Unlock()
	d.logger.Debug().Float64("distance_filter", meters).Msg("Distance filter updated")
}

// ServicesEnabled reports whether the device node exists.
func (d *DeviceSensorProvider) ServicesEnabled() bool {
	return !errors.Is(d.checkAccess(d.port), os.ErrNotExist)
}

// AuthorizationStatus derives the status from the device node's accessibility.
func (d *DeviceSensorProvider) AuthorizationStatus() AuthorizationStatus {
	status := d.probe()
	d.mu.Lock()
	d.status = status
	d.mu.Unlock()
	return status
}

func (d *DeviceSensorProvider) probe() AuthorizationStatus {
	err := d.checkAccess(d.port)
	switch {
	case err == nil:
		return StatusAuthorizedAlways
	case errors.Is(err, os.ErrNotExist):
		return StatusRestricted
	default:
		return StatusDenied
	}
}

// RequestAuthorization re-checks device access. There is nobody to prompt on a
// headless device, so the only effect is a change notification when the status moved.
func (d *DeviceSensorProvider) RequestAuthorization(mode UsageMode) error {
	status := d.probe()

	d.mu.Lock()
	changed := status != d.status
	d.status = status
	listener := d.listener
	d.mu.Unlock()

	d.logger.Info().Str("usage", string(mode)).Str("status", status.String()).Msg("Authorization checked")
	if changed && listener != nil {
		listener.AuthorizationChanged(status)
	}
	return nil
}

// Start opens the serial port and begins streaming samples to the listener.
func (d *DeviceSensorProvider) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current != nil {
		return nil
	}

	stream, err := d.openPort()
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to open GPS serial port")
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	run := &sensorRun{stream: stream}
	d.current = run
	d.lastEmitted = nil
	go d.readLoop(run)

	d.logger.Info().Int("baud_rate", d.baudRate).Msg("GPS sensor started")
	return nil
}

// Stop closes the serial port. It does not wait for the reader goroutine, which may be
// the caller itself when the listener decides to stop from within a delivery.
func (d *DeviceSensorProvider) Stop() error {
	d.mu.Lock()
	run := d.current
	d.current = nil
	d.mu.Unlock()

	if run == nil {
		return nil
	}
	if err := run.stream.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close GPS serial port")
		return err
	}
	d.logger.Info().Msg("GPS sensor stopped")
	return nil
}

// readLoop scans NMEA lines from the port until it is closed.
func (d *DeviceSensorProvider) readLoop(run *sensorRun) {
	decoder := &nmeaDecoder{uere: d.uere}
	scanner := bufio.NewScanner(run.stream)

	for scanner.Scan() {
		sample, ok, err := decoder.decode(scanner.Text(), d.clock.Now())
		if err != nil {
			d.logger.Debug().Err(err).Msg("Skipping malformed NMEA sentence")
			continue
		}
		if !ok {
			continue
		}
		if !d.emit(run, sample) {
			return
		}
	}

	if err := scanner.Err(); err != nil && d.isCurrent(run) {
		d.logger.Error().Err(err).Msg("GPS serial read failed")
	}
}

func (d *DeviceSensorProvider) isCurrent(run *sensorRun) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current == run
}

// emit applies the distance filter and hands the sample to the listener.
// It returns false once the run has been stopped.
func (d *DeviceSensorProvider) emit(run *sensorRun, sample Sample) bool {
	d.mu.Lock()
	if d.current != run {
		d.mu.Unlock()
		return false
	}
	if d.distanceFilter > 0 && d.lastEmitted != nil && Distance(*d.lastEmitted, sample) < d.distanceFilter {
		d.mu.Unlock()
		return true
	}
	d.lastEmitted = &sample
	listener := d.listener
	d.mu.Unlock()

	if listener != nil {
		listener.LocationsUpdated([]Sample{sample})
	}
	return true
}

// nmeaDecoder turns a stream of NMEA sentences into samples. GSA sentences carry the
// dilution of precision, GGA sentences carry the fix and trigger a sample.
type nmeaDecoder struct {
	uere    float64
	vdop    float64
	hasVDOP bool
}

func (n *nmeaDecoder) decode(line string, now time.Time) (Sample, bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Sample{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Sample{}, false, err
	}

	switch s := sentence.(type) {
	case nmea.GSA:
		if s.VDOP > 0 {
			n.vdop = s.VDOP
			n.hasVDOP = true
		}
	case nmea.GGA:
		if s.FixQuality == nmea.Invalid {
			return Sample{}, false, nil
		}
		vertical := -1.0
		if n.hasVDOP {
			vertical = n.vdop * n.uere
		}
		return Sample{
			Latitude:           s.Latitude,
			Longitude:          s.Longitude,
			HorizontalAccuracy: s.HDOP * n.uere,
			VerticalAccuracy:   vertical,
			CapturedAt:         now,
		}, true, nil
	}
	return Sample{}, false, nil
}
