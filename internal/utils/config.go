package utils

import (
	"fmt"
	"time"

	"github.com/benmeehan/location-agent/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID, a UUID suffix is appended at startup
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, empty disables TLS
		Username      string `yaml:"username"`
		Password      string `yaml:"password"`
	} `yaml:"mqtt"`

	Identity struct {
		DeviceFile string `yaml:"device_file"` // Path to the device identity file
	} `yaml:"identity"`

	Logging LoggingConfig `yaml:"logging"`

	Location LocationConfig `yaml:"location"`

	Services struct {
		Tracking struct {
			Topic           string        `yaml:"topic"`            // Samples are published to <topic>/<device_id>
			Enabled         bool          `yaml:"enabled"`          // Enable/disable tracking service
			QOS             int           `yaml:"qos"`              // MQTT QoS level for location messages
			DesiredAccuracy float64       `yaml:"desired_accuracy"` // Meters, 0 accepts any accuracy
			DistanceFilter  float64       `yaml:"distance_filter"`  // Meters between two published samples
			MinInterval     time.Duration `yaml:"min_interval"`
			MaxInterval     time.Duration `yaml:"max_interval"`
		} `yaml:"tracking"`

		Locate struct {
			Topic          string        `yaml:"topic"`           // Requests arrive on <topic>/<device_id>
			Enabled        bool          `yaml:"enabled"`         // Enable/disable locate service
			QOS            int           `yaml:"qos"`             // MQTT QoS level for request and response messages
			DefaultTimeout time.Duration `yaml:"default_timeout"` // Used when a request carries no timeout
		} `yaml:"locate"`

		Authorization struct {
			Topic            string `yaml:"topic"`             // Status changes are published to <topic>/<device_id>
			Enabled          bool   `yaml:"enabled"`           // Enable/disable authorization service
			QOS              int    `yaml:"qos"`               // MQTT QoS level for authorization events
			RequestOnStartup bool   `yaml:"request_on_startup"` // Ask for authorization when the service starts
		} `yaml:"authorization"`
	} `yaml:"services"`
}

// LocationConfig selects and tunes the location provider and the coordinator.
type LocationConfig struct {
	Provider                  string        `yaml:"provider"`                    // "serial" or "google"
	GPSDevicePort             string        `yaml:"gps_device_port"`             // UNIX port where the GPS sensor is mounted
	GPSDeviceBaudRate         int           `yaml:"gps_baud_rate"`               // The baud rate for the GPS sensor
	UERE                      float64       `yaml:"uere"`                        // Meters per unit of dilution of precision
	MapsAPIKey                string        `yaml:"maps_api_key"`                // Google Maps API key
	PollInterval              time.Duration `yaml:"poll_interval"`               // Geolocation API polling period
	ModemIndex                int           `yaml:"modem_index"`                 // ModemManager index used for cell towers
	Usage                     string        `yaml:"usage"`                       // "", "always" or "when_in_use"
	DefaultDesiredAccuracy    float64       `yaml:"default_desired_accuracy"`    // Pushed to the provider when nobody asks for one
	LegacyAccuracyAggregation bool          `yaml:"legacy_accuracy_aggregation"` // Demands without accuracy pin the provider to 0
	MaxSampleAccuracy         float64       `yaml:"max_sample_accuracy"`         // Coarser samples reach no consumer, 0 disables the gate
}

const (
	ProviderSerial = "serial"
	ProviderGoogle = "google"
)

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", filename, err)
	}
	return &config, nil
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	switch c.Location.Provider {
	case ProviderSerial:
		if c.Location.GPSDevicePort == "" {
			return fmt.Errorf("location.gps_device_port is required for the %s provider", ProviderSerial)
		}
	case ProviderGoogle:
	default:
		return fmt.Errorf("unknown location.provider %q", c.Location.Provider)
	}

	if c.Location.MaxSampleAccuracy < 0 {
		return fmt.Errorf("location.max_sample_accuracy must not be negative")
	}

	switch c.Location.Usage {
	case "", "always", "when_in_use":
	default:
		return fmt.Errorf("unknown location.usage %q", c.Location.Usage)
	}

	tracking := c.Services.Tracking
	if tracking.MinInterval > 0 && tracking.MaxInterval > 0 && tracking.MaxInterval < tracking.MinInterval {
		return fmt.Errorf("services.tracking.max_interval %s is shorter than min_interval %s",
			tracking.MaxInterval, tracking.MinInterval)
	}
	return nil
}
