package service_registry

import (
	"fmt"

	"github.com/benmeehan/location-agent/internal/locator"
	"github.com/benmeehan/location-agent/internal/utils"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/rs/zerolog"
)

// NewLocationProvider builds the provider selected by location.provider.
func NewLocationProvider(cfg utils.LocationConfig, logger zerolog.Logger) (location.Provider, error) {
	switch cfg.Provider {
	case utils.ProviderSerial:
		return location.NewDeviceSensorProvider(cfg.GPSDevicePort, cfg.GPSDeviceBaudRate, cfg.UERE, logger), nil
	case utils.ProviderGoogle:
		p, err := location.NewGoogleGeolocationProvider(cfg.MapsAPIKey, cfg.PollInterval, cfg.ModemIndex, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown location provider %q", cfg.Provider)
	}
}

// CoordinatorOptions maps the location section onto coordinator options.
func CoordinatorOptions(cfg utils.LocationConfig) locator.Options {
	return locator.Options{
		Usage:                     location.UsageMode(cfg.Usage),
		DefaultDesiredAccuracy:    cfg.DefaultDesiredAccuracy,
		LegacyAccuracyAggregation: cfg.LegacyAccuracyAggregation,
		MaxSampleAccuracy:         cfg.MaxSampleAccuracy,
	}
}
