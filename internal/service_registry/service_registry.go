package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/locator"
	"github.com/benmeehan/location-agent/internal/services"
	"github.com/benmeehan/location-agent/internal/utils"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// Service is a coordinator consumer with a start/stop lifecycle.
type Service interface {
	Start() error
	Stop() error
}

// ServiceRegistry manages the lifecycle of the coordinator's consumers.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	mqttClient  mqtt.MQTTClient
	coordinator *locator.Coordinator
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, coordinator *locator.Coordinator, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:    make(map[string]Service),
		mqttClient:  mqttClient,
		coordinator: coordinator,
		Logger:      logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Names returns the registered service names in start order.
func (sr *ServiceRegistry) Names() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deviceInfo identity.DeviceInfoInterface) error {
	tracking := config.Services.Tracking
	locate := config.Services.Locate
	authorization := config.Services.Authorization

	// Authorization first so its startup request precedes any location demand.
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() Service
	}{
		{
			name:    constants.AuthorizationServiceName,
			enabled: authorization.Enabled,
			constructor: func() Service {
				return services.NewAuthorizationService(
					authorization.Topic,
					authorization.QOS,
					authorization.RequestOnStartup,
					deviceInfo,
					sr.mqttClient,
					sr.coordinator,
					sr.Logger.With().Str("service", constants.AuthorizationServiceName).Logger(),
				)
			},
		},
		{
			name:    constants.TrackingServiceName,
			enabled: tracking.Enabled,
			constructor: func() Service {
				return services.NewTrackingService(
					tracking.Topic,
					tracking.QOS,
					locator.SubscriptionOptions{
						DesiredAccuracy: tracking.DesiredAccuracy,
						DistanceFilter:  tracking.DistanceFilter,
						MinInterval:     tracking.MinInterval,
						MaxInterval:     tracking.MaxInterval,
					},
					deviceInfo,
					sr.mqttClient,
					sr.coordinator,
					sr.Logger.With().Str("service", constants.TrackingServiceName).Logger(),
				)
			},
		},
		{
			name:    constants.LocateServiceName,
			enabled: locate.Enabled,
			constructor: func() Service {
				return services.NewLocateService(
					locate.Topic,
					locate.QOS,
					locate.DefaultTimeout,
					deviceInfo,
					sr.mqttClient,
					sr.coordinator,
					sr.Logger.With().Str("service", constants.LocateServiceName).Logger(),
				)
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			sr.RegisterService(svc.name, svc.constructor())
			registeredServices = append(registeredServices, svc.name)
		}
	}
	if len(registeredServices) == 0 {
		return errors.New("no services enabled")
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
