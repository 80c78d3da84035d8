package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// AuthorizationService publishes the location authorization status to <topic>/<device_id>:
// once when it starts and again on every change.
type AuthorizationService struct {
	// Configuration fields
	topic            string
	qos              int
	requestOnStartup bool

	// Dependencies
	deviceInfo identity.DeviceInfoInterface
	mqttClient mqtt.MQTTClient
	source     AuthorizationSource
	logger     zerolog.Logger

	// Internal state management
	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewAuthorizationService creates an AuthorizationService. With requestOnStartup the
// service also asks for authorization when the status is still undetermined.
func NewAuthorizationService(topic string, qos int, requestOnStartup bool, deviceInfo identity.DeviceInfoInterface,
	mqttClient mqtt.MQTTClient, source AuthorizationSource, logger zerolog.Logger) *AuthorizationService {
	return &AuthorizationService{
		topic:            topic,
		qos:              qos,
		requestOnStartup: requestOnStartup,
		deviceInfo:       deviceInfo,
		mqttClient:       mqttClient,
		source:           source,
		logger:           logger,
	}
}

// Start begins watching authorization changes.
func (a *AuthorizationService) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.logger.Warn().Msg("AuthorizationService is already running")
		return errors.New("authorization service is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	changes := a.source.WatchAuthorization(ctx)

	if err := a.publish(a.source.AuthorizationStatus()); err != nil {
		a.logger.Error().Err(err).Msg("Failed to publish initial authorization status")
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for status := range changes {
			if err := a.publish(status); err != nil {
				a.logger.Error().Err(err).Str("status", status.String()).Msg("Failed to publish authorization status")
			}
		}
	}()

	if a.requestOnStartup {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			status, err := a.source.RequestAuthorization(ctx)
			if err != nil {
				if ctx.Err() == nil {
					a.logger.Error().Err(err).Msg("Location authorization request failed")
				}
				return
			}
			a.logger.Info().Str("status", status.String()).Msg("Location authorization determined")
		}()
	}

	a.logger.Info().Str("topic", a.publishTopic()).Bool("request_on_startup", a.requestOnStartup).Msg("AuthorizationService started")
	return nil
}

// Stop ends the watch and waits for pending publishes.
func (a *AuthorizationService) Stop() error {
	a.mu.Lock()
	if a.cancel == nil {
		a.mu.Unlock()
		a.logger.Warn().Msg("AuthorizationService is not running")
		return errors.New("authorization service is not running")
	}
	a.cancel()
	a.cancel = nil
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info().Msg("AuthorizationService stopped")
	return nil
}

func (a *AuthorizationService) publishTopic() string {
	return a.topic + "/" + a.deviceInfo.GetDeviceID()
}

func (a *AuthorizationService) publish(status location.AuthorizationStatus) error {
	event := models.AuthorizationEvent{
		DeviceID:          a.deviceInfo.GetDeviceID(),
		Timestamp:         time.Now().UTC(),
		Status:            status.String(),
		LocationAvailable: a.source.IsLocationAvailable(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize authorization event: %w", err)
	}

	topic := a.publishTopic()
	token := a.mqttClient.Publish(topic, byte(a.qos), true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return err
	}

	a.logger.Info().Str("topic", topic).Str("status", event.Status).Msg("Authorization status published")
	return nil
}
