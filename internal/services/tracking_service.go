package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/location-agent/internal/locator"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// publishTimeout bounds how long a publish waits for the broker acknowledgement.
const publishTimeout = 5 * time.Second

// TrackingService holds one coordinator subscription and publishes every delivered
// sample to <topic>/<device_id>.
type TrackingService struct {
	// Configuration fields
	topic string
	qos   int
	opts  locator.SubscriptionOptions

	// Dependencies
	deviceInfo identity.DeviceInfoInterface
	mqttClient mqtt.MQTTClient
	tracker    Tracker
	logger     zerolog.Logger

	mu             sync.Mutex
	acks           sync.WaitGroup
	subscriptionID locator.SubscriptionID
	running        bool
}

// NewTrackingService creates a TrackingService with the given subscription filters.
func NewTrackingService(topic string, qos int, opts locator.SubscriptionOptions, deviceInfo identity.DeviceInfoInterface,
	mqttClient mqtt.MQTTClient, tracker Tracker, logger zerolog.Logger) *TrackingService {
	return &TrackingService{
		topic:      topic,
		qos:        qos,
		opts:       opts,
		deviceInfo: deviceInfo,
		mqttClient: mqttClient,
		tracker:    tracker,
		logger:     logger,
	}
}

// Start registers the subscription with the coordinator.
func (t *TrackingService) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.logger.Warn().Msg("TrackingService is already running")
		return errors.New("tracking service is already running")
	}

	id, err := t.tracker.Subscribe(locator.ObserverFunc(t.publish), t.opts)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to subscribe to location updates")
		return fmt.Errorf("failed to subscribe to location updates: %w", err)
	}
	t.subscriptionID = id
	t.running = true

	t.logger.Info().
		Str("topic", t.publishTopic()).
		Int("qos", t.qos).
		Str("subscription_id", string(id)).
		Msg("TrackingService started")
	return nil
}

// Stop removes the subscription, which stops the provider if nobody else needs it,
// and waits for outstanding broker acknowledgements.
func (t *TrackingService) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		t.logger.Warn().Msg("TrackingService is not running")
		return errors.New("tracking service is not running")
	}

	t.tracker.Unsubscribe(t.subscriptionID)
	t.subscriptionID = ""
	t.running = false
	t.mu.Unlock()

	t.acks.Wait()
	t.logger.Info().Msg("TrackingService stopped")
	return nil
}

func (t *TrackingService) publishTopic() string {
	return t.topic + "/" + t.deviceInfo.GetDeviceID()
}

// publish is the subscription observer. It hands the message to the client and
// returns; the acknowledgement is awaited in awaitAck so a slow broker does not hold up
// the coordinator's callback queue.
func (t *TrackingService) publish(sample location.Sample) {
	message := models.NewLocation(t.deviceInfo.GetDeviceID(), sample)

	payload, err := json.Marshal(message)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to serialize location message")
		return
	}

	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.acks.Add(1)
	t.mu.Unlock()

	topic := t.publishTopic()
	token := t.mqttClient.Publish(topic, byte(t.qos), false, payload)
	go t.awaitAck(token, topic, sample)
}

func (t *TrackingService) awaitAck(token MQTT.Token, topic string, sample location.Sample) {
	defer t.acks.Done()
	if !token.WaitTimeout(publishTimeout) {
		t.logger.Warn().Str("topic", topic).Msg("Timed out publishing location message")
		return
	}
	if err := token.Error(); err != nil {
		t.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish location message to MQTT")
		return
	}

	t.logger.Debug().
		Float64("latitude", sample.Latitude).
		Float64("longitude", sample.Longitude).
		Float64("horizontal_accuracy", sample.HorizontalAccuracy).
		Str("topic", topic).
		Msg("Location published")
}
