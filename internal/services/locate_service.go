package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/locator"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// DefaultLocateTimeout applies to requests that carry no timeout. It covers a serial
// GPS cold start; callers wanting a quick answer send timeout_ms.
const DefaultLocateTimeout = 30 * time.Second

// LocateService answers one-shot location requests received on <topic>/<device_id>
// and publishes the result to <topic>/<device_id>/response.
type LocateService struct {
	// Configuration fields
	topic          string
	qos            int
	defaultTimeout time.Duration

	// Dependencies
	deviceInfo identity.DeviceInfoInterface
	mqttClient mqtt.MQTTClient
	locator    Locator
	logger     zerolog.Logger

	// In-flight requests by request id
	inflight cmap.ConcurrentMap[string, context.CancelFunc]

	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewLocateService creates a LocateService.
func NewLocateService(topic string, qos int, defaultTimeout time.Duration, deviceInfo identity.DeviceInfoInterface,
	mqttClient mqtt.MQTTClient, coordinator Locator, logger zerolog.Logger) *LocateService {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultLocateTimeout
	}
	return &LocateService{
		topic:          topic,
		qos:            qos,
		defaultTimeout: defaultTimeout,
		deviceInfo:     deviceInfo,
		mqttClient:     mqttClient,
		locator:        coordinator,
		logger:         logger,
		inflight:       cmap.New[context.CancelFunc](),
	}
}

func (s *LocateService) requestTopic() string {
	return s.topic + "/" + s.deviceInfo.GetDeviceID()
}

func (s *LocateService) responseTopic() string {
	return fmt.Sprintf("%s/%s/%s", s.topic, s.deviceInfo.GetDeviceID(), constants.ResponseTopicSuffix)
}

// Start subscribes to the request topic.
func (s *LocateService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		s.logger.Warn().Msg("LocateService is already running")
		return errors.New("locate service is already running")
	}

	topic := s.requestTopic()
	token := s.mqttClient.Subscribe(topic, byte(s.qos), s.HandleRequest)
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		return err
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.logger.Info().Str("topic", topic).Msg("LocateService started")
	return nil
}

// Stop unsubscribes, cancels every in-flight request and waits for their responses.
func (s *LocateService) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		s.logger.Warn().Msg("LocateService is not running")
		return errors.New("locate service is not running")
	}
	cancel := s.cancel
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	topic := s.requestTopic()
	token := s.mqttClient.Unsubscribe(topic)
	token.Wait()
	unsubscribeErr := token.Error()
	if unsubscribeErr != nil {
		s.logger.Error().Err(unsubscribeErr).Str("topic", topic).Msg("Failed to unsubscribe from MQTT topic")
	}

	cancel()
	s.wg.Wait()

	s.logger.Info().Msg("LocateService stopped")
	return unsubscribeErr
}

// InFlight returns the number of requests still waiting for a location.
func (s *LocateService) InFlight() int {
	return s.inflight.Count()
}

// HandleRequest parses a locate or cancel message and dispatches it.
func (s *LocateService) HandleRequest(_ MQTT.Client, msg MQTT.Message) {
	var req models.LocateRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		s.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("Failed to parse locate request")
		return
	}
	if req.RequestID == "" {
		s.logger.Warn().Str("topic", msg.Topic()).Msg("Ignoring locate request without request_id")
		return
	}

	if req.Cancel {
		if cancel, ok := s.inflight.Pop(req.RequestID); ok {
			s.logger.Info().Str("request_id", req.RequestID).Msg("Cancelling locate request")
			cancel()
		} else {
			s.logger.Debug().Str("request_id", req.RequestID).Msg("Cancel for unknown locate request")
		}
		return
	}

	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		s.logger.Warn().Str("request_id", req.RequestID).Msg("Received locate request but service is stopping, ignoring")
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	if !s.inflight.SetIfAbsent(req.RequestID, cancel) {
		s.mu.Unlock()
		cancel()
		s.logger.Warn().Str("request_id", req.RequestID).Msg("Duplicate locate request, ignoring")
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		s.serve(ctx, req)
	}()
}

func (s *LocateService) serve(ctx context.Context, req models.LocateRequest) {
	timeout := s.defaultTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	s.logger.Info().
		Str("request_id", req.RequestID).
		Dur("timeout", timeout).
		Float64("desired_accuracy", req.DesiredAccuracy).
		Bool("force", req.Force).
		Msg("Locating device")

	sample, err := s.locator.Locate(ctx, locator.RequestOptions{
		Timeout:         timeout,
		DesiredAccuracy: req.DesiredAccuracy,
		Force:           req.Force,
	})
	s.inflight.Remove(req.RequestID)

	resp := models.LocateResponse{
		RequestID: req.RequestID,
		DeviceID:  s.deviceInfo.GetDeviceID(),
		Status:    responseStatus(err),
	}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("Locate request failed")
	} else {
		loc := models.NewLocation(resp.DeviceID, sample)
		resp.Location = &loc
	}

	if err := s.publishResponse(resp); err != nil {
		s.logger.Error().Err(err).Str("request_id", req.RequestID).Msg("Failed to publish locate response")
	}
}

func responseStatus(err error) string {
	switch {
	case err == nil:
		return constants.LocateStatusOK
	case errors.Is(err, context.Canceled):
		return constants.LocateStatusCancelled
	case errors.Is(err, locator.ErrServiceDisabled), errors.Is(err, locator.ErrPermissionPromptUnavailable):
		return constants.LocateStatusDisabled
	case errors.Is(err, locator.ErrCannotFetchLocation):
		return constants.LocateStatusTimeout
	default:
		return constants.LocateStatusError
	}
}

func (s *LocateService) publishResponse(resp models.LocateResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to serialize locate response: %w", err)
	}

	topic := s.responseTopic()
	token := s.mqttClient.Publish(topic, byte(s.qos), false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return err
	}

	s.logger.Info().Str("topic", topic).Str("request_id", resp.RequestID).Str("status", resp.Status).Msg("Locate response published")
	return nil
}
