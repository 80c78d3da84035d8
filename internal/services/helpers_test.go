package services_test

import (
	"testing"
	"time"

	"github.com/benmeehan/location-agent/internal/locator"
	"github.com/benmeehan/location-agent/internal/mocks"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

const testDeviceID = "test-device-id"

var epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newDeviceInfo() *mocks.MockDeviceInfo {
	d := new(mocks.MockDeviceInfo)
	d.On("GetDeviceID").Return(testDeviceID)
	return d
}

func newProvider(status location.AuthorizationStatus) *mocks.MockProvider {
	p := new(mocks.MockProvider)
	p.On("SetDesiredAccuracy", mock.Anything).Return()
	p.On("SetDistanceFilter", mock.Anything).Return()
	p.On("Start").Return(nil)
	p.On("Stop").Return(nil)
	p.On("AuthorizationStatus").Return(status)
	p.On("ServicesEnabled").Return(true)
	return p
}

func newCoordinator(t *testing.T, p *mocks.MockProvider, opts locator.Options) *locator.Coordinator {
	t.Helper()
	opts.Clock = clockwork.NewFakeClockAt(epoch)
	c := locator.New(p, opts, zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// capturePublishes makes every Publish on topic succeed and forwards its payload.
func capturePublishes(client *mocks.MockMQTTClient, topic string, retained bool) <-chan []byte {
	published := make(chan []byte, 16)
	client.On("Publish", topic, byte(1), retained, mock.Anything).
		Return(mocks.NewDoneToken(nil)).
		Run(func(args mock.Arguments) {
			published <- args.Get(3).([]byte)
		})
	return published
}

func next(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(time.Second):
		t.Fatal("nothing was published")
		return nil
	}
}
