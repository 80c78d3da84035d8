package mocks

import (
	"sync"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of the location.Provider interface.
// Emit and ChangeAuthorization play the provider's side of the Listener contract.
type MockProvider struct {
	mock.Mock

	mu       sync.Mutex
	listener location.Listener
}

func (m *MockProvider) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockProvider) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockProvider) SetDesiredAccuracy(meters float64) {
	m.Called(meters)
}

func (m *MockProvider) SetDistanceFilter(meters float64) {
	m.Called(meters)
}

func (m *MockProvider) SetListener(l location.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// AuthorizationStatus accepts either a status or a func() location.AuthorizationStatus as return value.
func (m *MockProvider) AuthorizationStatus() location.AuthorizationStatus {
	args := m.Called()
	if fn, ok := args.Get(0).(func() location.AuthorizationStatus); ok {
		return fn()
	}
	return args.Get(0).(location.AuthorizationStatus)
}

// ServicesEnabled accepts either a bool or a func() bool as return value.
func (m *MockProvider) ServicesEnabled() bool {
	args := m.Called()
	if fn, ok := args.Get(0).(func() bool); ok {
		return fn()
	}
	return args.Bool(0)
}

func (m *MockProvider) RequestAuthorization(mode location.UsageMode) error {
	args := m.Called(mode)
	return args.Error(0)
}

// Emit pushes a batch of samples to the registered listener.
func (m *MockProvider) Emit(samples ...location.Sample) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	l.LocationsUpdated(samples)
}

// ChangeAuthorization pushes an authorization change to the registered listener.
func (m *MockProvider) ChangeAuthorization(status location.AuthorizationStatus) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	l.AuthorizationChanged(status)
}
