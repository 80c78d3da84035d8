package services

import (
	"context"

	"github.com/benmeehan/location-agent/internal/locator"
	"github.com/benmeehan/location-agent/pkg/location"
)

// Tracker is the subscription side of the location coordinator.
type Tracker interface {
	Subscribe(observer locator.Observer, opts locator.SubscriptionOptions) (locator.SubscriptionID, error)
	Unsubscribe(id locator.SubscriptionID) bool
}

// Locator resolves one-shot location requests.
type Locator interface {
	Locate(ctx context.Context, opts locator.RequestOptions) (location.Sample, error)
}

// AuthorizationSource reports and requests location authorization.
type AuthorizationSource interface {
	AuthorizationStatus() location.AuthorizationStatus
	IsLocationAvailable() bool
	WatchAuthorization(ctx context.Context) <-chan location.AuthorizationStatus
	RequestAuthorization(ctx context.Context) (location.AuthorizationStatus, error)
}

var (
	_ Tracker             = (*locator.Coordinator)(nil)
	_ Locator             = (*locator.Coordinator)(nil)
	_ AuthorizationSource = (*locator.Coordinator)(nil)
)
