package locator

import (
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// updateRouter resolves each provider sample against the demand set.
type updateRouter struct {
	demand    *demandSet
	clock     clockwork.Clock
	logger    zerolog.Logger
	reconcile func()
	// maxAccuracy, when positive, keeps coarser samples away from requests and subscriptions.
	maxAccuracy float64

	lastKnown *location.Sample
}

// route processes one sample, on the coordinator's turn:
// record it, drop it when coarser than maxAccuracy, satisfy the requests it validates
// for, offer it to every subscription, then let the coordinator re-evaluate the provider.
func (r *updateRouter) route(sample location.Sample) {
	r.lastKnown = &sample
	if r.maxAccuracy > 0 && !sample.WithinAccuracy(r.maxAccuracy) {
		r.logger.Debug().
			Float64("horizontal_accuracy", sample.HorizontalAccuracy).
			Float64("vertical_accuracy", sample.VerticalAccuracy).
			Float64("max_accuracy", r.maxAccuracy).
			Msg("Location sample too coarse to route, kept as last known")
		return
	}
	now := r.clock.Now()

	pending := r.demand.requests[:0]
	satisfied := 0
	for _, req := range r.demand.requests {
		if req.submit(&sample, now) {
			satisfied++
			continue
		}
		pending = append(pending, req)
	}
	for i := len(pending); i < len(r.demand.requests); i++ {
		r.demand.requests[i] = nil
	}
	r.demand.requests = pending

	for _, sub := range r.demand.subscriptions {
		sub.offer(sample)
	}

	r.logger.Debug().
		Float64("latitude", sample.Latitude).
		Float64("longitude", sample.Longitude).
		Float64("horizontal_accuracy", sample.HorizontalAccuracy).
		Int("satisfied_requests", satisfied).
		Int("pending_requests", len(r.demand.requests)).
		Int("subscriptions", len(r.demand.subscriptions)).
		Msg("Routed location sample")

	r.reconcile()
}
