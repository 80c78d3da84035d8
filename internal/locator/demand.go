package locator

import (
	"math"

	"github.com/benmeehan/location-agent/pkg/location"
)

// ProviderConfig is the single configuration pushed to the provider.
type ProviderConfig struct {
	DesiredAccuracy float64
	DistanceFilter  float64
}

// demandSet holds every pending request and active subscription, in registration order.
type demandSet struct {
	requests      []*oneShotRequest
	subscriptions []*subscription
}

func (d *demandSet) empty() bool {
	return len(d.requests) == 0 && len(d.subscriptions) == 0
}

func (d *demandSet) addRequest(r *oneShotRequest) {
	d.requests = append(d.requests, r)
}

func (d *demandSet) removeRequest(r *oneShotRequest) bool {
	for i, candidate := range d.requests {
		if candidate == r {
			d.requests = append(d.requests[:i], d.requests[i+1:]...)
			return true
		}
	}
	return false
}

func (d *demandSet) addSubscription(s *subscription) {
	d.subscriptions = append(d.subscriptions, s)
}

func (d *demandSet) removeSubscription(id SubscriptionID) *subscription {
	for i, candidate := range d.subscriptions {
		if candidate.id == id {
			d.subscriptions = append(d.subscriptions[:i], d.subscriptions[i+1:]...)
			return candidate
		}
	}
	return nil
}

// demandAggregator folds the demand set into one provider configuration.
type demandAggregator struct {
	// defaultAccuracy applies when no demand asks for a specific accuracy.
	defaultAccuracy float64
	// legacy makes an unset accuracy contribute 0 to the minimum.
	legacy bool

	applied *ProviderConfig
}

// desiredConfiguration picks the strictest accuracy asked for and the smallest distance filter
// any subscription tolerates. A pending request pins the distance filter to 0.
func (a *demandAggregator) desiredConfiguration(d *demandSet) ProviderConfig {
	accuracy := math.Inf(1)
	consider := func(v float64) {
		if v <= 0 {
			if !a.legacy {
				return
			}
			v = 0
		}
		accuracy = math.Min(accuracy, v)
	}
	for _, r := range d.requests {
		consider(r.desiredAccuracy)
	}
	for _, s := range d.subscriptions {
		consider(s.opts.DesiredAccuracy)
	}
	if math.IsInf(accuracy, 1) {
		accuracy = a.defaultAccuracy
	}

	distance := 0.0
	if len(d.requests) == 0 && len(d.subscriptions) > 0 {
		distance = math.Inf(1)
		for _, s := range d.subscriptions {
			distance = math.Min(distance, math.Max(s.opts.DistanceFilter, 0))
		}
	}

	return ProviderConfig{DesiredAccuracy: accuracy, DistanceFilter: distance}
}

func (a *demandAggregator) shouldBeRunning(d *demandSet) bool {
	return !d.empty()
}

// apply writes the fields of cfg that differ from the last applied configuration.
func (a *demandAggregator) apply(provider location.Provider, cfg ProviderConfig) {
	if a.applied == nil || a.applied.DesiredAccuracy != cfg.DesiredAccuracy {
		provider.SetDesiredAccuracy(cfg.DesiredAccuracy)
	}
	if a.applied == nil || a.applied.DistanceFilter != cfg.DistanceFilter {
		provider.SetDistanceFilter(cfg.DistanceFilter)
	}
	applied := cfg
	a.applied = &applied
}
