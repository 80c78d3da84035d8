package locator

import (
	"sync/atomic"
	"time"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/jonboulle/clockwork"
)

// SubscriptionID is the opaque handle returned by Subscribe.
type SubscriptionID string

// Observer receives the samples delivered to a subscription.
type Observer interface {
	LocationUpdated(sample location.Sample)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(sample location.Sample)

// LocationUpdated calls f(sample).
func (f ObserverFunc) LocationUpdated(sample location.Sample) {
	f(sample)
}

// SubscriptionOptions are the filters of a subscription. Zero values mean unset.
type SubscriptionOptions struct {
	// DesiredAccuracy rejects samples whose horizontal or vertical accuracy exceeds it.
	DesiredAccuracy float64
	// DistanceFilter requires a sample to be strictly farther than this from the last delivered one.
	DistanceFilter float64
	// MinInterval is the minimum time between two deliveries. Samples arriving sooner are
	// held back and the latest one is delivered when the interval elapses.
	MinInterval time.Duration
	// MaxInterval forces a delivery of the pending or last delivered sample when nothing
	// was delivered for this long.
	MaxInterval time.Duration
}

// scheduleFunc runs fn on the coordinator's turn after d.
type scheduleFunc func(d time.Duration, fn func()) clockwork.Timer

// subscription is a long-lived consumer with its own filters and delivery timers.
// Every method except isActive runs on the coordinator's turn.
type subscription struct {
	id       SubscriptionID
	observer Observer
	opts     SubscriptionOptions

	schedule scheduleFunc
	notify   func(sub *subscription, sample location.Sample)

	lastDelivered *location.Sample
	pending       *location.Sample

	minTimer clockwork.Timer
	maxTimer clockwork.Timer
	minSeq   uint64
	maxSeq   uint64

	active atomic.Bool
}

func newSubscription(id SubscriptionID, observer Observer, opts SubscriptionOptions, schedule scheduleFunc,
	notify func(*subscription, location.Sample)) *subscription {
	s := &subscription{
		id:       id,
		observer: observer,
		opts:     opts,
		schedule: schedule,
		notify:   notify,
	}
	s.active.Store(true)
	s.armMaxTimer()
	return s
}

func (s *subscription) isActive() bool {
	return s.active.Load()
}

// accepts applies the accuracy and distance gates.
func (s *subscription) accepts(sample location.Sample) bool {
	if s.opts.DesiredAccuracy > 0 && !sample.WithinAccuracy(s.opts.DesiredAccuracy) {
		return false
	}
	if s.opts.DistanceFilter > 0 && s.lastDelivered != nil &&
		location.Distance(*s.lastDelivered, sample) <= s.opts.DistanceFilter {
		return false
	}
	return true
}

// offer delivers sample now, holds it back behind the min-interval gate, or drops it.
func (s *subscription) offer(sample location.Sample) {
	if !s.isActive() || !s.accepts(sample) {
		return
	}
	if s.minTimer != nil && s.lastDelivered != nil {
		s.pending = &sample
		return
	}
	s.deliver(sample)
}

// deliver hands sample to the observer and restarts both interval timers.
func (s *subscription) deliver(sample location.Sample) {
	s.lastDelivered = &sample
	s.pending = nil
	s.armMinTimer()
	s.armMaxTimer()

	s.notify(s, sample)
}

func (s *subscription) armMinTimer() {
	s.stopMinTimer()
	if s.opts.MinInterval <= 0 {
		return
	}
	seq := s.minSeq
	s.minTimer = s.schedule(s.opts.MinInterval, func() { s.minIntervalElapsed(seq) })
}

func (s *subscription) armMaxTimer() {
	s.stopMaxTimer()
	if s.opts.MaxInterval <= 0 {
		return
	}
	seq := s.maxSeq
	s.maxTimer = s.schedule(s.opts.MaxInterval, func() { s.maxIntervalElapsed(seq) })
}

func (s *subscription) stopMinTimer() {
	s.minSeq++
	if s.minTimer != nil {
		s.minTimer.Stop()
		s.minTimer = nil
	}
}

func (s *subscription) stopMaxTimer() {
	s.maxSeq++
	if s.maxTimer != nil {
		s.maxTimer.Stop()
		s.maxTimer = nil
	}
}

// minIntervalElapsed flushes the held-back sample, if any.
func (s *subscription) minIntervalElapsed(seq uint64) {
	if !s.isActive() || seq != s.minSeq {
		return
	}
	s.minTimer = nil
	if s.pending != nil {
		s.deliver(*s.pending)
	}
}

// maxIntervalElapsed delivers the best available sample so the observer hears from us
// at least once per MaxInterval.
func (s *subscription) maxIntervalElapsed(seq uint64) {
	if !s.isActive() || seq != s.maxSeq {
		return
	}
	s.maxTimer = nil
	switch {
	case s.pending != nil:
		s.deliver(*s.pending)
	case s.lastDelivered != nil:
		s.deliver(*s.lastDelivered)
	default:
		s.armMaxTimer()
	}
}

// invalidate cancels both timers. Calling it again is a no-op.
func (s *subscription) invalidate() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.stopMinTimer()
	s.stopMaxTimer()
	s.pending = nil
}
