package locator

import (
	"time"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultMaxSampleAge bounds the age of a sample accepted by a request without a timeout.
const DefaultMaxSampleAge = 30 * time.Second

type requestResult struct {
	sample location.Sample
	err    error
}

// oneShotRequest is a pending "give me a location now" ask. All methods run on the
// coordinator's turn.
type oneShotRequest struct {
	id              string
	timeout         time.Duration // zero means no timeout
	desiredAccuracy float64       // zero or negative means unset

	timer  clockwork.Timer
	result chan requestResult
	done   bool
}

func newOneShotRequest(timeout time.Duration, desiredAccuracy float64) *oneShotRequest {
	return &oneShotRequest{
		id:              uuid.NewString(),
		timeout:         timeout,
		desiredAccuracy: desiredAccuracy,
		result:          make(chan requestResult, 1),
	}
}

// arm starts the timeout timer, if the request has a timeout.
func (r *oneShotRequest) arm(schedule scheduleFunc, onTimeout func(*oneShotRequest)) {
	if r.timeout <= 0 {
		return
	}
	r.timer = schedule(r.timeout, func() { onTimeout(r) })
}

// validate rejects samples older than the request's window and samples less accurate than asked for.
func (r *oneShotRequest) validate(sample location.Sample, now time.Time) bool {
	maxAge := r.timeout
	if maxAge <= 0 {
		maxAge = DefaultMaxSampleAge
	}
	if sample.Age(now) > maxAge {
		return false
	}
	if r.desiredAccuracy > 0 && !sample.WithinAccuracy(r.desiredAccuracy) {
		return false
	}
	return true
}

// submit completes the request with sample if it validates. It reports whether the
// request is now satisfied.
func (r *oneShotRequest) submit(sample *location.Sample, now time.Time) bool {
	if r.done || sample == nil || !r.validate(*sample, now) {
		return false
	}
	return r.complete(requestResult{sample: *sample})
}

// forceComplete bypasses validation. A nil sample completes with ErrCannotFetchLocation.
func (r *oneShotRequest) forceComplete(sample *location.Sample) bool {
	if sample == nil {
		return r.complete(requestResult{err: ErrCannotFetchLocation})
	}
	return r.complete(requestResult{sample: *sample})
}

// fail completes the request with err.
func (r *oneShotRequest) fail(err error) bool {
	return r.complete(requestResult{err: err})
}

// complete delivers the outcome exactly once and stops the timer.
func (r *oneShotRequest) complete(res requestResult) bool {
	if r.done {
		return false
	}
	r.done = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.result <- res
	return true
}
