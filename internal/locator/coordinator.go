package locator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/location-agent/internal/utils"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// State is the provider-facing state of the coordinator.
type State int

const (
	// StateIdle means no demand and the provider is stopped.
	StateIdle State = iota
	// StateTracking means there is demand and the provider is running.
	StateTracking
)

func (s State) String() string {
	if s == StateTracking {
		return "tracking"
	}
	return "idle"
}

// Options configures a Coordinator.
type Options struct {
	// Clock drives request timeouts and subscription intervals. Defaults to the real clock.
	Clock clockwork.Clock
	// Usage is the access mode declared when authorization has to be requested.
	Usage location.UsageMode
	// DefaultDesiredAccuracy is pushed to the provider when no demand asks for an accuracy.
	DefaultDesiredAccuracy float64
	// LegacyAccuracyAggregation makes demands without an accuracy pin the provider to 0.
	LegacyAccuracyAggregation bool
	// MaxSampleAccuracy, when positive, is the coarsest horizontal or vertical accuracy a
	// sample may have to reach requests and subscriptions. Coarser samples are still
	// recorded as the last known sample.
	MaxSampleAccuracy float64
}

// RequestOptions configures a one-shot request. Zero values mean unset.
type RequestOptions struct {
	Timeout         time.Duration
	DesiredAccuracy float64
	// Force skips the last-known-sample short-circuit.
	Force bool
}

// Coordinator multiplexes one-shot requests and subscriptions over a single provider.
// Registration, routing and timer callbacks are serialized; observer callbacks run in
// order on a separate dispatcher goroutine so observers may call back into the coordinator.
type Coordinator struct {
	provider   location.Provider
	clock      clockwork.Clock
	usage      location.UsageMode
	logger     zerolog.Logger
	dispatcher *utils.Dispatcher

	mu          sync.Mutex
	demand      *demandSet
	aggregator  *demandAggregator
	router      *updateRouter
	state       State
	watchers    map[uint64]chan location.AuthorizationStatus
	nextWatcher uint64
	watcherWG   sync.WaitGroup
	closed      bool
	done        chan struct{}
}

// New creates a coordinator and registers it as the provider's listener.
func New(provider location.Provider, opts Options, logger zerolog.Logger) *Coordinator {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &Coordinator{
		provider:   provider,
		clock:      clock,
		usage:      opts.Usage,
		logger:     logger,
		dispatcher: utils.NewDispatcher(),
		demand:     &demandSet{},
		aggregator: &demandAggregator{
			defaultAccuracy: opts.DefaultDesiredAccuracy,
			legacy:          opts.LegacyAccuracyAggregation,
		},
		watchers: make(map[uint64]chan location.AuthorizationStatus),
		done:     make(chan struct{}),
	}
	c.router = &updateRouter{
		demand:      c.demand,
		clock:       clock,
		logger:      logger,
		reconcile:   c.reconcileLogged,
		maxAccuracy: opts.MaxSampleAccuracy,
	}

	c.aggregator.apply(provider, c.aggregator.desiredConfiguration(c.demand))
	provider.SetListener(providerListener{c: c})
	return c
}

// providerListener keeps the Listener methods off the Coordinator's public API.
type providerListener struct {
	c *Coordinator
}

func (l providerListener) LocationsUpdated(samples []location.Sample) {
	l.c.handleLocations(samples)
}

func (l providerListener) AuthorizationChanged(status location.AuthorizationStatus) {
	l.c.handleAuthorizationChange(status)
}

// schedule runs fn on the coordinator's turn after d, unless the coordinator was closed.
func (c *Coordinator) schedule(d time.Duration, fn func()) clockwork.Timer {
	return c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		fn()
	})
}

// AuthorizationStatus returns the provider's current authorization status.
func (c *Coordinator) AuthorizationStatus() location.AuthorizationStatus {
	return c.provider.AuthorizationStatus()
}

// IsStatusDetermined reports whether the platform has answered the authorization question.
func (c *Coordinator) IsStatusDetermined() bool {
	return c.provider.AuthorizationStatus().Determined()
}

// IsLocationAvailable reports whether location services are on and authorized.
func (c *Coordinator) IsLocationAvailable() bool {
	return c.provider.ServicesEnabled() && c.provider.AuthorizationStatus().Authorized()
}

// State returns whether the provider is currently running on behalf of some demand.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastKnownSample returns the most recent sample received from the provider.
func (c *Coordinator) LastKnownSample() (location.Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.router.lastKnown == nil {
		return location.Sample{}, false
	}
	return *c.router.lastKnown, true
}

// ProviderConfig returns the configuration last written to the provider.
func (c *Coordinator) ProviderConfig() ProviderConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.aggregator.applied
}

// PendingRequests returns the number of unresolved one-shot requests.
func (c *Coordinator) PendingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.demand.requests)
}

// Subscriptions returns the number of active subscriptions.
func (c *Coordinator) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.demand.subscriptions)
}

// RequestOnce resolves with one location sample. It fails fast with ErrServiceDisabled when
// authorization is determined and location is unavailable, and resolves immediately with
// the last known sample when it is still valid for the request and Force is not set.
// Cancelling ctx withdraws the request unless it was already satisfied.
func (c *Coordinator) RequestOnce(ctx context.Context, opts RequestOptions) (location.Sample, error) {
	if c.IsStatusDetermined() && !c.IsLocationAvailable() {
		return location.Sample{}, ErrServiceDisabled
	}

	req := newOneShotRequest(opts.Timeout, opts.DesiredAccuracy)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return location.Sample{}, ErrCoordinatorClosed
	}
	if last := c.router.lastKnown; !opts.Force && last != nil && req.validate(*last, c.clock.Now()) {
		sample := *last
		c.mu.Unlock()
		c.logger.Debug().Str("request_id", req.id).Msg("Resolved location request from last known sample")
		return sample, nil
	}

	req.arm(c.schedule, c.requestTimedOut)
	c.demand.addRequest(req)
	if err := c.reconcile(); err != nil {
		c.demand.removeRequest(req)
		req.fail(err)
		c.reconcileLogged()
		c.mu.Unlock()
		return location.Sample{}, err
	}
	c.logger.Debug().
		Str("request_id", req.id).
		Dur("timeout", opts.Timeout).
		Float64("desired_accuracy", opts.DesiredAccuracy).
		Msg("Location request registered")
	c.mu.Unlock()

	select {
	case res := <-req.result:
		return res.sample, res.err
	case <-ctx.Done():
	}

	c.mu.Lock()
	if req.fail(ctx.Err()) {
		c.demand.removeRequest(req)
		c.reconcileLogged()
		c.logger.Debug().Str("request_id", req.id).Msg("Location request cancelled")
	}
	c.mu.Unlock()

	res := <-req.result
	return res.sample, res.err
}

// Locate awaits authorization, requesting it if needed, then performs RequestOnce.
// Both stages observe ctx.
func (c *Coordinator) Locate(ctx context.Context, opts RequestOptions) (location.Sample, error) {
	if !c.IsStatusDetermined() {
		if _, err := c.RequestAuthorization(ctx); err != nil {
			return location.Sample{}, err
		}
	}
	return c.RequestOnce(ctx, opts)
}

func (c *Coordinator) requestTimedOut(req *oneShotRequest) {
	if req.done {
		return
	}
	req.forceComplete(c.router.lastKnown)
	c.demand.removeRequest(req)
	c.logger.Debug().Str("request_id", req.id).Dur("timeout", req.timeout).Msg("Location request timed out")
	c.reconcileLogged()
}

// Subscribe registers an observer for continuous updates and returns its handle.
func (c *Coordinator) Subscribe(observer Observer, opts SubscriptionOptions) (SubscriptionID, error) {
	if observer == nil {
		return "", fmt.Errorf("%w: nil observer", ErrInvalidSubscription)
	}
	if opts.MinInterval > 0 && opts.MaxInterval > 0 && opts.MaxInterval < opts.MinInterval {
		return "", fmt.Errorf("%w: max interval %s is shorter than min interval %s",
			ErrInvalidSubscription, opts.MaxInterval, opts.MinInterval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrCoordinatorClosed
	}

	sub := newSubscription(SubscriptionID(uuid.NewString()), observer, opts, c.schedule, c.notify)
	c.demand.addSubscription(sub)
	if err := c.reconcile(); err != nil {
		c.demand.removeSubscription(sub.id)
		sub.invalidate()
		c.reconcileLogged()
		return "", err
	}

	c.logger.Info().
		Str("subscription_id", string(sub.id)).
		Float64("desired_accuracy", opts.DesiredAccuracy).
		Float64("distance_filter", opts.DistanceFilter).
		Dur("min_interval", opts.MinInterval).
		Dur("max_interval", opts.MaxInterval).
		Msg("Location subscription added")
	return sub.id, nil
}

// Unsubscribe removes a subscription and cancels its timers. It reports whether the
// handle was active; unknown or already removed handles are a no-op.
func (c *Coordinator) Unsubscribe(id SubscriptionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := c.demand.removeSubscription(id)
	if sub == nil {
		return false
	}
	sub.invalidate()
	c.logger.Info().Str("subscription_id", string(id)).Msg("Location subscription removed")
	c.reconcileLogged()
	return true
}

// notify queues an observer callback. Callbacks for subscriptions removed before
// dispatch are dropped.
func (c *Coordinator) notify(sub *subscription, sample location.Sample) {
	c.dispatcher.Submit(func() {
		if sub.isActive() {
			sub.observer.LocationUpdated(sample)
		}
	})
}

// reconcile pushes the aggregated configuration and starts or stops the provider.
func (c *Coordinator) reconcile() error {
	c.aggregator.apply(c.provider, c.aggregator.desiredConfiguration(c.demand))

	running := c.aggregator.shouldBeRunning(c.demand)
	switch {
	case running && c.state == StateIdle:
		if err := c.provider.Start(); err != nil {
			return fmt.Errorf("failed to start location provider: %w", err)
		}
		c.state = StateTracking
		c.logger.Info().Msg("Location provider started")
	case !running && c.state == StateTracking:
		c.state = StateIdle
		if err := c.provider.Stop(); err != nil {
			return fmt.Errorf("failed to stop location provider: %w", err)
		}
		c.logger.Info().Msg("Location provider stopped")
	}
	return nil
}

func (c *Coordinator) reconcileLogged() {
	if err := c.reconcile(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to reconcile location provider")
	}
}

func (c *Coordinator) handleLocations(samples []location.Sample) {
	if len(samples) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.router.route(samples[len(samples)-1])
}

// handleAuthorizationChange broadcasts the new status. Losing authorization fails the
// pending requests, which could otherwise only end by timeout.
func (c *Coordinator) handleAuthorizationChange(status location.AuthorizationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.logger.Info().Str("status", status.String()).Msg("Location authorization changed")
	for id, ch := range c.watchers {
		select {
		case ch <- status:
		default:
			c.logger.Warn().Uint64("watcher", id).Msg("Authorization watcher is not keeping up, dropping event")
		}
	}

	if !status.Determined() || status.Authorized() {
		return
	}
	for _, req := range c.demand.requests {
		req.fail(ErrServiceDisabled)
	}
	c.demand.requests = nil
	c.reconcileLogged()
}

// WatchAuthorization returns a channel receiving every authorization status change until
// ctx is done or the coordinator is closed, after which the channel is closed.
func (c *Coordinator) WatchAuthorization(ctx context.Context) <-chan location.AuthorizationStatus {
	ch := make(chan location.AuthorizationStatus, 4)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch
	}
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = ch
	c.watcherWG.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.watcherWG.Done()
		select {
		case <-ctx.Done():
		case <-c.done:
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(ch)
		}
	}()
	return ch
}

// RequestAuthorization asks the provider for authorization when the status is still
// undetermined and waits for the answer. It fails with ErrPermissionPromptUnavailable
// when no usage mode was configured.
func (c *Coordinator) RequestAuthorization(ctx context.Context) (location.AuthorizationStatus, error) {
	if status := c.provider.AuthorizationStatus(); status.Determined() {
		return status, nil
	}
	if c.usage == location.UsageNone {
		c.logger.Error().Msg("No location usage mode configured, cannot request authorization")
		return location.StatusNotDetermined, ErrPermissionPromptUnavailable
	}

	return c.awaitDetermined(ctx, func() error {
		if err := c.provider.RequestAuthorization(c.usage); err != nil {
			return fmt.Errorf("failed to request location authorization: %w", err)
		}
		return nil
	})
}

// AwaitAuthorization waits until the authorization status is determined.
func (c *Coordinator) AwaitAuthorization(ctx context.Context) (location.AuthorizationStatus, error) {
	return c.awaitDetermined(ctx, nil)
}

func (c *Coordinator) awaitDetermined(ctx context.Context, trigger func() error) (location.AuthorizationStatus, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes := c.WatchAuthorization(ctx)
	if trigger != nil {
		if err := trigger(); err != nil {
			return location.StatusNotDetermined, err
		}
	}
	if status := c.provider.AuthorizationStatus(); status.Determined() {
		return status, nil
	}

	for {
		select {
		case status, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return location.StatusNotDetermined, ctx.Err()
				}
				return location.StatusNotDetermined, ErrCoordinatorClosed
			}
			if status.Determined() {
				return status, nil
			}
		case <-ctx.Done():
			return location.StatusNotDetermined, ctx.Err()
		}
	}
}

// Close fails pending requests, drops subscriptions, stops the provider and waits for
// queued observer callbacks. It must not be called from an observer callback.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)

	for _, req := range c.demand.requests {
		req.fail(ErrCoordinatorClosed)
	}
	for _, sub := range c.demand.subscriptions {
		sub.invalidate()
	}
	c.demand.requests = nil
	c.demand.subscriptions = nil

	for id, ch := range c.watchers {
		delete(c.watchers, id)
		close(ch)
	}

	var err error
	if c.state == StateTracking {
		c.state = StateIdle
		err = c.provider.Stop()
	}
	c.mu.Unlock()

	c.dispatcher.Shutdown()
	c.watcherWG.Wait()
	c.logger.Info().Msg("Location coordinator closed")
	return err
}
