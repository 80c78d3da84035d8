package locator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/location-agent/internal/mocks"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type requestOutcome struct {
	sample location.Sample
	err    error
}

// requestAsync runs RequestOnce in a goroutine and waits until it is registered.
func requestAsync(t *testing.T, c *Coordinator, ctx context.Context, opts RequestOptions) <-chan requestOutcome {
	t.Helper()
	before := c.PendingRequests()
	out := make(chan requestOutcome, 1)
	go func() {
		sample, err := c.RequestOnce(ctx, opts)
		out <- requestOutcome{sample: sample, err: err}
	}()
	require.Eventually(t, func() bool { return c.PendingRequests() == before+1 }, time.Second, time.Millisecond)
	return out
}

func awaitOutcome(t *testing.T, out <-chan requestOutcome) requestOutcome {
	t.Helper()
	select {
	case res := <-out:
		return res
	case <-time.After(time.Second):
		t.Fatal("request did not resolve")
		return requestOutcome{}
	}
}

func TestCoordinator_RequestResolvesWithFirstQualifyingSample(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	out := requestAsync(t, c, context.Background(), RequestOptions{Timeout: 8 * time.Second})
	assert.Equal(t, StateTracking, c.State())
	p.AssertNumberOfCalls(t, "Start", 1)

	clock.Advance(2 * time.Second)
	sample := sampleAt(52.52, 13.40, 50, clock.Now())
	p.Emit(sample)

	res := awaitOutcome(t, out)
	require.NoError(t, res.err)
	assert.Equal(t, sample, res.sample)
	assert.Equal(t, 0, c.PendingRequests())
	assert.Equal(t, StateIdle, c.State())
	p.AssertNumberOfCalls(t, "Stop", 1)
}

func TestCoordinator_RequestTimesOutWithoutSamples(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	out := requestAsync(t, c, context.Background(), RequestOptions{Timeout: 3 * time.Second})

	clock.Advance(2 * time.Second)
	select {
	case <-out:
		t.Fatal("request resolved before its timeout")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Second)
	res := awaitOutcome(t, out)
	assert.ErrorIs(t, res.err, ErrCannotFetchLocation)
	assert.Eventually(t, func() bool { return c.State() == StateIdle }, time.Second, time.Millisecond)
	p.AssertNumberOfCalls(t, "Stop", 1)
}

func TestCoordinator_TimeoutFallsBackToLastKnownSample(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	out := requestAsync(t, c, context.Background(), RequestOptions{Timeout: 3 * time.Second, DesiredAccuracy: 10})

	coarse := sampleAt(1, 1, 65, clock.Now())
	p.Emit(coarse)
	assert.Equal(t, 1, c.PendingRequests(), "a coarse sample leaves the request pending")

	clock.Advance(3 * time.Second)
	res := awaitOutcome(t, out)
	require.NoError(t, res.err)
	assert.Equal(t, coarse, res.sample)
}

func TestCoordinator_LowAccuracySampleNeverSatisfies(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	out := requestAsync(t, c, context.Background(), RequestOptions{DesiredAccuracy: 20})

	horizontal := sampleAt(1, 1, 25, clock.Now())
	p.Emit(horizontal)
	vertical := sampleAt(1, 1, 5, clock.Now())
	vertical.VerticalAccuracy = 21
	p.Emit(vertical)
	assert.Equal(t, 1, c.PendingRequests())

	good := sampleAt(1, 1, 20, clock.Now())
	p.Emit(good)
	res := awaitOutcome(t, out)
	require.NoError(t, res.err)
	assert.Equal(t, good, res.sample)
}

func TestCoordinator_BatchUsesLastSample(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	out := requestAsync(t, c, context.Background(), RequestOptions{})
	older := sampleAt(1, 1, 5, clock.Now())
	newer := sampleAt(2, 2, 5, clock.Now())
	p.Emit(older, newer)

	res := awaitOutcome(t, out)
	assert.Equal(t, newer, res.sample)
}

func TestCoordinator_SatisfiedRequestsReceiveOneSample(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	precise := requestAsync(t, c, context.Background(), RequestOptions{DesiredAccuracy: 10})
	relaxed := requestAsync(t, c, context.Background(), RequestOptions{DesiredAccuracy: 100})

	first := sampleAt(1, 1, 50, clock.Now())
	p.Emit(first)
	assert.Equal(t, 1, c.PendingRequests())

	second := sampleAt(2, 2, 5, clock.Now())
	p.Emit(second)

	assert.Equal(t, first, awaitOutcome(t, relaxed).sample)
	assert.Equal(t, second, awaitOutcome(t, precise).sample)
}

func TestCoordinator_CachedSampleShortCircuits(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	rec := &recorder{}
	id, err := c.Subscribe(rec, SubscriptionOptions{})
	require.NoError(t, err)
	sample := sampleAt(1, 1, 5, clock.Now())
	p.Emit(sample)

	clock.Advance(5 * time.Second)
	got, err := c.RequestOnce(context.Background(), RequestOptions{Timeout: 8 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, sample, got)
	assert.Equal(t, 0, c.PendingRequests())

	// Forced requests always go to the provider.
	out := requestAsync(t, c, context.Background(), RequestOptions{Timeout: 8 * time.Second, Force: true})
	fresh := sampleAt(2, 2, 5, clock.Now())
	p.Emit(fresh)
	assert.Equal(t, fresh, awaitOutcome(t, out).sample)

	// A cached sample older than the request's window does not short-circuit.
	require.True(t, c.Unsubscribe(id))
	clock.Advance(time.Minute)
	stale := requestAsync(t, c, context.Background(), RequestOptions{Timeout: 8 * time.Second})
	p.Emit(sampleAt(3, 3, 5, clock.Now()))
	assert.Equal(t, 3.0, awaitOutcome(t, stale).sample.Latitude)
	p.AssertNumberOfCalls(t, "Start", 2)
}

func TestCoordinator_ServiceDisabledFailsFast(t *testing.T) {
	p := new(mocks.MockProvider)
	p.On("SetDesiredAccuracy", mock.Anything).Return()
	p.On("SetDistanceFilter", mock.Anything).Return()
	p.On("AuthorizationStatus").Return(location.StatusDenied)
	p.On("ServicesEnabled").Return(true)
	c, _ := newTestCoordinator(t, p, Options{})

	_, err := c.RequestOnce(context.Background(), RequestOptions{Timeout: time.Second})
	assert.ErrorIs(t, err, ErrServiceDisabled)
	assert.Equal(t, 0, c.PendingRequests())
	p.AssertNotCalled(t, "Start")

	assert.True(t, c.IsStatusDetermined())
	assert.False(t, c.IsLocationAvailable())
}

func TestCoordinator_ServicesOffFailsFast(t *testing.T) {
	p := new(mocks.MockProvider)
	p.On("SetDesiredAccuracy", mock.Anything).Return()
	p.On("SetDistanceFilter", mock.Anything).Return()
	p.On("AuthorizationStatus").Return(location.StatusAuthorizedAlways)
	p.On("ServicesEnabled").Return(false)
	c, _ := newTestCoordinator(t, p, Options{})

	_, err := c.Locate(context.Background(), RequestOptions{})
	assert.ErrorIs(t, err, ErrServiceDisabled)
}

func TestCoordinator_StrictestAccuracyConfigured(t *testing.T) {
	p := newAuthorizedProvider()
	c, _ := newTestCoordinator(t, p, Options{})

	_, err := c.Subscribe(&recorder{}, SubscriptionOptions{DesiredAccuracy: 20, DistanceFilter: 25})
	require.NoError(t, err)
	assert.Equal(t, ProviderConfig{DesiredAccuracy: 20, DistanceFilter: 25}, c.ProviderConfig())

	requestAsync(t, c, context.Background(), RequestOptions{DesiredAccuracy: 10})
	requestAsync(t, c, context.Background(), RequestOptions{DesiredAccuracy: 10})

	assert.Equal(t, ProviderConfig{DesiredAccuracy: 10, DistanceFilter: 0}, c.ProviderConfig())
	p.AssertCalled(t, "SetDesiredAccuracy", 10.0)
	p.AssertNumberOfCalls(t, "Start", 1)
}

func TestCoordinator_ConfigurationWrittenOnlyOnChange(t *testing.T) {
	p := newAuthorizedProvider()
	c, _ := newTestCoordinator(t, p, Options{DefaultDesiredAccuracy: 100})

	// New writes the initial configuration once.
	p.AssertNumberOfCalls(t, "SetDesiredAccuracy", 1)
	p.AssertNumberOfCalls(t, "SetDistanceFilter", 1)

	a, err := c.Subscribe(&recorder{}, SubscriptionOptions{})
	require.NoError(t, err)
	b, err := c.Subscribe(&recorder{}, SubscriptionOptions{})
	require.NoError(t, err)
	c.Unsubscribe(a)

	p.AssertNumberOfCalls(t, "SetDesiredAccuracy", 1)
	p.AssertNumberOfCalls(t, "SetDistanceFilter", 1)

	c.Unsubscribe(b)
	p.AssertNumberOfCalls(t, "SetDesiredAccuracy", 1)
}

func TestCoordinator_LegacyAccuracyAggregation(t *testing.T) {
	p := newAuthorizedProvider()
	c, _ := newTestCoordinator(t, p, Options{DefaultDesiredAccuracy: 100, LegacyAccuracyAggregation: true})

	_, err := c.Subscribe(&recorder{}, SubscriptionOptions{DesiredAccuracy: 30})
	require.NoError(t, err)
	assert.Equal(t, 30.0, c.ProviderConfig().DesiredAccuracy)

	_, err = c.Subscribe(&recorder{}, SubscriptionOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.ProviderConfig().DesiredAccuracy)
}

func TestCoordinator_SubscriptionLifecycle(t *testing.T) {
	p := newAuthorizedProvider()
	c, _ := newTestCoordinator(t, p, Options{})
	assert.Equal(t, StateIdle, c.State())

	a, err := c.Subscribe(&recorder{}, SubscriptionOptions{})
	require.NoError(t, err)
	b, err := c.Subscribe(&recorder{}, SubscriptionOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, StateTracking, c.State())
	p.AssertNumberOfCalls(t, "Start", 1)

	assert.True(t, c.Unsubscribe(a))
	assert.Equal(t, StateTracking, c.State())
	assert.False(t, c.Unsubscribe(a), "second unsubscribe is a no-op")

	assert.True(t, c.Unsubscribe(b))
	assert.Equal(t, StateIdle, c.State())
	p.AssertNumberOfCalls(t, "Stop", 1)
	assert.False(t, c.Unsubscribe("unknown"))
}

func TestCoordinator_SubscriptionFanout(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	everything := &recorder{}
	precise := &recorder{}
	_, err := c.Subscribe(everything, SubscriptionOptions{})
	require.NoError(t, err)
	_, err = c.Subscribe(precise, SubscriptionOptions{DesiredAccuracy: 10})
	require.NoError(t, err)

	p.Emit(sampleAt(1, 1, 50, clock.Now()))
	p.Emit(sampleAt(2, 2, 5, clock.Now()))

	require.Eventually(t, func() bool { return everything.count() == 2 && precise.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 2.0, precise.received()[0].Latitude)
}

func TestCoordinator_DistanceFilterScenario(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	rec := &recorder{}
	_, err := c.Subscribe(rec, SubscriptionOptions{DistanceFilter: 50})
	require.NoError(t, err)

	p.Emit(sampleAt(0, 0, 5, clock.Now()))
	p.Emit(sampleAt(metersNorth(30), 0, 5, clock.Now()))
	p.Emit(sampleAt(metersNorth(80), 0, 5, clock.Now()))

	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)
	assert.InDelta(t, metersNorth(80), rec.received()[1].Latitude, 1e-12)
}

func TestCoordinator_MinIntervalUnderFlood(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	rec := &recorder{}
	_, err := c.Subscribe(rec, SubscriptionOptions{MinInterval: 5 * time.Second})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		p.Emit(sampleAt(float64(i), 0, 5, clock.Now()))
	}
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	assert.Never(t, func() bool { return rec.count() > 1 }, 30*time.Millisecond, 5*time.Millisecond)

	clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 19.0, rec.received()[1].Latitude)
}

func TestCoordinator_MaxIntervalHeartbeat(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	rec := &recorder{}
	_, err := c.Subscribe(rec, SubscriptionOptions{MaxInterval: 10 * time.Second})
	require.NoError(t, err)

	sample := sampleAt(1, 1, 5, clock.Now())
	p.Emit(sample)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)

	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, sample, rec.received()[1])
}

func TestCoordinator_InvalidSubscription(t *testing.T) {
	p := newAuthorizedProvider()
	c, _ := newTestCoordinator(t, p, Options{})

	_, err := c.Subscribe(nil, SubscriptionOptions{})
	assert.ErrorIs(t, err, ErrInvalidSubscription)

	_, err = c.Subscribe(&recorder{}, SubscriptionOptions{MinInterval: time.Minute, MaxInterval: time.Second})
	assert.ErrorIs(t, err, ErrInvalidSubscription)
	assert.Equal(t, 0, c.Subscriptions())
}

func TestCoordinator_ObserverMayUnsubscribeFromCallback(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	var id SubscriptionID
	var calls atomic.Int32
	done := make(chan struct{})
	var err error
	id, err = c.Subscribe(ObserverFunc(func(location.Sample) {
		if calls.Add(1) == 1 {
			c.Unsubscribe(id)
			close(done)
		}
	}), SubscriptionOptions{})
	require.NoError(t, err)

	p.Emit(sampleAt(1, 1, 5, clock.Now()))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer was not called")
	}
	p.Emit(sampleAt(2, 2, 5, clock.Now()))

	assert.Eventually(t, func() bool { return c.State() == StateIdle }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCoordinator_CancelWithdrawsRequest(t *testing.T) {
	p := newAuthorizedProvider()
	c, _ := newTestCoordinator(t, p, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	out := requestAsync(t, c, ctx, RequestOptions{Timeout: time.Minute})
	cancel()

	res := awaitOutcome(t, out)
	assert.ErrorIs(t, res.err, context.Canceled)
	assert.Equal(t, 0, c.PendingRequests())
	assert.Equal(t, StateIdle, c.State())
}

func TestCoordinator_StartFailureIsReported(t *testing.T) {
	p := new(mocks.MockProvider)
	p.On("SetDesiredAccuracy", mock.Anything).Return()
	p.On("SetDistanceFilter", mock.Anything).Return()
	p.On("AuthorizationStatus").Return(location.StatusAuthorizedAlways)
	p.On("ServicesEnabled").Return(true)
	p.On("Start").Return(errors.New("port busy"))
	c, _ := newTestCoordinator(t, p, Options{})

	_, err := c.RequestOnce(context.Background(), RequestOptions{Timeout: time.Second})
	assert.ErrorContains(t, err, "port busy")
	assert.Equal(t, 0, c.PendingRequests())

	_, err = c.Subscribe(&recorder{}, SubscriptionOptions{})
	assert.ErrorContains(t, err, "port busy")
	assert.Equal(t, 0, c.Subscriptions())
	assert.Equal(t, StateIdle, c.State())
}

func TestCoordinator_AuthorizationFlow(t *testing.T) {
	var status atomic.Int32
	status.Store(int32(location.StatusNotDetermined))
	current := func() location.AuthorizationStatus { return location.AuthorizationStatus(status.Load()) }

	p := new(mocks.MockProvider)
	p.On("SetDesiredAccuracy", mock.Anything).Return()
	p.On("SetDistanceFilter", mock.Anything).Return()
	p.On("Start").Return(nil)
	p.On("Stop").Return(nil)
	p.On("ServicesEnabled").Return(true)
	p.On("AuthorizationStatus").Return(current)
	p.On("RequestAuthorization", location.UsageWhenInUse).Return(nil).Run(func(mock.Arguments) {
		go func() {
			status.Store(int32(location.StatusAuthorizedWhenInUse))
			p.ChangeAuthorization(location.StatusAuthorizedWhenInUse)
		}()
	})

	c, clock := newTestCoordinator(t, p, Options{Usage: location.UsageWhenInUse})
	assert.False(t, c.IsStatusDetermined())

	watchCtx, stopWatching := context.WithCancel(context.Background())
	changes := c.WatchAuthorization(watchCtx)

	out := make(chan requestOutcome, 1)
	go func() {
		sample, err := c.Locate(context.Background(), RequestOptions{Timeout: 10 * time.Second})
		out <- requestOutcome{sample: sample, err: err}
	}()

	select {
	case s := <-changes:
		assert.Equal(t, location.StatusAuthorizedWhenInUse, s)
	case <-time.After(time.Second):
		t.Fatal("authorization change was not broadcast")
	}
	require.Eventually(t, func() bool { return c.PendingRequests() == 1 }, time.Second, time.Millisecond)

	sample := sampleAt(1, 1, 5, clock.Now())
	p.Emit(sample)
	res := awaitOutcome(t, out)
	require.NoError(t, res.err)
	assert.Equal(t, sample, res.sample)

	stopWatching()
	assert.Eventually(t, func() bool {
		select {
		case _, open := <-changes:
			return !open
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	p.AssertCalled(t, "RequestAuthorization", location.UsageWhenInUse)
}

func TestCoordinator_PermissionPromptUnavailable(t *testing.T) {
	p := new(mocks.MockProvider)
	p.On("SetDesiredAccuracy", mock.Anything).Return()
	p.On("SetDistanceFilter", mock.Anything).Return()
	p.On("AuthorizationStatus").Return(location.StatusNotDetermined)
	c, _ := newTestCoordinator(t, p, Options{})

	_, err := c.RequestAuthorization(context.Background())
	assert.ErrorIs(t, err, ErrPermissionPromptUnavailable)

	_, err = c.Locate(context.Background(), RequestOptions{})
	assert.ErrorIs(t, err, ErrPermissionPromptUnavailable)
	p.AssertNotCalled(t, "RequestAuthorization", mock.Anything)
}

func TestCoordinator_AwaitAuthorizationHonorsContext(t *testing.T) {
	p := new(mocks.MockProvider)
	p.On("SetDesiredAccuracy", mock.Anything).Return()
	p.On("SetDistanceFilter", mock.Anything).Return()
	p.On("AuthorizationStatus").Return(location.StatusNotDetermined)
	c, _ := newTestCoordinator(t, p, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.AwaitAuthorization(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCoordinator_RevokedAuthorizationFailsPendingRequests(t *testing.T) {
	p := newAuthorizedProvider()
	c, _ := newTestCoordinator(t, p, Options{})

	out := requestAsync(t, c, context.Background(), RequestOptions{})
	p.ChangeAuthorization(location.StatusDenied)

	res := awaitOutcome(t, out)
	assert.ErrorIs(t, res.err, ErrServiceDisabled)
	assert.Equal(t, StateIdle, c.State())
}

func TestCoordinator_Close(t *testing.T) {
	p := newAuthorizedProvider()
	c := New(p, Options{Clock: clockwork.NewFakeClockAt(epoch)}, zerolog.Nop())

	out := requestAsync(t, c, context.Background(), RequestOptions{})
	_, err := c.Subscribe(&recorder{}, SubscriptionOptions{MaxInterval: time.Second})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, awaitOutcome(t, out).err, ErrCoordinatorClosed)
	assert.Equal(t, StateIdle, c.State())
	p.AssertNumberOfCalls(t, "Stop", 1)

	_, err = c.RequestOnce(context.Background(), RequestOptions{})
	assert.ErrorIs(t, err, ErrCoordinatorClosed)
	_, err = c.Subscribe(&recorder{}, SubscriptionOptions{})
	assert.ErrorIs(t, err, ErrCoordinatorClosed)

	_, open := <-c.WatchAuthorization(context.Background())
	assert.False(t, open)
	assert.NoError(t, c.Close())
}

func TestCoordinator_MaxSampleAccuracyGate(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{MaxSampleAccuracy: 100})

	rec := &recorder{}
	_, err := c.Subscribe(rec, SubscriptionOptions{})
	require.NoError(t, err)
	out := requestAsync(t, c, context.Background(), RequestOptions{Timeout: 10 * time.Second})

	coarse := sampleAt(1, 1, 500, clock.Now())
	p.Emit(coarse)
	vertical := sampleAt(1, 1, 10, clock.Now())
	vertical.VerticalAccuracy = 101
	p.Emit(vertical)

	last, ok := c.LastKnownSample()
	require.True(t, ok)
	assert.Equal(t, vertical, last, "coarse samples are still recorded")
	assert.Equal(t, 1, c.PendingRequests())
	assert.Never(t, func() bool { return rec.count() > 0 }, 30*time.Millisecond, 5*time.Millisecond)

	good := sampleAt(2, 2, 100, clock.Now())
	p.Emit(good)
	res := awaitOutcome(t, out)
	require.NoError(t, res.err)
	assert.Equal(t, good, res.sample)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, good, rec.received()[0])
}

func TestCoordinator_CoarseSamplesRoutedByDefault(t *testing.T) {
	p := newAuthorizedProvider()
	c, clock := newTestCoordinator(t, p, Options{})

	rec := &recorder{}
	_, err := c.Subscribe(rec, SubscriptionOptions{})
	require.NoError(t, err)

	p.Emit(sampleAt(1, 1, 500, clock.Now()))
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
}

func TestCoordinator_CloseReleasesAuthorizationWatchers(t *testing.T) {
	p := newAuthorizedProvider()
	c := New(p, Options{Clock: clockwork.NewFakeClockAt(epoch)}, zerolog.Nop())

	changes := c.WatchAuthorization(context.Background())

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close is waiting on a watcher that never exits")
	}

	_, open := <-changes
	assert.False(t, open)
}
