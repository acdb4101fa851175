package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	internalerrors "github.com/rcourtman/crauti-dashboard/internal/errors"
	"github.com/rcourtman/crauti-dashboard/internal/gatewayclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	configA = `{"MountPoints":[{"Path":"/api","Upstream":"http://a"}]}`
	configB = `{"MountPoints":[{"Path":"/api","Upstream":"http://b"}]}`
)

type fetchResult struct {
	body string
	err  error
}

// scriptedFetcher returns queued results in order and repeats the last one.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

func (f *scriptedFetcher) FetchConfig(context.Context) (gatewayclient.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	if r.err != nil {
		return gatewayclient.Payload{}, r.err
	}
	return gatewayclient.Payload{Body: []byte(r.body)}, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingFetcher parks every call until release is closed.
type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
	body    string
}

func newBlockingFetcher(body string) *blockingFetcher {
	return &blockingFetcher{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
		body:    body,
	}
}

func (f *blockingFetcher) FetchConfig(context.Context) (gatewayclient.Payload, error) {
	f.entered <- struct{}{}
	<-f.release
	return gatewayclient.Payload{Body: []byte(f.body)}, nil
}

func unreachable() error {
	return internalerrors.WrapUnreachable("fetch_config", "http://gw/api/config", errors.New("connection refused"))
}

func newTestStore(f Fetcher) (*Store, *PollMetrics) {
	metrics := NewPollMetrics(nil)
	return NewStore(f, StoreOptions{Interval: time.Hour, Metrics: metrics}), metrics
}

func TestStoreInitialState(t *testing.T) {
	store, _ := newTestStore(&scriptedFetcher{results: []fetchResult{{body: configA}}})

	assert.Equal(t, StateIdle, store.State())
	snap := store.Snapshot()
	assert.False(t, snap.Published())
	assert.NotNil(t, snap.Config.MountPoints)
	assert.Empty(t, snap.Config.MountPoints)
	assert.Equal(t, DefaultPollInterval, NewStore(nil, StoreOptions{}).Interval())
}

func TestStoreRefreshPublishes(t *testing.T) {
	store, metrics := newTestStore(&scriptedFetcher{results: []fetchResult{{body: configA}}})

	state, err := store.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUpdated, state)

	snap := store.Snapshot()
	require.True(t, snap.Published())
	require.Len(t, snap.Config.MountPoints, 1)
	assert.Equal(t, "http://a", snap.Config.MountPoints[0].Upstream)
	assert.NotEmpty(t, snap.ContentHash)
	assert.False(t, snap.FetchedAt.IsZero())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.revisions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.mountPoints))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.pollResults.WithLabelValues(resultUpdated)))
}

func TestStoreIdenticalContentKeepsRevision(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{
		{body: configA},
		{body: "mountPoints:\n  - path: /api\n    upstream: http://a\n"},
	}}
	store, metrics := newTestStore(fetcher)

	_, err := store.Refresh(context.Background())
	require.NoError(t, err)
	first := store.Snapshot()

	state, err := store.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUpdated, state)

	second := store.Snapshot()
	assert.Equal(t, first.Revision, second.Revision)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.revisions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.pollResults.WithLabelValues(resultUnchanged)))
	assert.False(t, store.Freshness().LastSuccess.Before(first.FetchedAt))
}

func TestStoreCacheTTLEncodingsKeepRevision(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{
		{body: `{"Middlewares":{"Cache":{"Enabled":true,"TTL":60000000000}}}`},
		{body: "middlewares:\n  cache:\n    enabled: true\n    cacheTTL: 1m0s\n"},
	}}
	store, metrics := newTestStore(fetcher)

	_, err := store.Refresh(context.Background())
	require.NoError(t, err)
	first := store.Snapshot()

	_, err = store.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Revision, store.Snapshot().Revision)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.pollResults.WithLabelValues(resultUnchanged)))
}

func TestStoreUnreachableThenSuccessPublishesOnce(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{
		{err: unreachable()},
		{body: configA},
	}}
	store, _ := newTestStore(fetcher)
	_, updates := store.Subscribe()

	state, err := store.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUnreachable, state)
	assert.False(t, store.Snapshot().Published())
	assert.Equal(t, 1, store.Freshness().ConsecutiveFailures)

	select {
	case <-updates:
		t.Fatal("unreachable poll must not publish")
	default:
	}

	state, err = store.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUpdated, state)

	select {
	case snap := <-updates:
		assert.Equal(t, store.Snapshot().Revision, snap.Revision)
	default:
		t.Fatal("expected one published snapshot")
	}
	select {
	case <-updates:
		t.Fatal("expected exactly one published snapshot")
	default:
	}
	assert.Equal(t, 0, store.Freshness().ConsecutiveFailures)
}

func TestStoreKeepsPreviousSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		result  fetchResult
		state   State
		wantErr internalerrors.ErrorType
	}{
		{name: "unreachable", result: fetchResult{err: unreachable()}, state: StateUnreachable, wantErr: internalerrors.ErrorTypeUnreachable},
		{name: "plain error", result: fetchResult{err: errors.New("boom")}, state: StateUnreachable, wantErr: internalerrors.ErrorTypeUnreachable},
		{name: "malformed", result: fetchResult{body: "[1, 2"}, state: StateStale, wantErr: internalerrors.ErrorTypeMalformed},
		{name: "null", result: fetchResult{body: "null"}, state: StateStale},
		{name: "empty", result: fetchResult{body: ""}, state: StateStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &scriptedFetcher{results: []fetchResult{{body: configA}, tt.result}}
			store, metrics := newTestStore(fetcher)

			_, err := store.Refresh(context.Background())
			require.NoError(t, err)
			before := store.Snapshot()

			state, err := store.Refresh(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.state, state)
			assert.Equal(t, before, store.Snapshot())

			if tt.wantErr != "" {
				assert.Equal(t, 1.0, testutil.ToFloat64(metrics.pollErrors.WithLabelValues(string(tt.wantErr))))
				assert.NotEmpty(t, store.Freshness().LastErrorMessage)
			}
		})
	}
}

func TestStoreStopWhileInFlightDiscardsResult(t *testing.T) {
	fetcher := newBlockingFetcher(configA)
	store, metrics := newTestStore(fetcher)

	store.Start(context.Background())
	<-fetcher.entered

	store.Stop()
	assert.Equal(t, StateStopped, store.State())

	close(fetcher.release)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.pollResults.WithLabelValues(resultDiscarded)) == 1
	}, time.Second, 5*time.Millisecond)

	assert.False(t, store.Snapshot().Published())
	assert.Equal(t, StateStopped, store.State())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.revisions))
}

func TestStoreSkipsWhileInFlight(t *testing.T) {
	fetcher := newBlockingFetcher(configA)
	store, metrics := newTestStore(fetcher)

	store.Start(context.Background())
	<-fetcher.entered

	state, err := store.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrPollInProgress)
	assert.Equal(t, StatePolling, state)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.pollSkipped))

	close(fetcher.release)
	require.Eventually(t, func() bool {
		return store.State() == StateUpdated
	}, time.Second, 5*time.Millisecond)

	store.Stop()
}

func TestStoreTicksOnInterval(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{{body: configA}}}
	store := NewStore(fetcher, StoreOptions{Interval: 10 * time.Millisecond})

	store.Start(context.Background())
	require.Eventually(t, func() bool {
		return fetcher.callCount() >= 3
	}, time.Second, 5*time.Millisecond)

	store.Stop()
	<-store.Done()
	calls := fetcher.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, fetcher.callCount(), calls+1)
}

func TestStoreStartStopIdempotent(t *testing.T) {
	store, _ := newTestStore(&scriptedFetcher{results: []fetchResult{{body: configA}}})

	store.Stop()
	store.Stop()
	store.Start(context.Background())

	_, err := store.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrStoreStopped)
	assert.Equal(t, StateStopped, store.State())
}

func TestStoreStopsWithContext(t *testing.T) {
	store, _ := newTestStore(&scriptedFetcher{results: []fetchResult{{body: configA}}})
	ctx, cancel := context.WithCancel(context.Background())

	store.Start(ctx)
	cancel()

	select {
	case <-store.Done():
	case <-time.After(time.Second):
		t.Fatal("tick loop did not exit after context cancellation")
	}
	store.Stop()
}

func TestStoreSubscribeLatestWins(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{{body: configA}, {body: configB}}}
	store, _ := newTestStore(fetcher)
	id, updates := store.Subscribe()

	_, err := store.Refresh(context.Background())
	require.NoError(t, err)
	_, err = store.Refresh(context.Background())
	require.NoError(t, err)

	snap := <-updates
	assert.Equal(t, "http://b", snap.Config.MountPoints[0].Upstream)

	store.Unsubscribe(id)
	_, ok := <-updates
	assert.False(t, ok)
	store.Unsubscribe(id)
}

func TestStoreSubscribePrimedAndClosedOnStop(t *testing.T) {
	store, _ := newTestStore(&scriptedFetcher{results: []fetchResult{{body: configA}}})
	_, err := store.Refresh(context.Background())
	require.NoError(t, err)

	_, updates := store.Subscribe()
	snap := <-updates
	assert.Equal(t, store.Snapshot().Revision, snap.Revision)

	store.Stop()
	_, ok := <-updates
	assert.False(t, ok)

	_, late := store.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestPollMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPollMetrics(reg)
	store := NewStore(&scriptedFetcher{results: []fetchResult{{body: configA}}}, StoreOptions{Metrics: metrics})

	_, err := store.Refresh(context.Background())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	total := byName["crauti_dashboard_poll_total"]
	require.NotNil(t, total)
	require.Len(t, total.GetMetric(), 1)
	assert.Equal(t, 1.0, total.GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, resultUpdated, total.GetMetric()[0].GetLabel()[0].GetValue())

	lastSuccess := byName["crauti_dashboard_last_success_timestamp"]
	require.NotNil(t, lastSuccess)
	assert.Greater(t, lastSuccess.GetMetric()[0].GetGauge().GetValue(), 0.0)

	assert.NotNil(t, byName["crauti_dashboard_snapshot_revisions_total"])
	assert.NotNil(t, byName["crauti_dashboard_poll_duration_seconds"])
}

func TestPollMetricsNilSafe(t *testing.T) {
	var metrics *PollMetrics
	metrics.RecordResult(resultUpdated, time.Second, nil)
	metrics.RecordSkipped()
	metrics.RecordSuccess(time.Now())
	metrics.RecordPublish(3)
}
