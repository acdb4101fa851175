package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	internalerrors "github.com/rcourtman/crauti-dashboard/internal/errors"
	"github.com/rcourtman/crauti-dashboard/internal/gatewayclient"
	"github.com/rcourtman/crauti-dashboard/internal/logging"
	"github.com/rcourtman/crauti-dashboard/internal/models"
	"github.com/rcourtman/crauti-dashboard/internal/normalize"
	"github.com/rs/zerolog"
)

// DefaultPollInterval matches the refresh rate of the dashboard UI.
const DefaultPollInterval = 5 * time.Second

var (
	// ErrStoreStopped is returned by Refresh after Stop.
	ErrStoreStopped = errors.New("store stopped")
	// ErrPollInProgress is returned by Refresh while another fetch is outstanding.
	ErrPollInProgress = errors.New("poll already in progress")
)

// State is the store's lifecycle and last-poll status.
type State string

const (
	StateIdle        State = "idle"
	StatePolling     State = "polling"
	StateUpdated     State = "updated"
	StateStale       State = "stale"
	StateUnreachable State = "unreachable"
	StateStopped     State = "stopped"
)

// Fetcher is the part of the gateway client the store needs.
type Fetcher interface {
	FetchConfig(ctx context.Context) (gatewayclient.Payload, error)
}

// NormalizeFunc turns a raw payload into the canonical config.
type NormalizeFunc func(body []byte) (models.GlobalConfig, error)

// StoreOptions configures a Store.
type StoreOptions struct {
	Interval  time.Duration
	Normalize NormalizeFunc
	Logger    zerolog.Logger
	Metrics   *PollMetrics
}

// Snapshot is one published view of the gateway config. Config is shared
// between readers and must not be modified; clone it first.
type Snapshot struct {
	Config      models.GlobalConfig `json:"config"`
	Revision    string              `json:"revision,omitempty"`
	FetchedAt   time.Time           `json:"fetchedAt"`
	ContentHash string              `json:"contentHash,omitempty"`
}

// Published reports whether s came from a successful poll.
func (s Snapshot) Published() bool {
	return s.Revision != ""
}

// Store polls the gateway on a fixed interval and holds the latest
// canonical config.
type Store struct {
	fetcher   Fetcher
	normalize NormalizeFunc
	interval  time.Duration
	logger    zerolog.Logger
	metrics   *PollMetrics
	freshness *StalenessTracker

	inFlight atomic.Bool

	mu          sync.RWMutex
	state       State
	snapshot    Snapshot
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	subscribers map[string]chan Snapshot

	loopDone chan struct{}
	stopOnce sync.Once
}

// NewStore creates a store. Nothing is fetched until Start or Refresh.
func NewStore(fetcher Fetcher, opts StoreOptions) *Store {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	norm := opts.Normalize
	if norm == nil {
		norm = normalize.Config
	}

	return &Store{
		fetcher:     fetcher,
		normalize:   norm,
		interval:    interval,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		freshness:   NewStalenessTracker(),
		state:       StateIdle,
		snapshot:    Snapshot{Config: models.EmptyConfig()},
		subscribers: make(map[string]chan Snapshot),
		loopDone:    make(chan struct{}),
	}
}

// Start fetches immediately and then on every interval until ctx is done or
// Stop is called. Calling Start more than once has no effect.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting gateway config polling")

	go s.run(ctx)
}

func (s *Store) run(ctx context.Context) {
	defer close(s.loopDone)

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a poll unless one is still outstanding. Ticks are never queued.
func (s *Store) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.RecordSkipped()
		if logging.IsLevelEnabled(zerolog.DebugLevel) {
			s.logger.Debug().Msg("Previous poll still in flight, skipping tick")
		}
		return
	}

	go func() {
		defer s.inFlight.Store(false)
		s.poll(ctx)
	}()
}

// Refresh runs one poll synchronously and returns the resulting state.
func (s *Store) Refresh(ctx context.Context) (State, error) {
	if s.isStopped() {
		return StateStopped, ErrStoreStopped
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.RecordSkipped()
		return s.State(), ErrPollInProgress
	}
	defer s.inFlight.Store(false)

	s.poll(ctx)
	return s.State(), nil
}

// Stop cancels future ticks and discards the result of any fetch still in
// flight. It is safe to call more than once and waits only for the tick
// loop, never for an outstanding fetch.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.state = StateStopped
		cancel := s.cancel
		started := s.started
		for id, ch := range s.subscribers {
			close(ch)
			delete(s.subscribers, id)
		}
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if started {
			<-s.loopDone
		} else {
			close(s.loopDone)
		}

		s.logger.Info().Msg("Gateway config polling stopped")
	})
}

// Done is closed once the tick loop has exited, or by Stop if the loop
// never started.
func (s *Store) Done() <-chan struct{} {
	return s.loopDone
}

type pollOutcome struct {
	state  State
	result string
	config models.GlobalConfig
	hash   string
	err    error
}

func (s *Store) poll(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	previous := s.state
	s.state = StatePolling
	s.mu.Unlock()

	start := time.Now()
	outcome := s.fetch(ctx)
	s.apply(outcome, previous, start)
}

func (s *Store) fetch(ctx context.Context) pollOutcome {
	payload, err := s.fetcher.FetchConfig(ctx)
	if err != nil {
		if !internalerrors.IsUnreachable(err) {
			err = internalerrors.WrapUnreachable("fetch_config", "", err)
		}
		return pollOutcome{state: StateUnreachable, result: resultUnreachable, err: err}
	}

	cfg, err := s.normalize(payload.Body)
	if err != nil {
		return pollOutcome{state: StateStale, result: resultStale, err: err}
	}
	if cfg.IsEmpty() {
		return pollOutcome{state: StateStale, result: resultStale}
	}

	return pollOutcome{
		state:  StateUpdated,
		result: resultUpdated,
		config: cfg,
		hash:   configHash(cfg, payload.Body),
	}
}

// apply publishes an outcome. Results that land after Stop are dropped.
func (s *Store) apply(outcome pollOutcome, previous State, start time.Time) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.metrics.RecordResult(resultDiscarded, now.Sub(start), nil)
		s.logger.Debug().
			Str("state", string(outcome.state)).
			Msg("Discarding poll result that arrived after stop")
		return
	}

	s.state = outcome.state

	switch outcome.state {
	case StateUnreachable:
		s.freshness.UpdateError(now, outcome.err)
		level := zerolog.DebugLevel
		if previous != StateUnreachable {
			level = zerolog.WarnLevel
		}
		s.logger.WithLevel(level).Err(outcome.err).Msg("Gateway admin API unreachable, keeping previous snapshot")

	case StateStale:
		s.freshness.UpdateError(now, outcome.err)
		if outcome.err != nil {
			s.logger.Warn().Err(outcome.err).Msg("Gateway returned malformed config, keeping previous snapshot")
		} else {
			s.logger.Debug().Msg("Gateway returned empty config, keeping previous snapshot")
		}

	case StateUpdated:
		s.freshness.UpdateSuccess(now, outcome.hash)
		s.metrics.RecordSuccess(now)
		if outcome.hash == s.snapshot.ContentHash {
			outcome.result = resultUnchanged
			break
		}
		s.publishLocked(Snapshot{
			Config:      outcome.config,
			Revision:    ulid.Make().String(),
			FetchedAt:   now,
			ContentHash: outcome.hash,
		})
	}

	s.metrics.RecordResult(outcome.result, now.Sub(start), outcome.err)
}

func (s *Store) publishLocked(snap Snapshot) {
	s.snapshot = snap
	s.metrics.RecordPublish(len(snap.Config.MountPoints))

	s.logger.Info().
		Str("revision", snap.Revision).
		Int("mount_points", len(snap.Config.MountPoints)).
		Int("middlewares", len(snap.Config.Middlewares)).
		Msg("Gateway config updated")

	for _, ch := range s.subscribers {
		offerLatest(ch, snap)
	}
}

// offerLatest delivers snap without blocking, replacing any snapshot the
// subscriber has not read yet.
func offerLatest(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Snapshot returns the latest published snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Config returns the latest published config.
func (s *Store) Config() models.GlobalConfig {
	return s.Snapshot().Config
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Freshness reports success and error timing for the polled gateway.
func (s *Store) Freshness() Freshness {
	return s.freshness.Snapshot(time.Now())
}

// Interval returns the configured poll interval.
func (s *Store) Interval() time.Duration {
	return s.interval
}

// Subscribe registers for new snapshots. The channel holds at most one
// pending snapshot and is primed with the current one if any was published.
// It is closed by Unsubscribe or Stop.
func (s *Store) Subscribe() (string, <-chan Snapshot) {
	id := uuid.NewString()
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		close(ch)
		return id, ch
	}
	if s.snapshot.Published() {
		ch <- s.snapshot
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Store) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// configHash fingerprints the canonical config so that formatting-only
// changes in the raw payload do not produce a new revision.
func configHash(cfg models.GlobalConfig, raw []byte) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return contentHash(raw)
	}
	return contentHash(data)
}
