// Package poller owns the request/retry/backoff state machine that keeps the
// zone snapshot current.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/touchline-tools/touchlined/internal/models"
	"github.com/touchline-tools/touchlined/internal/touchline"
)

// State is the coordinator's position in the poll cycle.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateRetryWait
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateRetryWait:
		return "retry_wait"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Fetcher abstracts the device client for the coordinator.
type Fetcher interface {
	FetchRegisters(ctx context.Context, zoneCount int) (map[string]string, error)
}

// Sink receives a copy of the snapshot after every successful poll.
type Sink interface {
	Publish(snapshot models.ZoneSnapshot)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(snapshot models.ZoneSnapshot)

func (f SinkFunc) Publish(snapshot models.ZoneSnapshot) { f(snapshot) }

// Config carries the coordinator's tuning knobs.
type Config struct {
	ZoneCount      int
	RetryThreshold int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Poller polls the controller, owns the zone snapshot, and fans successful
// polls out to its sinks. Exactly one poll is in flight at a time; triggers
// arriving while one runs are dropped.
type Poller struct {
	fetcher Fetcher
	cfg     Config
	logger  *logrus.Logger
	sinks   []Sink
	metrics *Metrics
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	snapshot   models.ZoneSnapshot
	state      State
	inFlight   bool
	backoff    time.Duration
	retryTimer *time.Timer

	// generation increments on every successful poll; response caches key
	// off it to invalidate stale entries.
	generation uint64
}

// Option configures a Poller.
type Option func(*Poller)

// WithSinks registers snapshot consumers (history store, MQTT publisher).
func WithSinks(sinks ...Sink) Option {
	return func(p *Poller) { p.sinks = append(p.sinks, sinks...) }
}

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New creates a poll coordinator. Call Start before triggering polls.
func New(fetcher Fetcher, cfg Config, logger *logrus.Logger, opts ...Option) *Poller {
	p := &Poller{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		snapshot: models.ZoneSnapshot{
			Readings: make(map[string]models.ZoneReading),
		},
		backoff: cfg.BackoffInitial,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start binds the coordinator to a lifetime context. Cancelling it aborts
// any in-flight request and pending backoff timer.
func (p *Poller) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
}

// Stop cancels the coordinator and waits for an in-flight poll to unwind.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// TriggerPoll starts a poll cycle unless one is already running. Returns
// whether a poll was actually started; a dropped trigger is not an error.
func (p *Poller) TriggerPoll() bool {
	if p.ctx == nil || p.ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		p.logger.Debug("Poll already in flight, trigger dropped")
		return false
	}
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
	p.inFlight = true
	p.state = StatePolling
	p.mu.Unlock()

	p.wg.Add(1)
	go p.poll()
	return true
}

func (p *Poller) poll() {
	defer p.wg.Done()

	values, err := p.fetcher.FetchRegisters(p.ctx, p.cfg.ZoneCount)

	// A cancelled poll must not touch the snapshot at all.
	if p.ctx.Err() != nil || errors.Is(err, context.Canceled) {
		p.mu.Lock()
		p.inFlight = false
		p.state = StateIdle
		p.mu.Unlock()
		return
	}

	if err != nil {
		p.handleFailure(err)
		return
	}
	p.handleSuccess(values)
}

func (p *Poller) handleSuccess(values map[string]string) {
	observedAt := p.now()
	readings, status := touchline.Normalize(values, p.cfg.ZoneCount, observedAt, p.logger)

	snapshot := models.ZoneSnapshot{
		Readings:    readings,
		System:      status,
		LastSuccess: observedAt,
	}

	p.mu.Lock()
	p.snapshot = snapshot
	p.state = StateIdle
	p.inFlight = false
	p.backoff = p.cfg.BackoffInitial
	p.generation++
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"zones": len(readings),
		"state": StateIdle.String(),
	}).Debug("Poll succeeded")

	if p.metrics != nil {
		p.metrics.ObserveSuccess(snapshot)
	}
	for _, sink := range p.sinks {
		sink.Publish(snapshot.Clone())
	}
}

func (p *Poller) handleFailure(err error) {
	p.mu.Lock()

	// Previous readings stay visible, stale but available.
	snapshot := p.snapshot.Clone()
	snapshot.ConsecutiveFailures++

	var delay time.Duration
	if snapshot.ConsecutiveFailures >= p.cfg.RetryThreshold {
		snapshot.Offline = true
		p.state = StateOffline
	} else {
		p.state = StateRetryWait
		delay = p.backoff
		p.backoff = min(p.backoff*2, p.cfg.BackoffMax)
	}

	p.snapshot = snapshot
	p.inFlight = false
	failures := snapshot.ConsecutiveFailures
	state := p.state

	if p.state == StateRetryWait {
		p.retryTimer = time.AfterFunc(delay, func() { p.TriggerPoll() })
	}
	p.mu.Unlock()

	p.logger.WithError(err).WithFields(logrus.Fields{
		"consecutive_failures": failures,
		"state":                state.String(),
		"retry_in":             delay.String(),
	}).Warn("Poll failed")

	if p.metrics != nil {
		p.metrics.ObserveFailure(snapshot)
	}
}

// Snapshot returns a copy of the latest known-good state.
func (p *Poller) Snapshot() models.ZoneSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.Clone()
}

// State reports the coordinator's current state.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Generation returns the successful-poll counter used for cache keys.
func (p *Poller) Generation() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation
}
