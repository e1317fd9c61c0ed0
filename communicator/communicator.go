// Package communicator keeps the cached status of the automation box in sync
// with the remote box and relays house mode changes to it.
//
// A Communicator owns a single background goroutine that polls the box on a
// long interval, wakes up immediately when a mode change is requested,
// coalesces rapid requests into one write and polls on a short interval for a
// few cycles after each write so the panel converges on the box's new state.
package communicator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/timzifer/infodisplay/box"
	"github.com/timzifer/infodisplay/telemetry"
)

const (
	// DefaultNormalInterval is the idle poll interval.
	DefaultNormalInterval = 30 * time.Second
	// DefaultFastInterval is the poll interval right after a mode change.
	DefaultFastInterval = time.Second
	// DefaultFastRefreshCycles is the number of fast polls following a mode change.
	DefaultFastRefreshCycles = 5
)

// ErrAlreadyRunning is returned by Start when the background loop is active.
var ErrAlreadyRunning = errors.New("communicator already running")

// Option customises a Communicator.
type Option func(*Communicator)

// WithLogger sets the logger used for loop diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Communicator) {
		c.logger = logger
	}
}

// WithTelemetry installs a metrics collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(c *Communicator) {
		if collector == nil {
			collector = telemetry.Noop()
		}
		c.telemetry = collector
	}
}

// WithNormalInterval sets the idle poll interval.
func WithNormalInterval(d time.Duration) Option {
	return func(c *Communicator) {
		c.normalInterval = d
	}
}

// WithFastInterval sets the poll interval used after a mode change.
func WithFastInterval(d time.Duration) Option {
	return func(c *Communicator) {
		c.fastInterval = d
	}
}

// WithFastRefreshCycles sets how many fast polls follow a mode change.
func WithFastRefreshCycles(n int) Option {
	return func(c *Communicator) {
		c.fastCycles = n
	}
}

// WithStatusListener registers a callback invoked from the loop after every
// refresh. Listeners must not block.
func WithStatusListener(fn func(box.Status)) Option {
	return func(c *Communicator) {
		if fn != nil {
			c.listeners = append(c.listeners, fn)
		}
	}
}

type modeRequest struct {
	id   uuid.UUID
	mode box.HouseMode
	at   time.Time
}

// run holds the signalling channels of one background loop.
type run struct {
	// wake is a single-slot notification; sends never block.
	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newRun() *run {
	return &run{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (r *run) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *run) requestStop() {
	r.once.Do(func() { close(r.stop) })
}

// Communicator synchronises the cached box status with the remote box.
type Communicator struct {
	provider  box.Provider
	logger    zerolog.Logger
	telemetry telemetry.Collector
	listeners []func(box.Status)

	normalInterval time.Duration
	fastInterval   time.Duration
	fastCycles     int

	// providerMu serialises every call into the provider and guards readSeq.
	providerMu sync.Mutex
	readSeq    uint64

	// publishMu orders snapshot stores with their listener dispatch.
	publishMu sync.Mutex

	mu        sync.Mutex
	status    box.Status
	statusSeq uint64
	pending *modeRequest
	current *run
	last    *run
	fast    int
}

// New creates a stopped communicator for the provider.
func New(provider box.Provider, opts ...Option) *Communicator {
	c := &Communicator{
		provider:       provider,
		logger:         zerolog.Nop(),
		telemetry:      telemetry.Noop(),
		normalInterval: DefaultNormalInterval,
		fastInterval:   DefaultFastInterval,
		fastCycles:     DefaultFastRefreshCycles,
		status:         box.Invalid(time.Time{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// CurrentStatus returns the most recently completed snapshot without touching
// the box. Before the first read it returns an invalid snapshot.
func (c *Communicator) CurrentStatus() box.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.Clone()
}

// RequestModeChange records mode as the pending request and wakes the loop.
// A request that has not been applied yet is replaced.
// Modes that cannot be written are dropped and leave the pending slot as is.
func (c *Communicator) RequestModeChange(mode box.HouseMode) {
	if !mode.Valid() {
		c.logger.Warn().Str("mode", string(mode)).Msg("ignoring request for invalid house mode")
		return
	}
	req := &modeRequest{id: uuid.New(), mode: mode, at: time.Now()}
	c.mu.Lock()
	replaced := c.pending
	c.pending = req
	r := c.current
	c.mu.Unlock()

	logger := c.logger.With().Str("request", req.id.String()).Stringer("mode", mode).Logger()
	if replaced != nil {
		c.telemetry.IncCoalesced()
		logger.Debug().Str("replaced", replaced.id.String()).Stringer("replaced_mode", replaced.mode).Msg("pending mode request replaced")
	} else {
		logger.Debug().Msg("mode change requested")
	}
	if r != nil {
		r.signal()
	}
}

// Refresh reads the box synchronously and replaces the cached snapshot.
// A failed read stores an invalid snapshot. When a read that started later
// has already been stored, the result is discarded and the cached snapshot
// is returned instead.
func (c *Communicator) Refresh() box.Status {
	c.logger.Debug().Msg("refreshing box status")
	start := time.Now()
	status, seq, err := c.read()
	c.telemetry.ObserveRead(err == nil, time.Since(start))
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to read box status")
		status = box.Invalid(time.Now())
	} else {
		status.Valid = true
		if status.ReadAt.IsZero() {
			status.ReadAt = time.Now()
		}
	}
	status = status.Clone()

	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.mu.Lock()
	if seq < c.statusSeq {
		cached, cachedSeq := c.status.Clone(), c.statusSeq
		c.mu.Unlock()
		c.logger.Debug().Uint64("read", seq).Uint64("cached", cachedSeq).Msg("discarding outdated box status")
		return cached
	}
	c.status = status
	c.statusSeq = seq
	c.mu.Unlock()

	c.telemetry.SetStatusValid(status.Valid)
	for _, listener := range c.listeners {
		listener(status.Clone())
	}
	return status.Clone()
}

// Start refreshes the snapshot once and launches the background loop.
func (c *Communicator) Start() error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	r := newRun()
	if c.pending != nil {
		r.signal()
	}
	c.current = r
	c.last = r
	c.mu.Unlock()

	c.logger.Info().Msg("starting box background management")
	c.Refresh()
	go c.loop(r)
	return nil
}

// Stop asks the background loop to exit and returns immediately. It is safe
// to call when the loop never started or was already stopped. A Provider call
// that is in flight is not interrupted.
func (c *Communicator) Stop() {
	c.mu.Lock()
	r := c.current
	c.current = nil
	c.mu.Unlock()
	if r == nil {
		return
	}
	c.logger.Info().Msg("stopping box background management")
	r.requestStop()
	r.signal()
}

// Running reports whether a background loop is active.
func (c *Communicator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Done returns a channel closed once the most recently started loop exited.
// When the communicator never started the channel is already closed.
func (c *Communicator) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.last.done
}

// FastRefreshRemaining returns the number of accelerated polls left.
func (c *Communicator) FastRefreshRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fast
}

func (c *Communicator) loop(r *run) {
	defer close(r.done)
	pace := newCadence(c.normalInterval, c.fastInterval, c.fastCycles)
	timer := time.NewTimer(pace.next())
	defer timer.Stop()

	for {
		wait := pace.next()
		c.logger.Debug().Dur("wait", wait).Int("fast_refresh", pace.remaining).Msg("next refresh scheduled")
		resetTimer(timer, wait)
		select {
		case <-timer.C:
		case <-r.wake:
		case <-r.stop:
		}
		pace.woke()

		select {
		case <-r.stop:
			c.retire()
			return
		default:
		}

		if req := c.takePending(); req != nil {
			c.apply(req)
			pace.accelerate()
		}
		c.publishFast(pace.remaining)
		c.Refresh()
	}
}

// retire clears loop diagnostics unless a newer loop already took over.
func (c *Communicator) retire() {
	c.mu.Lock()
	idle := c.current == nil
	if idle {
		c.fast = 0
	}
	c.mu.Unlock()
	if idle {
		c.telemetry.SetFastRefreshRemaining(0)
	}
}

func (c *Communicator) takePending() *modeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := c.pending
	c.pending = nil
	return req
}

func (c *Communicator) apply(req *modeRequest) {
	logger := c.logger.With().Str("request", req.id.String()).Stringer("mode", req.mode).Logger()
	logger.Info().Dur("queued", time.Since(req.at)).Msg("setting house mode on box")
	err := c.write(req.mode)
	c.telemetry.IncModeWrite(req.mode.String(), err == nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set house mode on box")
	}
}

func (c *Communicator) publishFast(remaining int) {
	c.mu.Lock()
	c.fast = remaining
	c.mu.Unlock()
	c.telemetry.SetFastRefreshRemaining(remaining)
}

func (c *Communicator) read() (status box.Status, seq uint64, err error) {
	c.providerMu.Lock()
	defer c.providerMu.Unlock()
	c.readSeq++
	seq = c.readSeq
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("provider panic during read: %v", rec)
		}
	}()
	status, err = c.provider.ReadStatus(context.Background())
	return status, seq, err
}

func (c *Communicator) write(mode box.HouseMode) (err error) {
	c.providerMu.Lock()
	defer c.providerMu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("provider panic during write: %v", rec)
		}
	}()
	return c.provider.WriteMode(context.Background(), mode)
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
