// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package tracker implements the location manager. It drives a location source, validates the
// samples and authorization notifications it emits, owns the background-execution handle while
// tracking and publishes the results on three streams.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wneessen/waybar-location/internal/background"
	"github.com/wneessen/waybar-location/internal/location"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/metrics"
	"github.com/wneessen/waybar-location/internal/power"
	"github.com/wneessen/waybar-location/internal/stream"
)

// Mode is the tracking mode of the manager.
type Mode int

const (
	ModeIdle Mode = iota
	ModeContinuous
	ModeSignificantChange
)

func (m Mode) String() string {
	switch m {
	case ModeContinuous:
		return "continuous"
	case ModeSignificantChange:
		return "significant-change"
	default:
		return "idle"
	}
}

var (
	ErrNoLogger  = errors.New("logger is required")
	ErrNoSource  = errors.New("location source is required")
	ErrNoTasks   = errors.New("background tasks provider is required")
	ErrNoMetrics = errors.New("metrics are required")
)

// State is a snapshot of the manager state.
type State struct {
	Mode       Mode
	Accuracy   location.AccuracyMode
	HandleHeld bool
}

// Tracking reports whether the manager is tracking in any mode.
func (s State) Tracking() bool {
	return s.Mode != ModeIdle
}

// Manager orchestrates a location source. It implements location.Handler.
type Manager struct {
	source    location.Source
	tasks     background.Tasks
	validator *location.Validator
	logger    *logger.Logger
	metrics   *metrics.Metrics

	accuracy location.AccuracyMode

	// mu guards the tracking lifecycle and the background handle.
	mu         sync.Mutex
	mode       Mode
	handle     background.Handle
	haveHandle bool
	leaseSeq   uint64

	// active gates the forwarding of samples and errors. It is flipped inside the lifecycle
	// lock but read without it, so source callbacks never wait on a lifecycle operation.
	// gate is held for reading while a callback publishes and for writing while Stop clears
	// active, so nothing is published once Stop has returned.
	active atomic.Bool
	gate   sync.RWMutex

	positions      *stream.Bus[location.Sample]
	errors         *stream.Bus[error]
	authorizations *stream.Bus[location.AuthorizationState]
}

// New creates a Manager for the given source and registers it as the source's handler. The
// charger is queried exactly once to select the accuracy mode for the lifetime of the manager.
// A nil charger or a failed query selects the standard accuracy mode.
func New(ctx context.Context, src location.Source, tasks background.Tasks, charger power.Charger,
	log *logger.Logger, m *metrics.Metrics,
) (*Manager, error) {
	if log == nil {
		return nil, ErrNoLogger
	}
	if src == nil {
		return nil, ErrNoSource
	}
	if tasks == nil {
		return nil, ErrNoTasks
	}
	if m == nil {
		return nil, ErrNoMetrics
	}

	manager := &Manager{
		source:         src,
		tasks:          tasks,
		validator:      location.NewValidator(nil),
		logger:         log,
		metrics:        m,
		accuracy:       selectAccuracy(ctx, charger, log),
		positions:      stream.New[location.Sample](),
		errors:         stream.New[error](),
		authorizations: stream.New[location.AuthorizationState](),
	}
	src.SetAccuracyMode(manager.accuracy)
	src.SetHandler(manager)
	log.Debug("location manager initialized", slog.String("source", src.Name()),
		slog.String("accuracy", manager.accuracy.String()))

	return manager, nil
}

// selectAccuracy picks the highest precision mode only while the device is on external power.
func selectAccuracy(ctx context.Context, charger power.Charger, log *logger.Logger) location.AccuracyMode {
	if charger == nil {
		return location.AccuracyBest
	}
	charging, err := charger.IsCharging(ctx)
	if err != nil {
		log.Warn("failed to determine charging state, using standard accuracy", logger.Err(err))
		return location.AccuracyBest
	}
	if charging {
		return location.AccuracyBestForNavigation
	}
	return location.AccuracyBest
}

// SubscribePositions returns a channel of accepted samples and its unsubscribe function.
func (m *Manager) SubscribePositions() (<-chan location.Sample, func()) {
	return m.positions.Subscribe()
}

// SubscribeErrors returns a channel of source errors and its unsubscribe function.
func (m *Manager) SubscribeErrors() (<-chan error, func()) {
	return m.errors.Subscribe()
}

// SubscribeAuthorization returns a channel of authorization states and its unsubscribe function.
func (m *Manager) SubscribeAuthorization() (<-chan location.AuthorizationState, func()) {
	return m.authorizations.Subscribe()
}

// State returns a snapshot of the manager state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Mode:       m.mode,
		Accuracy:   m.accuracy,
		HandleHeld: m.haveHandle,
	}
}

// RequestAlwaysAuthorization halts continuous updates, asks the source for an authorization
// upgrade and resumes continuous updates if they were running. The resulting authorization
// notification arrives asynchronously, if ever.
func (m *Manager) RequestAlwaysAuthorization() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.source.StopContinuousUpdates()
	m.source.StartAuthorizationUpgrade()
	if m.mode == ModeContinuous {
		m.source.StartContinuousUpdates()
	}
}

// StartContinuousTracking acquires a background handle, cancels significant-change monitoring
// and starts continuous updates. A handle held from a previous start is released first.
func (m *Manager) StartContinuousTracking() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startContinuousLocked()
}

func (m *Manager) startContinuousLocked() error {
	if err := m.reacquireLocked(); err != nil {
		return err
	}
	m.mode = ModeContinuous
	m.active.Store(true)
	m.source.StopSignificantChangeMonitoring()
	m.source.StartContinuousUpdates()
	m.logger.Info("continuous location tracking started", slog.String("source", m.source.Name()))
	return nil
}

// StartSignificantChangeMonitoring acquires a background handle, stops continuous updates and
// starts the lower-power significant-change monitoring. A handle held from a previous start is
// released first.
func (m *Manager) StartSignificantChangeMonitoring() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startSignificantLocked()
}

func (m *Manager) startSignificantLocked() error {
	if err := m.reacquireLocked(); err != nil {
		return err
	}
	m.mode = ModeSignificantChange
	m.active.Store(true)
	m.source.StopSignificantChangeMonitoring()
	m.source.StopContinuousUpdates()
	m.source.StartSignificantChangeMonitoring()
	m.logger.Info("significant-change location monitoring started", slog.String("source", m.source.Name()))
	return nil
}

// ToggleMode switches between continuous tracking and significant-change monitoring and
// returns the new mode. It does nothing while the manager is idle.
func (m *Manager) ToggleMode() (Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	switch m.mode {
	case ModeContinuous:
		err = m.startSignificantLocked()
	case ModeSignificantChange:
		err = m.startContinuousLocked()
	}
	return m.mode, err
}

// Stop halts the forwarding of source updates, stops the source and releases the background
// handle before it returns. Updates already published are still delivered to subscribers.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gate.Lock()
	m.active.Store(false)
	m.gate.Unlock()
	m.source.StopContinuousUpdates()
	m.source.StopSignificantChangeMonitoring()
	m.releaseLocked()
	if m.mode != ModeIdle {
		m.logger.Info("location tracking stopped", slog.String("mode", m.mode.String()))
	}
	m.mode = ModeIdle
}

// reacquireLocked releases a held handle and acquires a new one. On failure the manager is
// left idle. m.mu must be held.
func (m *Manager) reacquireLocked() error {
	m.releaseLocked()

	seq := m.leaseSeq + 1
	h, err := m.tasks.Acquire(func() { m.expire(seq) })
	if err != nil {
		m.active.Store(false)
		m.source.StopContinuousUpdates()
		m.source.StopSignificantChangeMonitoring()
		m.mode = ModeIdle
		return fmt.Errorf("failed to acquire background task: %w", err)
	}
	m.leaseSeq = seq
	m.handle = h
	m.haveHandle = true
	m.metrics.BackgroundHandles.Inc()
	return nil
}

// releaseLocked releases the held handle, if any. m.mu must be held.
func (m *Manager) releaseLocked() {
	if !m.haveHandle {
		return
	}
	m.tasks.Release(m.handle)
	m.handle = 0
	m.haveHandle = false
	m.metrics.BackgroundHandles.Dec()
}

// expire is the expiring-soon callback of the lease with the given sequence number. A lease that
// has already been replaced or released is ignored, so a late callback never releases twice.
func (m *Manager) expire(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.haveHandle || m.leaseSeq != seq {
		return
	}
	m.logger.Warn("background task is expiring, releasing handle")
	m.releaseLocked()
}

// OnSamples validates the most recent sample of the batch and publishes it if accepted.
func (m *Manager) OnSamples(samples []location.Sample) {
	if len(samples) == 0 {
		m.logger.Debug("discarding empty sample batch")
		return
	}
	if !m.active.Load() {
		return
	}
	m.metrics.SampleBatches.Inc()

	latest := samples[len(samples)-1]
	decision := m.validator.Validate(latest)
	m.metrics.SamplesProcessed.WithLabelValues(decision.Outcome.String()).Inc()

	if decision.RequestFreshFix {
		m.metrics.FreshFixRequests.Inc()
		m.logger.Debug("imprecise sample is recent, requesting fresh fix",
			slog.Int("accuracy", latest.HorizontalAccuracy))
		m.source.RequestFreshFix()
	}

	if !decision.Accepted() {
		m.logger.Debug("dropping stale sample", slog.Int("accuracy", latest.HorizontalAccuracy),
			slog.Time("timestamp", latest.Timestamp))
		return
	}
	m.publishIfActive(func() { m.positions.Publish(latest) })
}

// publishIfActive runs publish while holding the forwarding gate, unless tracking has been
// stopped in the meantime.
func (m *Manager) publishIfActive(publish func()) {
	m.gate.RLock()
	defer m.gate.RUnlock()
	if m.active.Load() {
		publish()
	}
}

// OnError forwards the source error unchanged. Tracking continues.
func (m *Manager) OnError(err error) {
	if err == nil {
		return
	}
	m.logger.Error("location source reported an error", logger.Err(err))
	if !m.active.Load() {
		return
	}
	m.metrics.SourceErrors.Inc()
	m.publishIfActive(func() { m.errors.Publish(err) })
}

// OnAuthorizationChange maps and publishes every authorization notification.
func (m *Manager) OnAuthorizationChange(status location.PlatformStatus) {
	state := location.MapAuthorization(status)
	m.logger.Debug("authorization changed", slog.String("status", status.String()),
		slog.String("state", state.String()))
	m.metrics.AuthorizationChanges.WithLabelValues(state.String()).Inc()
	m.authorizations.Publish(state)
}
