// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter turns the location streams into display strings and a status message and
// pushes them to a display sink.
package presenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vorlif/spreak"
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/waybar-location/internal/location"
	"github.com/wneessen/waybar-location/internal/logger"
)

const (
	MsgChangeToAlways localize.MsgID = "Please allow location access at all times"
	MsgNotAllowed     localize.MsgID = "The application is not allowed to access the location"
)

var (
	ErrNoTracker   = errors.New("tracker is required")
	ErrNoSink      = errors.New("display sink is required")
	ErrNoLocalizer = errors.New("localizer is required")
	ErrNoLogger    = errors.New("logger is required")
)

// Tracker is the part of the location manager the model drives. It is satisfied by
// *tracker.Manager.
type Tracker interface {
	SubscribePositions() (<-chan location.Sample, func())
	SubscribeErrors() (<-chan error, func())
	SubscribeAuthorization() (<-chan location.AuthorizationState, func())
	RequestAlwaysAuthorization()
	StartContinuousTracking() error
	StartSignificantChangeMonitoring() error
	Stop()
}

// Option configures a Model.
type Option func(*Model)

// WithSignificantChangeMonitoring makes Run start the significant-change mode instead of
// continuous tracking.
func WithSignificantChangeMonitoring() Option {
	return func(m *Model) {
		m.significant = true
	}
}

// Model consumes the tracker streams. All state changes and sink calls happen on the goroutine
// executing Run.
type Model struct {
	tracker     Tracker
	sink        Sink
	localizer   *spreak.Localizer
	logger      *logger.Logger
	significant bool

	mu    sync.RWMutex
	state DisplayState
}

func New(tracker Tracker, sink Sink, loc *spreak.Localizer, log *logger.Logger, opts ...Option) (*Model, error) {
	if tracker == nil {
		return nil, ErrNoTracker
	}
	if sink == nil {
		return nil, ErrNoSink
	}
	if loc == nil {
		return nil, ErrNoLocalizer
	}
	if log == nil {
		return nil, ErrNoLogger
	}
	model := &Model{
		tracker:   tracker,
		sink:      sink,
		localizer: loc,
		logger:    log,
	}
	for _, opt := range opts {
		opt(model)
	}
	return model, nil
}

// Run subscribes to the tracker streams, requests the always authorization and starts tracking.
// It applies updates until the context is cancelled, then stops tracking and unsubscribes.
func (m *Model) Run(ctx context.Context) error {
	positions, unsubPositions := m.tracker.SubscribePositions()
	defer unsubPositions()
	errs, unsubErrors := m.tracker.SubscribeErrors()
	defer unsubErrors()
	auths, unsubAuthorization := m.tracker.SubscribeAuthorization()
	defer unsubAuthorization()

	m.tracker.RequestAlwaysAuthorization()
	start := m.tracker.StartContinuousTracking
	if m.significant {
		start = m.tracker.StartSignificantChangeMonitoring
	}
	if err := start(); err != nil {
		return fmt.Errorf("failed to start location tracking: %w", err)
	}
	defer m.tracker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sample, ok := <-positions:
			if !ok {
				return nil
			}
			m.applySample(sample)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			m.setStatus(err.Error())
		case auth, ok := <-auths:
			if !ok {
				return nil
			}
			m.applyAuthorization(auth)
		}
	}
}

// State returns the currently displayed state.
func (m *Model) State() DisplayState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Model) applySample(sample location.Sample) {
	update := Format(sample)

	m.mu.Lock()
	m.state.merge(update)
	m.mu.Unlock()

	for _, field := range Fields {
		if value := update.Field(field); value.IsSet() {
			m.sink.SetField(field, value.Value())
		}
	}
}

func (m *Model) applyAuthorization(state location.AuthorizationState) {
	switch state {
	case location.AuthorizationInUseOnly:
		m.setStatus(m.localizer.Get(MsgChangeToAlways))
	case location.AuthorizationNotAllowed:
		m.setStatus(m.localizer.Get(MsgNotAllowed))
	case location.AuthorizationAlwaysAllowed:
		m.setStatus("")
	default:
		m.logger.Debug("authorization state unknown, keeping status", slog.String("state", state.String()))
	}
}

func (m *Model) setStatus(status string) {
	m.mu.Lock()
	m.state.Status = status
	m.mu.Unlock()
	m.sink.SetStatus(status)
}
