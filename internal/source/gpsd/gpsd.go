// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpsd implements a location source backed by a gpsd daemon. Continuous updates use a
// gpsd WATCH session, while fresh fixes, significant-change monitoring and the access probe use
// short-lived polls.
package gpsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/waybar-location/internal/gpspoll"
	"github.com/wneessen/waybar-location/internal/job"
	"github.com/wneessen/waybar-location/internal/location"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/source"
)

const (
	name = "gpsd"

	DefaultBatchWindow   = time.Second
	DefaultRetryInterval = time.Second * 10
	pollTimeout          = time.Second * 5
)

// Config configures the gpsd source.
type Config struct {
	Host string
	Port string
	// SignificantInterval is the poll interval while monitoring significant changes.
	SignificantInterval time.Duration
	// SignificantDistance is the distance in meters a position must move to be reported while
	// monitoring significant changes.
	SignificantDistance float64
}

// poller is satisfied by *gpspoll.Client.
type poller interface {
	Poll(ctx context.Context) (gpspoll.Fix, error)
	Probe(ctx context.Context) error
}

// watcher is satisfied by *gpsd.Session.
type watcher interface {
	AddFilter(class string, f gpsd.Filter)
	Watch() chan bool
}

// Source is a location.Source talking to gpsd.
type Source struct {
	ctx    context.Context
	addr   string
	logger *logger.Logger
	poller poller
	dialFn func(addr string) (watcher, error)

	batchWindow         time.Duration
	retryInterval       time.Duration
	significantInterval time.Duration

	handler    atomic.Pointer[handlerBox]
	accuracy   atomic.Int32
	continuous atomic.Bool

	mu             sync.Mutex
	sessionStarted bool
	batch          []location.Sample
	batchTimer     *time.Timer
	sigCancel      context.CancelFunc
	detector       location.ChangeDetector
}

type handlerBox struct {
	location.Handler
}

// New returns a gpsd source. The context bounds the lifetime of all connections the source
// opens.
func New(ctx context.Context, conf Config, log *logger.Logger) *Source {
	return &Source{
		ctx:    ctx,
		addr:   net.JoinHostPort(conf.Host, conf.Port),
		logger: log,
		poller: gpspoll.New(conf.Host, conf.Port),
		dialFn: func(addr string) (watcher, error) {
			return gpsd.Dial(addr)
		},
		batchWindow:         DefaultBatchWindow,
		retryInterval:       DefaultRetryInterval,
		significantInterval: conf.SignificantInterval,
		detector:            location.ChangeDetector{Threshold: conf.SignificantDistance},
	}
}

func (s *Source) Name() string {
	return name
}

func (s *Source) SetHandler(h location.Handler) {
	s.handler.Store(&handlerBox{h})
}

// SetAccuracyMode selects between batched delivery (best) and immediate delivery of every
// report (best for navigation).
func (s *Source) SetAccuracyMode(mode location.AccuracyMode) {
	s.accuracy.Store(int32(mode))
}

// RequestFreshFix polls gpsd once and delivers the fix as a single-sample batch.
func (s *Source) RequestFreshFix() {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, pollTimeout)
		defer cancel()
		fix, err := s.poller.Poll(ctx)
		if err != nil {
			s.reportError(fmt.Errorf("failed to poll fresh fix from gpsd: %w", err))
			return
		}
		if !fix.Has2DFix() {
			s.logger.Debug("fresh fix from gpsd has no position", slog.Int("mode", fix.Mode))
			return
		}
		s.deliver([]location.Sample{fix.Sample()})
	}()
}

// StartAuthorizationUpgrade probes gpsd and reports the resulting access status.
func (s *Source) StartAuthorizationUpgrade() {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, pollTimeout)
		defer cancel()
		err := s.poller.Probe(ctx)
		if err != nil {
			s.logger.Warn("gpsd access probe failed", slog.String("addr", s.addr), logger.Err(err))
		}
		if h := s.handler.Load(); h != nil {
			h.OnAuthorizationChange(source.StatusFromAccess(err, false))
		}
	}()
}

// StartContinuousUpdates opens the WATCH session on first use and starts forwarding its reports.
// The session is kept open across stop and start and only closes with the source context.
func (s *Source) StartContinuousUpdates() {
	s.continuous.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionStarted {
		return
	}
	s.sessionStarted = true
	go s.watchLoop()
}

// StopContinuousUpdates stops forwarding WATCH reports and drops a pending batch.
func (s *Source) StopContinuousUpdates() {
	s.continuous.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchTimer != nil {
		s.batchTimer.Stop()
		s.batchTimer = nil
	}
	s.batch = nil
}

// StartSignificantChangeMonitoring polls gpsd periodically and reports a position only when it
// moved further than the configured distance from the last reported one.
func (s *Source) StartSignificantChangeMonitoring() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sigCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.sigCancel = cancel
	s.detector.Reset()
	go job.New(s.significantInterval, s.pollSignificant, job.WithImmediateRun()).Start(ctx)
}

func (s *Source) StopSignificantChangeMonitoring() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sigCancel == nil {
		return
	}
	s.sigCancel()
	s.sigCancel = nil
}

func (s *Source) pollSignificant(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()
	fix, err := s.poller.Poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.reportError(fmt.Errorf("failed to poll significant change from gpsd: %w", err))
		}
		return
	}
	if !fix.Has2DFix() {
		return
	}

	sample := fix.Sample()
	s.mu.Lock()
	if s.sigCancel == nil || !s.detector.HasChanged(sample) {
		s.mu.Unlock()
		return
	}
	s.detector.Update(sample)
	s.mu.Unlock()
	s.deliver([]location.Sample{sample})
}

// watchLoop keeps a WATCH session open, reconnecting after the retry interval when gpsd goes
// away.
func (s *Source) watchLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		session, err := s.dialFn(s.addr)
		if err != nil {
			if s.continuous.Load() {
				s.reportError(fmt.Errorf("failed to connect to gpsd at %q: %w", s.addr, err))
			}
		} else {
			session.AddFilter("TPV", s.handleTPV)
			done := session.Watch()
			select {
			case <-s.ctx.Done():
				return
			case <-done:
				s.logger.Warn("gpsd session ended, reconnecting", slog.String("addr", s.addr))
			}
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.retryInterval):
		}
	}
}

func (s *Source) handleTPV(r interface{}) {
	tpv, ok := r.(*gpsd.TPVReport)
	if !ok {
		return
	}
	if !s.continuous.Load() || tpv.Mode < gpsd.Mode2D {
		return
	}
	s.addSample(sampleFromTPV(tpv))
}

// addSample delivers the sample directly in navigation mode, otherwise it collects samples for
// one batch window.
func (s *Source) addSample(sample location.Sample) {
	if location.AccuracyMode(s.accuracy.Load()) == location.AccuracyBestForNavigation {
		s.deliver([]location.Sample{sample})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = append(s.batch, sample)
	if s.batchTimer == nil {
		s.batchTimer = time.AfterFunc(s.batchWindow, s.flush)
	}
}

func (s *Source) flush() {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.batchTimer = nil
	s.mu.Unlock()

	if len(batch) == 0 || !s.continuous.Load() {
		return
	}
	s.deliver(batch)
}

func (s *Source) deliver(samples []location.Sample) {
	if h := s.handler.Load(); h != nil {
		h.OnSamples(samples)
	}
}

func (s *Source) reportError(err error) {
	if h := s.handler.Load(); h != nil {
		h.OnError(err)
	}
}

// sampleFromTPV converts a TPV report. go-gpsd zero-fills fields gpsd left out, and gpsd omits
// track and speed while the receiver is stationary, so a zero track without speed is reported
// as not available.
func sampleFromTPV(tpv *gpsd.TPVReport) location.Sample {
	course := tpv.Track
	if tpv.Track == 0 && tpv.Speed == 0 {
		course = location.NotAvailable
	}
	return location.Sample{
		Latitude:           tpv.Lat,
		Longitude:          tpv.Lon,
		Speed:              tpv.Speed,
		Course:             course,
		HorizontalAccuracy: int(gpspoll.HorizontalAccuracy(0, tpv.Epx, tpv.Epy, int(tpv.Mode))),
		Timestamp:          tpv.Time,
	}
}
