// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package nmea implements a location source that reads NMEA 0183 sentences from a GNSS receiver
// attached to a serial port.
package nmea

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/jacobsa/go-serial/serial"

	"github.com/wneessen/waybar-location/internal/location"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/source"
)

const (
	name = "nmea"

	DefaultBaudRate      = 9600
	DefaultBatchSize     = 5
	DefaultRetryInterval = time.Second * 10

	// knotsToMetersPerSecond converts the RMC speed over ground.
	knotsToMetersPerSecond = 0.514444
	// metersPerHDOP approximates the horizontal accuracy from the dilution of precision of a
	// consumer receiver.
	metersPerHDOP = 5
	// fallbackAccuracy is used until the receiver sent a GGA sentence.
	fallbackAccuracy = 25

	// field positions within an RMC sentence
	rmcSpeedField  = 6
	rmcCourseField = 7
)

// Config configures the NMEA source.
type Config struct {
	Device   string
	BaudRate uint
	// SignificantDistance is the distance in meters a position must move to be reported while
	// monitoring significant changes.
	SignificantDistance float64
}

// Source is a location.Source reading a serial NMEA receiver.
type Source struct {
	ctx    context.Context
	conf   Config
	logger *logger.Logger

	openFn        func(serial.OpenOptions) (io.ReadWriteCloser, error)
	accessFn      func(path string, flag int) error
	batchSize     int
	retryInterval time.Duration

	handler     atomic.Pointer[handlerBox]
	accuracy    atomic.Int32
	continuous  atomic.Bool
	significant atomic.Bool
	fresh       atomic.Bool

	mu       sync.Mutex
	reading  bool
	hdop     float64
	batch    []location.Sample
	detector location.ChangeDetector
}

type handlerBox struct {
	location.Handler
}

// New returns an NMEA source. The context bounds the lifetime of the serial connection.
func New(ctx context.Context, conf Config, log *logger.Logger) *Source {
	if conf.BaudRate == 0 {
		conf.BaudRate = DefaultBaudRate
	}
	return &Source{
		ctx:    ctx,
		conf:   conf,
		logger: log,
		openFn: serial.Open,
		accessFn: func(path string, flag int) error {
			file, err := os.OpenFile(path, flag, 0)
			if err != nil {
				return err
			}
			return file.Close()
		},
		batchSize:     DefaultBatchSize,
		retryInterval: DefaultRetryInterval,
		detector:      location.ChangeDetector{Threshold: conf.SignificantDistance},
	}
}

func (s *Source) Name() string {
	return name
}

func (s *Source) SetHandler(h location.Handler) {
	s.handler.Store(&handlerBox{h})
}

// SetAccuracyMode selects between batched delivery (best) and immediate delivery of every fix
// (best for navigation).
func (s *Source) SetAccuracyMode(mode location.AccuracyMode) {
	s.accuracy.Store(int32(mode))
}

// RequestFreshFix delivers the next valid fix read from the receiver on its own.
func (s *Source) RequestFreshFix() {
	s.fresh.Store(true)
	s.ensureReading()
}

// StartAuthorizationUpgrade checks the access to the serial device. Read-write access reports
// the always status, read-only access the when-in-use status.
func (s *Source) StartAuthorizationUpgrade() {
	go func() {
		readOnly := false
		err := s.accessFn(s.conf.Device, os.O_RDWR)
		if err != nil {
			if rerr := s.accessFn(s.conf.Device, os.O_RDONLY); rerr == nil {
				readOnly, err = true, nil
			}
		}
		if err != nil {
			s.logger.Warn("serial device is not accessible", slog.String("device", s.conf.Device),
				logger.Err(err))
		}
		if h := s.handler.Load(); h != nil {
			h.OnAuthorizationChange(source.StatusFromAccess(err, readOnly))
		}
	}()
}

func (s *Source) StartContinuousUpdates() {
	s.continuous.Store(true)
	s.ensureReading()
}

func (s *Source) StopContinuousUpdates() {
	s.continuous.Store(false)
	s.mu.Lock()
	s.batch = nil
	s.mu.Unlock()
}

// StartSignificantChangeMonitoring reports a fix only when it moved further than the configured
// distance from the last reported one.
func (s *Source) StartSignificantChangeMonitoring() {
	s.mu.Lock()
	s.detector.Reset()
	s.mu.Unlock()
	s.significant.Store(true)
	s.ensureReading()
}

func (s *Source) StopSignificantChangeMonitoring() {
	s.significant.Store(false)
}

// ensureReading starts the reader on first use. It keeps running until the source context ends.
func (s *Source) ensureReading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reading {
		return
	}
	s.reading = true
	go s.readLoop()
}

func (s *Source) readLoop() {
	opts := serial.OpenOptions{
		PortName:        s.conf.Device,
		BaudRate:        s.conf.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		port, err := s.openFn(opts)
		if err != nil {
			s.reportError(fmt.Errorf("failed to open serial device %q: %w", s.conf.Device, err))
		} else {
			s.logger.Debug("serial device opened", slog.String("device", s.conf.Device),
				slog.Uint64("baud_rate", uint64(s.conf.BaudRate)))
			err = s.read(port)
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.reportError(fmt.Errorf("failed to read from serial device %q: %w", s.conf.Device, err))
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.retryInterval):
		}
	}
}

// read consumes sentences until the port fails or the source context ends.
func (s *Source) read(port io.ReadWriteCloser) error {
	stop := context.AfterFunc(s.ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		s.handleLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (s *Source) handleLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		s.logger.Debug("skipping malformed NMEA sentence", slog.String("sentence", line), logger.Err(err))
		return
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		gga := sentence.(nmea.GGA)
		s.mu.Lock()
		s.hdop = gga.HDOP
		s.mu.Unlock()
	case nmea.TypeRMC:
		rmc := sentence.(nmea.RMC)
		if rmc.Validity != nmea.ValidRMC {
			return
		}
		s.mu.Lock()
		sample := sampleFromRMC(rmc, s.hdop)
		s.mu.Unlock()
		s.handleSample(sample)
	}
}

func (s *Source) handleSample(sample location.Sample) {
	if s.fresh.Swap(false) {
		s.deliver([]location.Sample{sample})
		return
	}

	if s.significant.Load() {
		s.mu.Lock()
		changed := s.detector.HasChanged(sample)
		if changed {
			s.detector.Update(sample)
		}
		s.mu.Unlock()
		if changed {
			s.deliver([]location.Sample{sample})
		}
	}

	if !s.continuous.Load() {
		return
	}
	if location.AccuracyMode(s.accuracy.Load()) == location.AccuracyBestForNavigation {
		s.deliver([]location.Sample{sample})
		return
	}

	s.mu.Lock()
	s.batch = append(s.batch, sample)
	if len(s.batch) < s.batchSize {
		s.mu.Unlock()
		return
	}
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()
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

func sampleFromRMC(rmc nmea.RMC, hdop float64) location.Sample {
	sample := location.Sample{
		Latitude:           rmc.Latitude,
		Longitude:          rmc.Longitude,
		Speed:              rmc.Speed * knotsToMetersPerSecond,
		Course:             rmc.Course,
		HorizontalAccuracy: fallbackAccuracy,
		Timestamp:          timestamp(rmc.Date, rmc.Time),
	}
	if hdop > 0 {
		sample.HorizontalAccuracy = int(hdop * metersPerHDOP)
	}
	if fieldEmpty(rmc.Fields, rmcSpeedField) {
		sample.Speed = location.NotAvailable
	}
	if fieldEmpty(rmc.Fields, rmcCourseField) {
		sample.Course = location.NotAvailable
	}
	return sample
}

func fieldEmpty(fields []string, idx int) bool {
	return idx >= len(fields) || fields[idx] == ""
}

// timestamp combines the RMC date and time into UTC. Two digit years below 80 are placed in
// the 21st century.
func timestamp(date nmea.Date, tod nmea.Time) time.Time {
	if !date.Valid || !tod.Valid {
		return time.Time{}
	}
	year := 2000 + date.YY
	if date.YY >= 80 {
		year = 1900 + date.YY
	}
	return time.Date(year, time.Month(date.MM), date.DD, tod.Hour, tod.Minute, tod.Second,
		tod.Millisecond*int(time.Millisecond), time.UTC)
}
