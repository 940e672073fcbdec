// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package service wires the location source, the location manager, the presentation model and
// the display sinks into the running daemon.
package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vorlif/spreak"

	"github.com/wneessen/waybar-location/internal/background"
	"github.com/wneessen/waybar-location/internal/config"
	"github.com/wneessen/waybar-location/internal/location"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/metrics"
	"github.com/wneessen/waybar-location/internal/power"
	"github.com/wneessen/waybar-location/internal/presenter"
	"github.com/wneessen/waybar-location/internal/sink/mqtt"
	"github.com/wneessen/waybar-location/internal/sink/waybar"
	"github.com/wneessen/waybar-location/internal/source/gpsd"
	"github.com/wneessen/waybar-location/internal/source/nmea"
	"github.com/wneessen/waybar-location/internal/template"
	"github.com/wneessen/waybar-location/internal/tracker"
)

const outputJobName = "location_output_job"

// Service is the waybar-location daemon.
type Service struct {
	config    *config.Config
	logger    *logger.Logger
	t         *spreak.Localizer
	scheduler gocron.Scheduler
	registry  *prometheus.Registry
	signals   signalSource

	tracker *tracker.Manager
	model   *presenter.Model
	waybar  *waybar.Sink

	// closers release external resources in reverse order on shutdown
	closers []func()
}

// New creates the service. The context bounds the lifetime of the location source connections.
func New(ctx context.Context, conf *config.Config, log *logger.Logger, t *spreak.Localizer,
	output io.Writer,
) (*Service, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	tpls, err := template.New(conf, t)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	service := &Service{
		config:    conf,
		logger:    log,
		t:         t,
		scheduler: scheduler,
		registry:  prometheus.NewRegistry(),
		signals:   stdLibSignalSource{},
		waybar:    waybar.New(tpls, output, log),
	}

	src, err := service.selectSource(ctx)
	if err != nil {
		return nil, err
	}
	tasks := service.selectBackgroundTasks(ctx)
	service.tracker, err = tracker.New(ctx, src, tasks, service.selectCharger(),
		log, metrics.New(service.registry))
	if err != nil {
		service.close()
		return nil, fmt.Errorf("failed to create location manager: %w", err)
	}

	sinks := presenter.MultiSink{service.waybar}
	if conf.MQTT.Broker != "" {
		mqttSink, err := mqtt.Connect(mqtt.Config{
			Broker:   conf.MQTT.Broker,
			ClientID: conf.MQTT.ClientID,
			Topic:    conf.MQTT.Topic,
		}, log)
		if err != nil {
			service.close()
			return nil, fmt.Errorf("failed to create mqtt sink: %w", err)
		}
		service.closers = append(service.closers, mqttSink.Close)
		sinks = append(sinks, mqttSink)
	}

	var opts []presenter.Option
	if conf.Tracking.Mode == config.ModeSignificant {
		opts = append(opts, presenter.WithSignificantChangeMonitoring())
	}
	service.model, err = presenter.New(service.tracker, sinks, t, log, opts...)
	if err != nil {
		service.close()
		return nil, fmt.Errorf("failed to create presentation model: %w", err)
	}

	return service, nil
}

// Run starts the output job, the metrics endpoint and the mode toggle handler and runs the
// presentation model until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	defer s.close()

	if err := s.createScheduledJob(ctx, s.config.Intervals.Output, s.waybar.Print, outputJobName); err != nil {
		return err
	}
	s.scheduler.Start()

	if s.config.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, s.config.Metrics.Listen, s.registry, s.logger); err != nil {
				s.logger.Error("metrics endpoint failed", logger.Err(err))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	s.signals.Notify(sigChan, syscall.SIGUSR1)
	defer s.signals.Stop(sigChan)
	go s.HandleModeToggleSignal(ctx, sigChan)

	err := s.model.Run(ctx)
	if shutdownErr := s.scheduler.Shutdown(); shutdownErr != nil {
		s.logger.Error("failed to shut down scheduler", logger.Err(shutdownErr))
	}
	if err != nil {
		return fmt.Errorf("failed to run presentation model: %w", err)
	}
	return nil
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

func (s *Service) selectSource(ctx context.Context) (location.Source, error) {
	conf := s.config
	switch conf.Source.Provider {
	case config.ProviderGPSD:
		return gpsd.New(ctx, gpsd.Config{
			Host:                conf.Source.GPSD.Host,
			Port:                conf.Source.GPSD.Port,
			SignificantInterval: conf.Tracking.SignificantInterval,
			SignificantDistance: conf.Tracking.SignificantDistance,
		}, s.logger), nil
	case config.ProviderNMEA:
		return nmea.New(ctx, nmea.Config{
			Device:              conf.Source.NMEA.Device,
			BaudRate:            conf.Source.NMEA.BaudRate,
			SignificantDistance: conf.Tracking.SignificantDistance,
		}, s.logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidProvider, conf.Source.Provider)
	}
}

// selectBackgroundTasks prefers the logind sleep inhibitor and falls back to process local
// handles when the system bus is not available.
func (s *Service) selectBackgroundTasks(ctx context.Context) background.Tasks {
	if s.config.Tracking.DisableInhibitor {
		return background.NewLocal()
	}
	inhibitor, err := background.NewLogind(ctx, s.logger)
	if err != nil {
		s.logger.Warn("logind is not available, tracking will not delay system sleep", logger.Err(err))
		return background.NewLocal()
	}
	s.closers = append(s.closers, func() {
		if err := inhibitor.Close(); err != nil {
			s.logger.Error("failed to close logind connection", logger.Err(err))
		}
	})
	return inhibitor
}

func (s *Service) selectCharger() power.Charger {
	if s.config.Tracking.DisableChargerCheck {
		return power.Static(false)
	}
	return power.NewUPower()
}

// close releases the external resources in reverse order of their creation.
func (s *Service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
