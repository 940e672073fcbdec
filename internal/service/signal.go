// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/tracker"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleModeToggleSignal switches between continuous tracking and significant-change monitoring
// whenever a signal is received. Signals are ignored while tracking is stopped.
func (s *Service) HandleModeToggleSignal(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			s.toggleMode(ctx)
		}
	}
}

func (s *Service) toggleMode(ctx context.Context) {
	mode, err := s.tracker.ToggleMode()
	if err != nil {
		s.logger.Error("failed to toggle tracking mode", logger.Err(err))
		return
	}
	if mode == tracker.ModeIdle {
		s.logger.Debug("tracking is stopped, ignoring mode toggle")
		return
	}
	s.logger.Info("tracking mode toggled", slog.String("mode", mode.String()))
	s.waybar.Print(ctx)
}
