// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/wneessen/waybar-location/internal/config"
	"github.com/wneessen/waybar-location/internal/i18n"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/source/gpsd"
	"github.com/wneessen/waybar-location/internal/source/nmea"
	"github.com/wneessen/waybar-location/internal/tracker"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of the output job.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeSignalSource struct {
	mu      sync.Mutex
	ch      chan<- os.Signal
	signals []os.Signal
	stopped bool
}

func (f *fakeSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = c
	f.signals = sig
}

func (f *fakeSignalSource) Stop(chan<- os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeSignalSource) channel() chan<- os.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch
}

// closedPort returns a local port nobody listens on.
func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %s", err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	_ = ln.Close()
	return port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("WAYBARLOCATION_TRACKING_DISABLE_INHIBITOR", "true")
	t.Setenv("WAYBARLOCATION_TRACKING_DISABLE_CHARGER_CHECK", "true")
	t.Setenv("WAYBARLOCATION_SOURCE_GPSD_HOST", "127.0.0.1")
	t.Setenv("WAYBARLOCATION_SOURCE_GPSD_PORT", closedPort(t))
	t.Setenv("WAYBARLOCATION_INTERVALS_OUTPUT", "1s")
	conf, err := config.New()
	if err != nil {
		t.Fatalf("failed to load config: %s", err)
	}
	return conf
}

func testService(t *testing.T, ctx context.Context, conf *config.Config, output io.Writer) (*Service, error) {
	t.Helper()
	loc, err := i18n.New("en")
	if err != nil {
		t.Fatalf("failed to create localizer: %s", err)
	}
	return New(ctx, conf, logger.NewLogger(slog.LevelError, io.Discard), loc, output)
}

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		serv, err := testService(t, t.Context(), testConfig(t), io.Discard)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.tracker.State().Tracking() {
			t.Error("expected tracking to be stopped before Run")
		}
	})
	t.Run("source is selected by provider", func(t *testing.T) {
		tests := []struct {
			provider string
			wantName string
		}{
			{config.ProviderGPSD, "gpsd"},
			{config.ProviderNMEA, "nmea"},
		}
		for _, tc := range tests {
			t.Run(tc.provider, func(t *testing.T) {
				conf := testConfig(t)
				conf.Source.Provider = tc.provider
				serv, err := testService(t, t.Context(), conf, io.Discard)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				src, err := serv.selectSource(t.Context())
				if err != nil {
					t.Fatalf("failed to select source: %s", err)
				}
				if src.Name() != tc.wantName {
					t.Errorf("expected source %s, got %s", tc.wantName, src.Name())
				}
				switch tc.provider {
				case config.ProviderGPSD:
					if _, ok := src.(*gpsd.Source); !ok {
						t.Errorf("expected gpsd source, got %T", src)
					}
				case config.ProviderNMEA:
					if _, ok := src.(*nmea.Source); !ok {
						t.Errorf("expected nmea source, got %T", src)
					}
				}
			})
		}
	})
	t.Run("unsupported provider fails", func(t *testing.T) {
		conf := testConfig(t)
		conf.Source.Provider = "carrier-pigeon"
		_, err := testService(t, t.Context(), conf, io.Discard)
		if !errors.Is(err, config.ErrInvalidProvider) {
			t.Errorf("expected invalid provider error, got %v", err)
		}
	})
	t.Run("invalid template fails", func(t *testing.T) {
		conf := testConfig(t)
		conf.Templates.Text = "{{ .Latitude }"
		if _, err := testService(t, t.Context(), conf, io.Discard); err == nil {
			t.Error("expected service creation to fail")
		}
	})
	t.Run("unreachable mqtt broker fails", func(t *testing.T) {
		conf := testConfig(t)
		conf.MQTT.Broker = "tcp://127.0.0.1:" + closedPort(t)
		if _, err := testService(t, t.Context(), conf, io.Discard); err == nil {
			t.Error("expected service creation to fail")
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("output is printed until the context is cancelled", func(t *testing.T) {
		output := &syncBuffer{}
		ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond*1500)
		defer cancel()
		serv, err := testService(t, ctx, testConfig(t), output)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		signals := &fakeSignalSource{}
		serv.signals = signals

		if err = serv.Run(ctx); err != nil {
			t.Fatalf("expected service to stop cleanly, got %s", err)
		}
		if serv.tracker.State().Tracking() {
			t.Error("expected tracking to be stopped after Run")
		}
		if !signals.stopped {
			t.Error("expected signal notification to be stopped")
		}
		if len(signals.signals) != 1 || signals.signals[0] != syscall.SIGUSR1 {
			t.Errorf("expected SIGUSR1 to be registered, got %v", signals.signals)
		}

		lines := strings.Split(strings.TrimSpace(output.String()), "\n")
		if len(lines) == 0 || lines[0] == "" {
			t.Fatal("expected at least one line of output")
		}
		var out struct {
			Text  string   `json:"text"`
			Class []string `json:"class"`
		}
		if err = json.Unmarshal([]byte(lines[0]), &out); err != nil {
			t.Fatalf("failed to decode output %q: %s", lines[0], err)
		}
		if len(out.Class) == 0 || out.Class[0] != "waybar-location" {
			t.Errorf("expected output class, got %v", out.Class)
		}
	})
	t.Run("signal toggles the tracking mode", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		serv, err := testService(t, ctx, testConfig(t), io.Discard)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		signals := &fakeSignalSource{}
		serv.signals = signals

		done := make(chan error, 1)
		go func() { done <- serv.Run(ctx) }()

		waitFor(t, func() bool {
			return signals.channel() != nil && serv.tracker.State().Mode == tracker.ModeContinuous
		})
		signals.channel() <- syscall.SIGUSR1
		waitFor(t, func() bool {
			return serv.tracker.State().Mode == tracker.ModeSignificantChange
		})

		cancel()
		if err = <-done; err != nil {
			t.Errorf("expected service to stop cleanly, got %s", err)
		}
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second * 3)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond * 10)
	}
}
