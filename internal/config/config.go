// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv = "WAYBARLOCATION"

	ProviderGPSD = "gpsd"
	ProviderNMEA = "nmea"

	ModeContinuous  = "continuous"
	ModeSignificant = "significant"

	DefaultTextTpl    = `{{if .Alert}}⚠ {{end}}{{.Latitude}}, {{.Longitude}}`
	DefaultTooltipTpl = `{{if .Alert}}{{loc "Oh no!"}} {{.Status}}` + "\n" + `{{end}}` +
		`{{label "Latitude"}}{{.Latitude}}` + "\n" +
		`{{label "Longitude"}}{{.Longitude}}` + "\n" +
		`{{label "Speed"}}{{.Speed}}` + "\n" +
		`{{label "Course"}}{{.Course}}` + "\n" +
		`{{label "Accuracy"}}{{.Accuracy}}` + "\n" +
		`{{label "Timestamp"}}{{.Timestamp}}` +
		`{{if not .LastFix.IsZero}}` + "\n" + `{{label "Last fix"}}{{naturalTime .LastFix}}{{end}}`

	minOutputInterval = time.Second
)

var (
	ErrInvalidProvider = errors.New("invalid location provider")
	ErrInvalidMode     = errors.New("invalid tracking mode")
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Source struct {
		// Allowed values: gpsd, nmea
		Provider string `fig:"provider" default:"gpsd"`
		GPSD     struct {
			Host string `fig:"host" default:"localhost"`
			Port string `fig:"port" default:"2947"`
		} `fig:"gpsd"`
		NMEA struct {
			Device   string `fig:"device" default:"/dev/ttyACM0"`
			BaudRate uint   `fig:"baud_rate" default:"9600"`
		} `fig:"nmea"`
	} `fig:"source"`

	Tracking struct {
		// Allowed values: continuous, significant
		Mode                string        `fig:"mode" default:"continuous"`
		SignificantInterval time.Duration `fig:"significant_interval" default:"1m"`
		// In meters
		SignificantDistance float64 `fig:"significant_distance" default:"500"`
		DisableInhibitor    bool    `fig:"disable_inhibitor"`
		DisableChargerCheck bool    `fig:"disable_charger_check"`
	} `fig:"tracking"`

	Intervals struct {
		Output time.Duration `fig:"output" default:"5s"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	MQTT struct {
		// Empty disables the MQTT sink
		Broker   string `fig:"broker"`
		ClientID string `fig:"client_id" default:"waybar-location"`
		Topic    string `fig:"topic" default:"waybar-location"`
	} `fig:"mqtt"`

	Metrics struct {
		// Empty disables the metrics endpoint
		Listen string `fig:"listen"`
	} `fig:"metrics"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	switch c.Source.Provider {
	case ProviderGPSD, ProviderNMEA:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidProvider, c.Source.Provider)
	}
	if c.Source.Provider == ProviderNMEA && c.Source.NMEA.Device == "" {
		return errors.New("nmea device must not be empty")
	}
	switch c.Tracking.Mode {
	case ModeContinuous, ModeSignificant:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidMode, c.Tracking.Mode)
	}
	if c.Tracking.SignificantInterval <= 0 {
		return fmt.Errorf("invalid significant change interval: %s", c.Tracking.SignificantInterval)
	}
	if c.Tracking.SignificantDistance <= 0 {
		return fmt.Errorf("invalid significant change distance: %f", c.Tracking.SignificantDistance)
	}
	if c.Intervals.Output < minOutputInterval {
		return fmt.Errorf("output interval must be at least %s, got %s", minOutputInterval,
			c.Intervals.Output)
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return errors.New("mqtt topic must not be empty")
	}
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
