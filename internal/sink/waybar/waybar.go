// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package waybar renders the displayed position as JSON lines for a waybar custom module.
package waybar

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/presenter"
	"github.com/wneessen/waybar-location/internal/template"
	"github.com/wneessen/waybar-location/internal/vartype"
)

const (
	OutputClass = "waybar-location"
	AlertClass  = "alert"
	AltOK       = "ok"
	AltAlert    = "alert"
)

type outputData struct {
	Text    string   `json:"text"`
	Tooltip string   `json:"tooltip"`
	Alt     string   `json:"alt"`
	Class   []string `json:"class"`
}

// Sink keeps the latest field values and status and prints them on demand. It implements
// presenter.Sink.
type Sink struct {
	templates *template.Templates
	logger    *logger.Logger
	output    io.Writer

	mu   sync.Mutex
	data template.DisplayData
}

func New(tpls *template.Templates, output io.Writer, log *logger.Logger) *Sink {
	return &Sink{
		templates: tpls,
		logger:    log,
		output:    output,
		data: template.DisplayData{
			Latitude:  vartype.Placeholder,
			Longitude: vartype.Placeholder,
			Speed:     vartype.Placeholder,
			Course:    vartype.Placeholder,
			Accuracy:  vartype.Placeholder,
			Timestamp: vartype.Placeholder,
		},
	}
}

func (s *Sink) SetField(field presenter.Field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch field {
	case presenter.FieldLatitude:
		s.data.Latitude = value
	case presenter.FieldLongitude:
		s.data.Longitude = value
	case presenter.FieldSpeed:
		s.data.Speed = value
	case presenter.FieldCourse:
		s.data.Course = value
	case presenter.FieldAccuracy:
		s.data.Accuracy = value
	case presenter.FieldTimestamp:
		s.data.Timestamp = value
		if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
			s.data.LastFix = time.Unix(secs, 0)
		}
	}
}

// SetStatus raises the alert for a non-empty status and clears it otherwise.
func (s *Sink) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Status = status
	s.data.Alert = status != ""
}

// Print renders the current state and writes it as one JSON line.
func (s *Sink) Print(context.Context) {
	s.mu.Lock()
	data := s.data
	s.mu.Unlock()

	textBuf := bytes.NewBuffer(nil)
	if err := s.templates.Text.Execute(textBuf, data); err != nil {
		s.logger.Error("failed to render text template", logger.Err(err))
		return
	}
	tooltipBuf := bytes.NewBuffer(nil)
	if err := s.templates.Tooltip.Execute(tooltipBuf, data); err != nil {
		s.logger.Error("failed to render tooltip template", logger.Err(err))
		return
	}

	output := outputData{
		Text:    textBuf.String(),
		Tooltip: tooltipBuf.String(),
		Alt:     AltOK,
		Class:   []string{OutputClass},
	}
	if data.Alert {
		output.Alt = AltAlert
		output.Class = append(output.Class, AlertClass)
	}

	if err := json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode location data", logger.Err(err))
	}
}
