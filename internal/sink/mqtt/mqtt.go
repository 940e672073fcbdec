// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mqtt publishes the displayed position as retained MQTT topics, one per field.
package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/presenter"
)

const (
	StatusTopic = "status"
	AlertTopic  = "alert"

	connectTimeout = time.Second * 10
	publishTimeout = time.Second * 2
	quiesce        = 250 // milliseconds
	qos            = 1
)

var ErrTimeout = errors.New("mqtt operation timed out")

// Config configures the MQTT sink.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
}

// publisher is satisfied by mqtt.Client.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Sink implements presenter.Sink on top of an MQTT connection.
type Sink struct {
	client  publisher
	topic   string
	logger  *logger.Logger
	timeout time.Duration
}

// Connect connects to the broker and returns the sink.
func Connect(conf Config, log *logger.Logger) (*Sink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(conf.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", slog.String("broker", conf.Broker), logger.Err(err))
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("failed to connect to mqtt broker %q: %w", conf.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %q: %w", conf.Broker, err)
	}
	log.Info("connected to mqtt broker", slog.String("broker", conf.Broker))

	return newSink(client, conf.Topic, log), nil
}

func newSink(client publisher, topic string, log *logger.Logger) *Sink {
	return &Sink{
		client:  client,
		topic:   topic,
		logger:  log,
		timeout: publishTimeout,
	}
}

func (s *Sink) SetField(field presenter.Field, value string) {
	s.publish(field.String(), value)
}

// SetStatus publishes the status message and the alert flag derived from it.
func (s *Sink) SetStatus(status string) {
	s.publish(StatusTopic, status)
	s.publish(AlertTopic, strconv.FormatBool(status != ""))
}

// Close disconnects from the broker.
func (s *Sink) Close() {
	s.client.Disconnect(quiesce)
}

// publish sends a retained message and waits a bounded time for the broker. Failures are only
// logged, the display keeps working without the broker.
func (s *Sink) publish(subtopic, payload string) {
	topic := s.topic + "/" + subtopic
	token := s.client.Publish(topic, qos, true, payload)
	if !token.WaitTimeout(s.timeout) {
		s.logger.Warn("mqtt publish timed out", slog.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("failed to publish mqtt message", slog.String("topic", topic), logger.Err(err))
	}
}
