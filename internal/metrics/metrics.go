// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "waybar_location"

type Metrics struct {
	SampleBatches        prometheus.Counter
	SamplesProcessed     *prometheus.CounterVec
	FreshFixRequests     prometheus.Counter
	SourceErrors         prometheus.Counter
	AuthorizationChanges *prometheus.CounterVec
	BackgroundHandles    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		SampleBatches: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_batches_total",
			Help:      "Total number of sample batches received from the location source.",
		}),
		SamplesProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_processed_total",
			Help:      "Total number of validated samples by outcome.",
		}, []string{"outcome"}),
		FreshFixRequests: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fresh_fix_requests_total",
			Help:      "Total number of fresh fix requests sent to the location source.",
		}),
		SourceErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Total number of errors reported by the location source.",
		}),
		AuthorizationChanges: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_changes_total",
			Help:      "Total number of authorization notifications by resulting state.",
		}, []string{"state"}),
		BackgroundHandles: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "background_handles_held",
			Help:      "Number of background execution handles currently held.",
		}),
	}
}
