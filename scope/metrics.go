// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scope

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	bytes    prometheus.Counter
	events   prometheus.Counter
	requests prometheus.Counter
	stalls   prometheus.Counter
	fifo     prometheus.Gauge
}

// newMetrics creates the acquisition metrics.
// Metrics are not registered when reg is nil.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "oscope",
			Name:      "received_bytes_total",
			Help:      "Number of curve bytes received from the instrument.",
		}),
		events: f.NewCounter(prometheus.CounterOpts{
			Namespace: "oscope",
			Name:      "events_total",
			Help:      "Number of events handed to the event writer.",
		}),
		requests: f.NewCounter(prometheus.CounterOpts{
			Namespace: "oscope",
			Name:      "curve_requests_total",
			Help:      "Number of next-event requests sent to the instrument.",
		}),
		stalls: f.NewCounter(prometheus.CounterOpts{
			Namespace: "oscope",
			Name:      "stalls_total",
			Help:      "Number of stream reads that timed out.",
		}),
		fifo: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "oscope",
			Name:      "fifo_bytes",
			Help:      "Number of bytes waiting in the receiver FIFO.",
		}),
	}
}
