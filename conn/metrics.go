// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package conn

import "github.com/prometheus/client_golang/prometheus"

// statser is implemented by both Connection and BlockingConnection;
// NewCollector works with either so a caller holding client.Connector's
// mixed connection slice doesn't need to know which kind it dialed.
type statser interface {
	Stats() Stats
}

// collector adapts a statser's Stats into a prometheus.Collector.
type collector struct {
	c             statser
	requestsTotal *prometheus.Desc
	inFlight      *prometheus.Desc
	errorsTotal   *prometheus.Desc
}

// NewCollector returns a prometheus.Collector that reports c's request
// counters. Registering it is optional and has no effect on connection
// behavior, mirroring pool.NewCollector's role for the slab allocator.
func NewCollector(c statser) prometheus.Collector {
	return &collector{
		c:             c,
		requestsTotal: prometheus.NewDesc("tntgo_conn_requests_total", "Requests sent on this connection.", nil, nil),
		inFlight:      prometheus.NewDesc("tntgo_conn_requests_in_flight", "Requests sent but not yet taken by the caller.", nil, nil),
		errorsTotal:   prometheus.NewDesc("tntgo_conn_errors_total", "I/O failures observed on this connection.", nil, nil),
	}
}

func (m *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.requestsTotal
	ch <- m.inFlight
	ch <- m.errorsTotal
}

func (m *collector) Collect(ch chan<- prometheus.Metric) {
	s := m.c.Stats()
	ch <- prometheus.MustNewConstMetric(m.requestsTotal, prometheus.CounterValue, float64(s.RequestsTotal))
	ch <- prometheus.MustNewConstMetric(m.inFlight, prometheus.GaugeValue, float64(s.InFlight))
	ch <- prometheus.MustNewConstMetric(m.errorsTotal, prometheus.CounterValue, float64(s.Errors))
}
