// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import "github.com/prometheus/client_golang/prometheus"

// collector adapts Pool.Stats into a prometheus.Collector.
type collector struct {
	p          *Pool
	allocated  *prometheus.Desc
	freeListed *prometheus.Desc
	slabs      *prometheus.Desc
}

// NewCollector returns a prometheus.Collector that reports p's block
// accounting. Registering it is optional and has no effect on allocation
// behavior; it exists so a process embedding tntgo can scrape slab
// pressure without the core itself depending on any particular metrics
// backend.
func NewCollector(p *Pool) prometheus.Collector {
	return &collector{
		p:          p,
		allocated:  prometheus.NewDesc("tntgo_pool_blocks_allocated", "Blocks currently checked out of the pool.", nil, nil),
		freeListed: prometheus.NewDesc("tntgo_pool_blocks_free", "Blocks currently sitting on the free list.", nil, nil),
		slabs:      prometheus.NewDesc("tntgo_pool_slabs_total", "Slabs ever allocated from the Go heap.", nil, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.allocated
	ch <- c.freeListed
	ch <- c.slabs
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.p.Stats()
	ch <- prometheus.MustNewConstMetric(c.allocated, prometheus.GaugeValue, float64(s.Allocated))
	ch <- prometheus.MustNewConstMetric(c.freeListed, prometheus.GaugeValue, float64(s.FreeListed))
	ch <- prometheus.MustNewConstMetric(c.slabs, prometheus.GaugeValue, float64(s.Slabs))
}
