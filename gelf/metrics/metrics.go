/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics tracks the broker's per-direction throughput counters
// and bridges them to Prometheus for the optional /metrics endpoint.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter is a {count, bytes, elapsed-since-reset} triple for one named
// stream ("read" or "sent"). Reset on each report, per §3.
type Counter struct {
	mu      sync.Mutex
	count   uint64
	bytes   uint64
	resetAt time.Time
}

func newCounter() *Counter {
	return &Counter{resetAt: time.Now()}
}

// Add records one more item of n bytes on this stream.
func (c *Counter) Add(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	c.bytes += uint64(n)
}

// Snapshot returns the current {count, bytes, elapsed} triple and resets
// the counters, matching the "reset on each report" contract.
func (c *Counter) Snapshot() (count uint64, bytes uint64, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, bytes = c.count, c.bytes
	elapsed = time.Since(c.resetAt)

	c.count, c.bytes = 0, 0
	c.resetAt = time.Now()

	return count, bytes, elapsed
}

// Registry holds the broker's read/sent counters plus the Prometheus
// gauges/counters derived from them, registered in a private registry so
// the HTTP handler exposes only broker metrics.
type Registry struct {
	Read *Counter
	Sent *Counter

	reg *prometheus.Registry

	readTotal      prometheus.Counter
	readBytesTotal prometheus.Counter
	sentTotal      prometheus.Counter
	sentBytesTotal prometheus.Counter
	queueLength    prometheus.Gauge
	queueDropped   prometheus.Gauge
	upstreamState  prometheus.Gauge
}

// New builds a fresh counter registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Read: newCounter(),
		Sent: newCounter(),
		reg:  reg,
		readTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gelf_broker_read_total",
			Help: "Records read from the intake socket.",
		}),
		readBytesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gelf_broker_read_bytes_total",
			Help: "Bytes read from the intake socket.",
		}),
		sentTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gelf_broker_sent_total",
			Help: "Records written to the upstream connection.",
		}),
		sentBytesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gelf_broker_sent_bytes_total",
			Help: "Bytes written to the upstream connection.",
		}),
		queueLength: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gelf_broker_queue_length",
			Help: "Number of records currently queued.",
		}),
		queueDropped: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gelf_broker_queue_dropped_total",
			Help: "Cumulative records dropped because the soft queue cap was exceeded.",
		}),
		upstreamState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gelf_broker_upstream_state",
			Help: "Upstream connection state (0=UNKNOWN,1=CONNECTING,2=CONNECTED,3=ERROR,4=SHUTDOWN).",
		}),
	}

	return r
}

// Registry exposes the underlying Prometheus registry for wiring an HTTP handler.
func (r *Registry) Registry() *prometheus.Registry {
	return r.reg
}

// Report snapshots the read/sent counters into the Prometheus counters and
// updates the queue length / upstream state gauges. Called once per
// T_main tick.
func (r *Registry) Report(queueLength int, queueDropped uint64, upstreamState int) {
	rc, rb, _ := r.Read.Snapshot()
	sc, sb, _ := r.Sent.Snapshot()

	r.readTotal.Add(float64(rc))
	r.readBytesTotal.Add(float64(rb))
	r.sentTotal.Add(float64(sc))
	r.sentBytesTotal.Add(float64(sb))
	r.queueLength.Set(float64(queueLength))
	r.queueDropped.Set(float64(queueDropped))
	r.upstreamState.Set(float64(upstreamState))
}
