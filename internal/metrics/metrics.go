/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package metrics exposes the prometheus collectors the engine updates on
// every tick: open connections, requests by status, CGI duration, and poll
// tick duration.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors bundles every metric the engine touches. A nil *Collectors is
// valid everywhere it is used: every method below guards against it so
// metrics stay optional (spec.md's Non-goals exclude a full observability
// stack, but the ambient logging/metrics idiom is still carried).
type Collectors struct {
	ConnectionsOpen prometheus.Gauge
	RequestsTotal   *prometheus.CounterVec
	CGIDuration     prometheus.Histogram
	PollTickSeconds prometheus.Histogram
}

// New registers and returns a fresh Collectors set against reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webserv_connections_open",
			Help: "Number of currently open client connections.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webserv_requests_total",
			Help: "Total number of completed requests by response status.",
		}, []string{"status"}),
		CGIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webserv_cgi_duration_seconds",
			Help:    "Wall-clock duration of CGI process invocations.",
			Buckets: prometheus.DefBuckets,
		}),
		PollTickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webserv_poll_tick_duration_seconds",
			Help:    "Duration of a single poll-wait-and-dispatch tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	reg.MustRegister(c.ConnectionsOpen, c.RequestsTotal, c.CGIDuration, c.PollTickSeconds)
	return c
}

func (c *Collectors) IncConnections() {
	if c != nil {
		c.ConnectionsOpen.Inc()
	}
}

func (c *Collectors) DecConnections() {
	if c != nil {
		c.ConnectionsOpen.Dec()
	}
}

func (c *Collectors) ObserveRequest(status int) {
	if c != nil {
		c.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}

func (c *Collectors) ObserveCGI(seconds float64) {
	if c != nil {
		c.CGIDuration.Observe(seconds)
	}
}

func (c *Collectors) ObservePollTick(seconds float64) {
	if c != nil {
		c.PollTickSeconds.Observe(seconds)
	}
}
