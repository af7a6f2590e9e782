// Mgmt
// Copyright (C) James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package prometheus provides the metrics of the graph executor. Each instance
// has its own registry, so that two executors in one process never share their
// counters.
package prometheus

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/purpleidea/causality/util/errwrap"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// DefaultPrometheusListen is registered in
// https://github.com/prometheus/prometheus/wiki/Default-port-allocations
const DefaultPrometheusListen = "127.0.0.1:9233"

// Prometheus is the struct that contains information about the prometheus
// instance. Run Init() on it.
type Prometheus struct {
	Listen string // the listen specification for the net/http server

	registry *prometheus.Registry
	server   *http.Server

	nodesTotal      *prometheus.CounterVec   // nodes that finished, by state
	stealsTotal     prometheus.Counter       // work taken from another worker
	nodeDuration    *prometheus.HistogramVec // run time of each node
	queued          prometheus.Gauge         // ready nodes waiting in any queue
	graphsTotal     *prometheus.CounterVec   // graph runs, by outcome
	workerNodeTotal *prometheus.CounterVec   // nodes run by each worker
}

// Init builds the registry and registers every metric.
func (obj *Prometheus) Init() error {
	if len(obj.Listen) == 0 {
		obj.Listen = DefaultPrometheusListen
	}
	obj.registry = prometheus.NewRegistry()

	obj.nodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causality_teg_nodes_total",
			Help: "Number of graph nodes that have finished.",
		},
		// state: completed, failed, skipped
		[]string{"state"},
	)
	obj.stealsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "causality_teg_steals_total",
			Help: "Number of nodes a worker took from the queue of another.",
		},
	)
	obj.nodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "causality_teg_node_duration_seconds",
			Help:    "Time spent running each node.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"state"},
	)
	obj.queued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "causality_teg_queued_nodes",
			Help: "Number of ready nodes waiting for a worker.",
		},
	)
	obj.graphsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causality_teg_graphs_total",
			Help: "Number of graph runs.",
		},
		// result: ok, failed, timeout
		[]string{"result"},
	)
	obj.workerNodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causality_teg_worker_nodes_total",
			Help: "Number of nodes run by each worker.",
		},
		[]string{"worker"},
	)

	for _, c := range []prometheus.Collector{obj.nodesTotal, obj.stealsTotal, obj.nodeDuration, obj.queued, obj.graphsTotal, obj.workerNodeTotal} {
		if err := obj.registry.Register(c); err != nil {
			return errwrap.Wrapf(err, "can't register metric")
		}
	}
	return nil
}

// Registry returns the registry that holds the metrics.
func (obj *Prometheus) Registry() *prometheus.Registry {
	return obj.registry
}

// Start runs a http server in a go routine, that responds to /metrics as
// prometheus would expect.
func (obj *Prometheus) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(obj.registry, promhttp.HandlerOpts{}))
	obj.server = &http.Server{
		Addr:              obj.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go obj.server.ListenAndServe() // returns ErrServerClosed on Stop
	return nil
}

// Stop the http server.
func (obj *Prometheus) Stop() error {
	if obj.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return obj.server.Shutdown(ctx)
}

// Dump writes every metric in the text exposition format.
func (obj *Prometheus) Dump(w io.Writer) error {
	families, err := obj.registry.Gather()
	if err != nil {
		return errwrap.Wrapf(err, "can't gather metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// UpdateNodeTotal counts a node that finished in this state, and how long it
// ran for.
func (obj *Prometheus) UpdateNodeTotal(state string, d time.Duration) {
	obj.nodesTotal.With(prometheus.Labels{"state": state}).Inc()
	if d > 0 {
		obj.nodeDuration.With(prometheus.Labels{"state": state}).Observe(d.Seconds())
	}
}

// UpdateWorkerTotal counts a node run by this worker.
func (obj *Prometheus) UpdateWorkerTotal(worker string) {
	obj.workerNodeTotal.With(prometheus.Labels{"worker": worker}).Inc()
}

// IncSteals counts a steal.
func (obj *Prometheus) IncSteals() {
	obj.stealsTotal.Inc()
}

// SetQueued sets the number of queued nodes.
func (obj *Prometheus) SetQueued(n int) {
	obj.queued.Set(float64(n))
}

// UpdateGraphTotal counts a finished graph run.
func (obj *Prometheus) UpdateGraphTotal(result string) {
	obj.graphsTotal.With(prometheus.Labels{"result": result}).Inc()
}
