// Copyright 2023 Ant Group Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prom

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricsPath = "/metrics"
	namespace   = "blockscope"

	// ResponseStatusKey is the gin context key handlers set to the status
	// code name of their answer.
	ResponseStatusKey = "response_code"
)

var (
	requestLabels  = []string{"uri", "method", "code", "status"}
	analysisLabels = []string{"action", "status"}
	// up to two minutes for EXPLAIN ANALYZE of slow queries
	durationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 120}

	once    sync.Once
	monitor *Monitor
)

type Monitor struct {
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AnalysisTotal   *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
}

// GetMonitor returns the process-wide monitor registered on the default
// registry.
func GetMonitor() *Monitor {
	once.Do(func() {
		monitor = newMonitor()
		monitor.register(prometheus.DefaultRegisterer)
	})
	return monitor
}

func newMonitor() *Monitor {
	return &Monitor{
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_total",
			Help:      "requests received, by route and answer.",
		}, requestLabels),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "time spent answering a request.",
			Buckets:   durationBuckets,
		}, requestLabels),
		AnalysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_total",
			Help:      "block analyses and EXPLAIN runs by kind and outcome.",
		}, analysisLabels),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "database sessions currently held by the server.",
		}),
	}
}

func (m *Monitor) register(reg prometheus.Registerer) {
	reg.MustRegister(m.RequestTotal, m.RequestDuration, m.AnalysisTotal, m.ActiveSessions)
}

// Middleware records every request except scrapes of the metrics route.
func (m *Monitor) Middleware(ctx *gin.Context) {
	if ctx.Request.URL.Path == MetricsPath {
		ctx.Next()
		return
	}
	startTime := time.Now()
	ctx.Next()

	labels := prometheus.Labels{
		"uri":    ctx.FullPath(),
		"method": ctx.Request.Method,
		"code":   strconv.Itoa(ctx.Writer.Status()),
		"status": ctx.GetString(ResponseStatusKey),
	}
	m.RequestTotal.With(labels).Inc()
	m.RequestDuration.With(labels).Observe(time.Since(startTime).Seconds())
}

// ObserveAnalysis counts one analysis of the given kind, labelled with the
// status code name of its outcome.
func (m *Monitor) ObserveAnalysis(action, status string) {
	m.AnalysisTotal.WithLabelValues(action, status).Inc()
}
