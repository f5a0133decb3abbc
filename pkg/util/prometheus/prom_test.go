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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	r := require.New(t)
	gin.SetMode(gin.TestMode)
	m := newMonitor()

	router := gin.New()
	router.Use(m.Middleware)
	router.GET("/health_check", func(c *gin.Context) {
		c.Set(ResponseStatusKey, "OK")
		c.String(http.StatusOK, "ok")
	})
	router.GET(MetricsPath, func(c *gin.Context) {
		c.String(http.StatusOK, "")
	})

	for _, path := range []string{"/health_check", "/health_check", MetricsPath} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		r.Equal(http.StatusOK, w.Code)
	}

	r.Equal(2.0, testutil.ToFloat64(m.RequestTotal.WithLabelValues("/health_check", http.MethodGet, "200", "OK")))
	r.Equal(1, testutil.CollectAndCount(m.RequestTotal))
}

func TestObserveAnalysis(t *testing.T) {
	r := require.New(t)
	m := newMonitor()

	m.ObserveAnalysis("visuals", "OK")
	m.ObserveAnalysis("visuals", "SCAN_NOT_FOUND")
	m.ObserveAnalysis("visuals", "OK")
	r.Equal(2.0, testutil.ToFloat64(m.AnalysisTotal.WithLabelValues("visuals", "OK")))

	m.ActiveSessions.Inc()
	r.Equal(1.0, testutil.ToFloat64(m.ActiveSessions))
	r.NotNil(GetMonitor())
	r.Same(GetMonitor(), GetMonitor())
}

func TestRegister(t *testing.T) {
	r := require.New(t)
	reg := prometheus.NewRegistry()
	m := newMonitor()
	m.register(reg)
	m.ActiveSessions.Set(3)

	r.NoError(testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP blockscope_active_sessions database sessions currently held by the server.
# TYPE blockscope_active_sessions gauge
blockscope_active_sessions 3
`), "blockscope_active_sessions"))
	r.Panics(func() { m.register(reg) })
}
