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

package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	prom "github.com/blockscope/blockscope/pkg/util/prometheus"
)

const (
	healthCheckPath = "/health_check"
	connectionPath  = "/connection"
	queryPath       = "/query"
	blocksPath      = "/blocks"
	visualsPath     = "/visuals"
)

func NewServer(app *App) *http.Server {
	return &http.Server{
		Addr:           fmt.Sprintf(":%v", app.Port()),
		Handler:        NewRouter(app),
		ReadTimeout:    30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

func NewRouter(app *App) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger())
	router.Use(gin.RecoveryWithWriter(logrus.StandardLogger().Out))
	router.Use(cors.New(corsConfig(app.config.Cors.AllowOrigins)))
	router.Use(prom.GetMonitor().Middleware)
	router.GET(prom.MetricsPath, func(ctx *gin.Context) {
		promhttp.Handler().ServeHTTP(ctx.Writer, ctx.Request)
	})

	router.GET(healthCheckPath, app.HealthHandler)
	router.POST(connectionPath, app.ConnectHandler)
	router.DELETE(connectionPath, app.DisconnectHandler)
	router.POST(queryPath, app.QueryHandler)
	router.POST(blocksPath, app.BlocksHandler)
	router.POST(visualsPath, app.VisualsHandler)
	return router
}

func corsConfig(allowOrigins []string) cors.Config {
	conf := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        50 * time.Second,
	}
	for _, origin := range allowOrigins {
		if origin == "*" {
			conf.AllowAllOrigins = true
			return conf
		}
	}
	if len(allowOrigins) == 0 {
		conf.AllowAllOrigins = true
		return conf
	}
	conf.AllowOrigins = allowOrigins
	conf.AllowCredentials = true
	return conf
}

// ginLogger creates a gin logger middleware
func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		// Process request
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		msg := fmt.Sprintf("|GIN|status=%v|method=%v|path=%v|ip=%v|latency=%v|%s", status, c.Request.Method, path, c.ClientIP(), latency, c.Errors.String())
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			logrus.Warn(msg)
		} else if status >= http.StatusInternalServerError {
			logrus.Error(msg)
		} else {
			logrus.Info(msg)
		}
	}
}
