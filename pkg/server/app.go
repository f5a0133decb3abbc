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
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/blockscope/blockscope/pkg/analyzer"
	"github.com/blockscope/blockscope/pkg/audit"
	"github.com/blockscope/blockscope/pkg/config"
	"github.com/blockscope/blockscope/pkg/plan"
	"github.com/blockscope/blockscope/pkg/status"
	"github.com/blockscope/blockscope/pkg/util/logutil"
	prom "github.com/blockscope/blockscope/pkg/util/prometheus"
)

const (
	ActionNameConnect    = "Connect"
	ActionNameDisconnect = "Disconnect"
	ActionNameQuery      = "Query"
	ActionNameBlocks     = "Blocks"
	ActionNameVisuals    = "Visuals"
	ActionNameSessionGC  = "SessionGC"

	ReasonLogout   = "logout"
	ReasonExpired  = "expired"
	ReasonShutdown = "shutdown"
)

type App struct {
	config    *config.Config
	analyzer  *analyzer.Analyzer
	connector Connector
	sessions  *cache.Cache
	watcher   *SessionWatcher
}

// NewApp builds the application. A nil connector opens PostgreSQL
// connections with the configured options.
func NewApp(conf *config.Config, connector Connector) (*App, error) {
	policy, err := plan.ParseScanPolicy(conf.Analyzer.ScanPolicy)
	if err != nil {
		return nil, err
	}
	if connector == nil {
		connector = NewPgConnector(conf.PgOptions())
	}
	a := analyzer.New()
	a.ScanPolicy = policy
	a.SettleTimeout = conf.Analyzer.StatsSettleTimeout
	a.PollInterval = conf.Analyzer.StatsPollInterval
	a.StableWindow = conf.Analyzer.StatsStableWindow

	app := &App{
		config:    conf,
		analyzer:  a,
		connector: connector,
		sessions: cache.New(time.Duration(conf.SessionExpireTime),
			time.Duration(conf.SessionCheckInterval)),
	}
	app.sessions.OnEvicted(app.onSessionEvicted)

	if conf.SessionPingInterval > 0 {
		app.watcher, err = NewSessionWatcher(app.listSessions, app.onSessionDead,
			WithPingInterval(conf.SessionPingInterval))
		if err != nil {
			return nil, err
		}
	}
	return app, nil
}

func (app *App) Port() int {
	return app.config.Port
}

// Close stops the health checks and closes every session.
func (app *App) Close() {
	if app.watcher != nil {
		app.watcher.Stop()
	}
	for _, s := range app.listSessions() {
		app.dropSession(s, ReasonShutdown)
	}
}

func (app *App) HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (app *App) getSession(sid string) (*session, bool) {
	value, exists := app.sessions.Get(sid)
	if !exists {
		return nil, false
	}
	if result, ok := value.(*session); ok {
		return result, exists
	}
	return nil, false
}

func (app *App) listSessions() []*session {
	items := app.sessions.Items()
	res := make([]*session, 0, len(items))
	for _, item := range items {
		if s, ok := item.Object.(*session); ok {
			res = append(res, s)
		}
	}
	return res
}

// authenticate resolves the session of the request and extends its lifetime.
func (app *App) authenticate(c *gin.Context) (*session, error) {
	token := parseAuthorization(c.GetHeader("Authorization"))
	if token == "" {
		return nil, status.New(status.Code_AUTHORIZATION_FAILED, "Invalid or missing authorization")
	}
	s, ok := app.getSession(token)
	if !ok {
		return nil, status.New(status.Code_AUTHORIZATION_FAILED, "Invalid or missing authorization. Check the database connection")
	}
	app.sessions.SetDefault(token, s)
	return s, nil
}

// parseAuthorization accepts "Bearer <token>" as well as a bare token.
func parseAuthorization(header string) string {
	fields := strings.Fields(header)
	switch {
	case len(fields) == 0:
		return ""
	case len(fields) > 1 && strings.EqualFold(fields[0], "Bearer"):
		return fields[1]
	default:
		return fields[0]
	}
}

func (app *App) onSessionEvicted(sid string, value interface{}) {
	s, ok := value.(*session)
	if !ok {
		return
	}
	s.close()
	prom.GetMonitor().ActiveSessions.Dec()
	reason := s.reason(ReasonExpired)
	logEntry := &logutil.MonitorLogEntry{
		SessionID:  sid,
		ActionName: ActionNameSessionGC,
		CostTime:   time.Since(s.createdAt),
		ErrorMsg:   reason,
	}
	logrus.Infof("%v|User:%s@%s/%s", logEntry, s.user, s.host, s.dbName)
	audit.RecordDisconnectEvent(sid, reason)
}

// dropSession removes s from the registry, which closes its connection.
func (app *App) dropSession(s *session, reason string) {
	s.dropReason.Store(reason)
	app.sessions.Delete(s.id)
}

func (app *App) onSessionDead(sid string, reason string) {
	s, ok := app.getSession(sid)
	if !ok {
		return
	}
	logrus.Warnf("drop session %s: %s", sid, reason)
	app.dropSession(s, reason)
}

func httpStatusOf(code status.Code) int {
	switch code {
	case status.Code_OK:
		return http.StatusOK
	case status.Code_AUTHORIZATION_FAILED:
		return http.StatusUnauthorized
	case status.Code_INTERNAL:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func errorMessage(err error) string {
	var s *status.Status
	if errors.As(err, &s) {
		return s.Message()
	}
	return err.Error()
}

func writeError(c *gin.Context, err error) {
	code := status.CodeOf(err)
	c.Set(prom.ResponseStatusKey, code.String())
	c.JSON(httpStatusOf(code), gin.H{
		"error": errorMessage(err),
		"code":  code.String(),
	})
}

func writeOK(c *gin.Context, body any) {
	c.Set(prom.ResponseStatusKey, status.Code_OK.String())
	c.JSON(http.StatusOK, body)
}
