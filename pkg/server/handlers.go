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
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blockscope/blockscope/pkg/analyzer"
	"github.com/blockscope/blockscope/pkg/audit"
	"github.com/blockscope/blockscope/pkg/pgconn"
	"github.com/blockscope/blockscope/pkg/status"
	"github.com/blockscope/blockscope/pkg/util/logutil"
	prom "github.com/blockscope/blockscope/pkg/util/prometheus"
	"github.com/blockscope/blockscope/pkg/util/sqlbuilder"
)

type QueryRequest struct {
	Query string `json:"query"`
}

type BlocksRequest struct {
	Table string `json:"table"`
	// Block selects one block; absent means the per-block summary.
	Block *int64 `json:"block"`
	// Plan overrides the plan captured by the last query of the session.
	Plan json.RawMessage `json:"plan"`
}

func finishLog(logEntry *logutil.MonitorLogEntry, timeStart time.Time, c *gin.Context, err error) {
	logEntry.CostTime = time.Since(timeStart)
	if err != nil {
		logEntry.ErrorCode = status.CodeOf(err).String()
		logEntry.ErrorMsg = err.Error()
		logrus.Errorf("%v|ClientIP:%v", logEntry, c.ClientIP())
		return
	}
	logrus.Infof("%v|ClientIP:%v", logEntry, c.ClientIP())
}

func (app *App) ConnectHandler(c *gin.Context) {
	timeStart := time.Now()
	logEntry := &logutil.MonitorLogEntry{
		ActionName: fmt.Sprintf("%v@%v", ActionNameConnect, c.FullPath()),
	}

	var params pgconn.ConnParams
	if err := c.ShouldBindJSON(&params); err != nil {
		err = status.Wrap(status.Code_BAD_REQUEST, fmt.Errorf("invalid request body: %v", err))
		finishLog(logEntry, timeStart, c, err)
		audit.RecordUncategorizedEvent(err, c.ClientIP(), c.FullPath())
		writeError(c, err)
		return
	}
	logEntry.RawRequest = fmt.Sprintf("%s@%s:%d/%s", params.User, params.Host, params.Port, params.DBName)

	s, err := app.connect(c, params)
	sid := ""
	if s != nil {
		sid = s.id
		logEntry.SessionID = sid
	}
	finishLog(logEntry, timeStart, c, err)
	audit.RecordConnectEvent(err, sid, params.User, params.Host, params.DBName, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, gin.H{"token": s.id})
}

func (app *App) connect(c *gin.Context, params pgconn.ConnParams) (*session, error) {
	conn, err := app.connector(c.Request.Context(), params)
	if err != nil {
		return nil, err
	}
	s, err := newSession(params, conn)
	if err != nil {
		conn.Close()
		return nil, status.Wrap(status.Code_INTERNAL, err)
	}
	app.sessions.SetDefault(s.id, s)
	prom.GetMonitor().ActiveSessions.Inc()
	return s, nil
}

func (app *App) DisconnectHandler(c *gin.Context) {
	timeStart := time.Now()
	logEntry := &logutil.MonitorLogEntry{
		ActionName: fmt.Sprintf("%v@%v", ActionNameDisconnect, c.FullPath()),
	}
	s, err := app.authenticate(c)
	if err != nil {
		finishLog(logEntry, timeStart, c, err)
		writeError(c, err)
		return
	}
	logEntry.SessionID = s.id
	app.dropSession(s, ReasonLogout)
	finishLog(logEntry, timeStart, c, nil)
	writeOK(c, gin.H{"token": s.id})
}

func (app *App) QueryHandler(c *gin.Context) {
	timeStart := time.Now()
	logEntry := &logutil.MonitorLogEntry{
		ActionName: fmt.Sprintf("%v@%v", ActionNameQuery, c.FullPath()),
	}
	s, err := app.authenticate(c)
	if err != nil {
		finishLog(logEntry, timeStart, c, err)
		audit.RecordUncategorizedEvent(err, c.ClientIP(), c.FullPath())
		writeError(c, err)
		return
	}
	logEntry.SessionID = s.id

	if err := s.acquire(); err != nil {
		finishLog(logEntry, timeStart, c, err)
		writeError(c, err)
		return
	}
	// every query replaces the captured plan, a failed one leaves none
	s.plan = nil

	var request QueryRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		s.mu.Unlock()
		err = status.Wrap(status.Code_BAD_REQUEST, fmt.Errorf("invalid request body: %v", err))
		finishLog(logEntry, timeStart, c, err)
		writeError(c, err)
		return
	}
	logEntry.RawRequest = request.Query

	report, err := app.analyzer.AnalyzeQuery(c.Request.Context(), s.conn, request.Query)
	if report != nil {
		s.plan = report.Plan
	}
	s.mu.Unlock()

	prom.GetMonitor().ObserveAnalysis(ActionNameQuery, status.CodeOf(err).String())
	finishLog(logEntry, timeStart, c, err)
	audit.RecordRunQueryEvent(err, s.id, request.Query, timeStart, c.ClientIP())
	if report == nil {
		writeError(c, err)
		return
	}
	audit.RecordPlanDetail(s.id, request.Query, report.PlanTree)

	body := gin.H{
		"results":   report.Plan,
		"plan_tree": report.PlanTree,
		"relations": report.Relations,
	}
	if err != nil {
		body["statistics_error"] = errorMessage(err)
	} else {
		body["statistics"] = report.Statistics
		body["count"] = []map[string]int64{report.BlockCounts}
	}
	writeOK(c, body)
}

// blocksRequest authenticates and decodes a block analysis request,
// resolving the plan to analyze.
func (app *App) blocksRequest(c *gin.Context, logEntry *logutil.MonitorLogEntry) (*session, *BlocksRequest, error) {
	s, err := app.authenticate(c)
	if err != nil {
		return nil, nil, err
	}
	logEntry.SessionID = s.id

	var request BlocksRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		return nil, nil, status.Wrap(status.Code_BAD_REQUEST, fmt.Errorf("invalid request body: %v", err))
	}
	logEntry.Relation = request.Table
	if request.Table == "" {
		return nil, nil, status.New(status.Code_BAD_REQUEST, "table is required")
	}
	return s, &request, nil
}

func (s *session) planFor(request *BlocksRequest) ([]byte, error) {
	if len(request.Plan) > 0 && string(request.Plan) != "null" {
		return request.Plan, nil
	}
	if s.plan == nil {
		return nil, status.New(status.Code_PLAN_UNAVAILABLE, "no plan captured, run a query first")
	}
	return s.plan, nil
}

func (app *App) BlocksHandler(c *gin.Context) {
	timeStart := time.Now()
	logEntry := &logutil.MonitorLogEntry{
		ActionName: fmt.Sprintf("%v@%v", ActionNameBlocks, c.FullPath()),
	}
	s, request, err := app.blocksRequest(c, logEntry)
	if err != nil {
		finishLog(logEntry, timeStart, c, err)
		writeError(c, err)
		return
	}
	block := sqlbuilder.NoBlock
	if request.Block != nil {
		block = *request.Block
	}
	logEntry.RawRequest = fmt.Sprintf("block=%d", block)

	if err := s.acquire(); err != nil {
		finishLog(logEntry, timeStart, c, err)
		writeError(c, err)
		return
	}
	report, err := app.analyzeBlocks(c, s, request, block)
	s.mu.Unlock()

	var numRows int64
	if report != nil {
		numRows = int64(len(report.Rows))
	}
	prom.GetMonitor().ObserveAnalysis(ActionNameBlocks, status.CodeOf(err).String())
	finishLog(logEntry, timeStart, c, err)
	audit.RecordAnalyzeBlocksEvent(err, s.id, request.Table, block, numRows, timeStart, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, report)
}

// analyzeBlocks runs with s.mu held.
func (app *App) analyzeBlocks(c *gin.Context, s *session, request *BlocksRequest, block int64) (*analyzer.BlockReport, error) {
	planDoc, err := s.planFor(request)
	if err != nil {
		return nil, err
	}
	return app.analyzer.AnalyzeBlocks(c.Request.Context(), s.conn, planDoc, request.Table, block)
}

func (app *App) VisualsHandler(c *gin.Context) {
	timeStart := time.Now()
	logEntry := &logutil.MonitorLogEntry{
		ActionName: fmt.Sprintf("%v@%v", ActionNameVisuals, c.FullPath()),
	}
	s, request, err := app.blocksRequest(c, logEntry)
	if err != nil {
		finishLog(logEntry, timeStart, c, err)
		writeError(c, err)
		return
	}

	if err := s.acquire(); err != nil {
		finishLog(logEntry, timeStart, c, err)
		writeError(c, err)
		return
	}
	planDoc, err := s.planFor(request)
	var summary analyzer.BlockSummary
	if err == nil {
		summary, err = app.analyzer.AnalyzeVisuals(c.Request.Context(), s.conn, planDoc, request.Table)
	}
	s.mu.Unlock()

	prom.GetMonitor().ObserveAnalysis(ActionNameVisuals, status.CodeOf(err).String())
	finishLog(logEntry, timeStart, c, err)
	audit.RecordAnalyzeBlocksEvent(err, s.id, request.Table, sqlbuilder.NoBlock, int64(len(summary)), timeStart, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, summary)
}
