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

package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/blockscope/blockscope/pkg/status"
	"github.com/blockscope/blockscope/pkg/util/stringutil"
)

var auditLogger = logrus.New()
var detailLogger = logrus.New()
var enableAudit = false

type AuditFormatter struct {
}

func (f *AuditFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(entry.Message + "\n"), nil
}

type AuditConf struct {
	AuditLogFile            string `yaml:"audit_log_file"`
	AuditDetailFile         string `yaml:"audit_detail_file"`
	AuditMaxSizeInMegaBytes int    `yaml:"audit_max_size"`
	AuditMaxBackupsCount    int    `yaml:"audit_max_backups"`
	AuditMaxAgeInDays       int    `yaml:"audit_max_age_days"`
	AuditMaxCompress        bool   `yaml:"audit_max_compress"`
}

type EventName string

const (
	EventUncategorized EventName = "UNCATEGORIZED"
	EventConnect       EventName = "CONNECT"
	EventDisconnect    EventName = "DISCONNECT"
	EventRunQuery      EventName = "RUN_QUERY"
	EventAnalyzeBlocks EventName = "ANALYZE_BLOCKS"
	EventPlanDetail    EventName = "PLAN_DETAIL"
)

type QueryType string

const (
	QueryTypeUnknown QueryType = "UNKNOWN"
	QueryTypeDQL     QueryType = "DQL"
	QueryTypeDML     QueryType = "DML"
	QueryTypeDDL     QueryType = "DDL"
)

type AuditStatus struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

type AuditHeader struct {
	Time      time.Time   `json:"time"`
	Status    AuditStatus `json:"status"`
	EventName EventName   `json:"event_name"`
	SessionId string      `json:"session_id"`
}

type UncategorizedEvent struct {
	SourceIp string `json:"source_ip"`
	UrlPath  string `json:"url_path"`
}

type ConnectEvent struct {
	UserName string `json:"user_name"`
	Host     string `json:"host"`
	DBName   string `json:"dbname"`
	SourceIp string `json:"source_ip"`
}

type DisconnectEvent struct {
	Reason string `json:"reason"`
}

type RunQueryEvent struct {
	SourceIp string    `json:"source_ip"`
	Query    string    `json:"query"`
	Type     QueryType `json:"type"`
	CostTime int64     `json:"cost_time"`
}

type AnalyzeBlocksEvent struct {
	SourceIp string `json:"source_ip"`
	Relation string `json:"relation"`
	// Block is -1 for a relation-wide summary.
	Block    int64 `json:"block"`
	NumRows  int64 `json:"num_rows"`
	CostTime int64 `json:"cost_time"`
}

type PlanDetail struct {
	Query    string   `json:"query"`
	PlanTree []string `json:"plan_tree"`
}

// AuditBody holds exactly one event.
type AuditBody struct {
	Uncategorized *UncategorizedEvent `json:"uncategorized,omitempty"`
	Connect       *ConnectEvent       `json:"connect,omitempty"`
	Disconnect    *DisconnectEvent    `json:"disconnect,omitempty"`
	RunQuery      *RunQueryEvent      `json:"run_query,omitempty"`
	AnalyzeBlocks *AnalyzeBlocksEvent `json:"analyze_blocks,omitempty"`
	PlanDetail    *PlanDetail         `json:"plan_detail,omitempty"`
}

type AuditLog struct {
	Header AuditHeader `json:"header"`
	Body   *AuditBody  `json:"body"`
}

func InitAudit(config *AuditConf) error {
	if st, err := os.Stat(config.AuditLogFile); err == nil {
		if st.IsDir() {
			return fmt.Errorf("can't use directory as log file name")
		}
	}
	auditWriter := &lumberjack.Logger{
		Filename:   config.AuditLogFile,
		MaxSize:    config.AuditMaxSizeInMegaBytes, // megabytes
		MaxBackups: config.AuditMaxBackupsCount,
		MaxAge:     config.AuditMaxAgeInDays, //days
		Compress:   config.AuditMaxCompress,
	}
	auditLogger.SetFormatter(&AuditFormatter{})
	auditLogger.SetOutput(auditWriter)

	if st, err := os.Stat(config.AuditDetailFile); err == nil {
		if st.IsDir() {
			return fmt.Errorf("can't use directory as log file name")
		}
	}
	detailWriter := &lumberjack.Logger{
		Filename:   config.AuditDetailFile,
		MaxSize:    config.AuditMaxSizeInMegaBytes, // megabytes
		MaxBackups: config.AuditMaxBackupsCount,
		MaxAge:     config.AuditMaxAgeInDays, //days
		Compress:   config.AuditMaxCompress,
	}
	detailLogger.SetFormatter(&AuditFormatter{})
	detailLogger.SetOutput(detailWriter)
	enableAudit = true
	return nil
}

func recordAuditLog(auditLog *AuditLog) error {
	if !enableAudit {
		return nil
	}
	if auditLog == nil || auditLog.Body == nil {
		return fmt.Errorf("empty audit log message")
	}
	buf, err := json.Marshal(auditLog)
	if err != nil {
		return fmt.Errorf("marshal failed while record audit with err %v", err)
	}

	if auditLog.Body.PlanDetail != nil {
		detailLogger.Warn(string(buf))
	} else {
		auditLogger.Warn(string(buf))
	}
	return nil
}

func newHeader(err error, sessionId string, eventName EventName, t time.Time) AuditHeader {
	header := AuditHeader{
		Time:      t,
		SessionId: sessionId,
		EventName: eventName,
	}
	if err != nil {
		header.Status = AuditStatus{Code: int32(status.CodeOf(err)), Message: err.Error()}
	}
	return header
}

func RecordUncategorizedEvent(err error, sourceIp, urlPath string) {
	if !enableAudit {
		return
	}
	auditLog := &AuditLog{
		Header: newHeader(err, "", EventUncategorized, time.Now()),
		Body: &AuditBody{
			Uncategorized: &UncategorizedEvent{
				SourceIp: sourceIp,
				UrlPath:  urlPath,
			},
		},
	}
	if err := recordAuditLog(auditLog); err != nil {
		logrus.Warnf("failed to record uncategorized event with error: %v", err)
	}
}

func RecordConnectEvent(err error, sessionId, userName, host, dbName, sourceIp string) {
	if !enableAudit {
		return
	}
	auditLog := &AuditLog{
		Header: newHeader(err, sessionId, EventConnect, time.Now()),
		Body: &AuditBody{
			Connect: &ConnectEvent{
				UserName: userName,
				Host:     host,
				DBName:   dbName,
				SourceIp: sourceIp,
			},
		},
	}
	if err := recordAuditLog(auditLog); err != nil {
		logrus.Warnf("failed to record connect event with error: %v", err)
	}
}

func RecordDisconnectEvent(sessionId, reason string) {
	if !enableAudit {
		return
	}
	auditLog := &AuditLog{
		Header: newHeader(nil, sessionId, EventDisconnect, time.Now()),
		Body:   &AuditBody{Disconnect: &DisconnectEvent{Reason: reason}},
	}
	if err := recordAuditLog(auditLog); err != nil {
		logrus.Warnf("failed to record disconnect event with error: %v", err)
	}
}

func RecordRunQueryEvent(err error, sessionId, query string, timeStart time.Time, sourceIp string) {
	if !enableAudit {
		return
	}
	auditLog := &AuditLog{
		Header: newHeader(err, sessionId, EventRunQuery, timeStart),
		Body: &AuditBody{
			RunQuery: &RunQueryEvent{
				SourceIp: sourceIp,
				Query:    stringutil.CompactWhitespace(query),
				Type:     getQueryType(query),
				CostTime: time.Since(timeStart).Milliseconds(),
			},
		},
	}
	if err := recordAuditLog(auditLog); err != nil {
		logrus.Warnf("failed to record run query event with error: %v", err)
	}
}

func RecordAnalyzeBlocksEvent(err error, sessionId, relation string, block, numRows int64, timeStart time.Time, sourceIp string) {
	if !enableAudit {
		return
	}
	auditLog := &AuditLog{
		Header: newHeader(err, sessionId, EventAnalyzeBlocks, timeStart),
		Body: &AuditBody{
			AnalyzeBlocks: &AnalyzeBlocksEvent{
				SourceIp: sourceIp,
				Relation: relation,
				Block:    block,
				NumRows:  numRows,
				CostTime: time.Since(timeStart).Milliseconds(),
			},
		},
	}
	if err := recordAuditLog(auditLog); err != nil {
		logrus.Warnf("failed to record analyze blocks event with error: %v", err)
	}
}

func RecordPlanDetail(sessionId, query string, planTree []string) {
	if !enableAudit {
		return
	}
	auditLog := &AuditLog{
		Header: newHeader(nil, sessionId, EventPlanDetail, time.Now()),
		Body: &AuditBody{
			PlanDetail: &PlanDetail{
				Query:    stringutil.CompactWhitespace(query),
				PlanTree: planTree,
			},
		},
	}
	if err := recordAuditLog(auditLog); err != nil {
		logrus.Warnf("failed to record plan details with error: %v", err)
	}
}

func getQueryType(query string) QueryType {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return QueryTypeUnknown
	}
	switch strings.ToUpper(strings.TrimLeft(fields[0], "(")) {
	case "SELECT", "WITH", "VALUES", "TABLE":
		return QueryTypeDQL
	case "INSERT", "UPDATE", "DELETE", "MERGE":
		return QueryTypeDML
	case "CREATE", "ALTER", "DROP", "TRUNCATE":
		return QueryTypeDDL
	default:
		return QueryTypeUnknown
	}
}
