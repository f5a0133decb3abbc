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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockscope/blockscope/pkg/status"
)

func TestAuditHeaderToJsonString(t *testing.T) {
	r := require.New(t)
	auditLog := &AuditLog{
		Header: AuditHeader{
			Time:      time.Date(2022, 10, 1, 2, 0, 0, 0, time.UTC),
			SessionId: "a0b72d96-f305-11ed-833c-0242c0a82005",
			EventName: EventUncategorized,
		},
	}
	buf, err := json.Marshal(auditLog)
	r.NoError(err)

	expected := `{"header":{"time":"2022-10-01T02:00:00Z", "status":{"code":0, "message":""}, "event_name":"UNCATEGORIZED", "session_id":"a0b72d96-f305-11ed-833c-0242c0a82005"}, "body":null}`
	r.JSONEq(expected, string(buf))
}

func TestAnalyzeBlocksEventToJsonString(t *testing.T) {
	r := require.New(t)
	auditLog := &AuditLog{
		Header: newHeader(status.New(status.Code_SCAN_NOT_FOUND, "no scan of relation \"orders\" in the plan"),
			"a0b72d96-f305-11ed-833c-0242c0a82005", EventAnalyzeBlocks, time.Date(2022, 10, 1, 2, 0, 0, 0, time.UTC)),
		Body: &AuditBody{
			AnalyzeBlocks: &AnalyzeBlocksEvent{
				SourceIp: "127.0.0.1",
				Relation: "orders",
				Block:    -1,
				CostTime: 30,
			},
		},
	}
	buf, err := json.Marshal(auditLog)
	r.NoError(err)

	expected := `{"header":{"time":"2022-10-01T02:00:00Z","status":{"code":3,"message":"no scan of relation \"orders\" in the plan"},"event_name":"ANALYZE_BLOCKS","session_id":"a0b72d96-f305-11ed-833c-0242c0a82005"},"body":{"analyze_blocks":{"source_ip":"127.0.0.1","relation":"orders","block":-1,"num_rows":0,"cost_time":30}}}`
	r.JSONEq(expected, string(buf))
}

func TestGetQueryType(t *testing.T) {
	r := require.New(t)
	r.Equal(QueryTypeDQL, getQueryType("select * from orders"))
	r.Equal(QueryTypeDQL, getQueryType("  (SELECT 1) UNION (SELECT 2)"))
	r.Equal(QueryTypeDQL, getQueryType("WITH x AS (SELECT 1) SELECT * FROM x"))
	r.Equal(QueryTypeDML, getQueryType("update orders set amount = 1"))
	r.Equal(QueryTypeDDL, getQueryType("DROP TABLE orders"))
	r.Equal(QueryTypeUnknown, getQueryType("DESCRIBE orders"))
	r.Equal(QueryTypeUnknown, getQueryType(""))
}

func TestRecordAuditLog(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	config := &AuditConf{
		AuditLogFile:            filepath.Join(dir, "audit.log"),
		AuditDetailFile:         filepath.Join(dir, "detail.log"),
		AuditMaxSizeInMegaBytes: 500,
		AuditMaxAgeInDays:       180,
	}
	r.NoError(InitAudit(config))
	defer func() { enableAudit = false }()

	RecordConnectEvent(nil, "s1", "alice", "db", "shop", "127.0.0.1")
	RecordRunQueryEvent(nil, "s1", "SELECT *\n FROM orders", time.Now(), "127.0.0.1")
	RecordPlanDetail("s1", "SELECT * FROM orders", []string{"- Seq Scan on orders"})
	RecordDisconnectEvent("s1", "logout")

	content, err := os.ReadFile(config.AuditLogFile)
	r.NoError(err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	r.Len(lines, 3)

	var runQuery AuditLog
	r.NoError(json.Unmarshal([]byte(lines[1]), &runQuery))
	r.Equal(EventRunQuery, runQuery.Header.EventName)
	r.Equal("SELECT * FROM orders", runQuery.Body.RunQuery.Query)
	r.Equal(QueryTypeDQL, runQuery.Body.RunQuery.Type)

	detail, err := os.ReadFile(config.AuditDetailFile)
	r.NoError(err)
	r.Contains(string(detail), `"plan_tree":["- Seq Scan on orders"]`)

	r.Error(recordAuditLog(&AuditLog{}))

	r.Error(InitAudit(&AuditConf{AuditLogFile: dir}))
}
