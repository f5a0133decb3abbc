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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/blockscope/blockscope/pkg/analyzer"
	"github.com/blockscope/blockscope/pkg/config"
	"github.com/blockscope/blockscope/pkg/pgconn"
	"github.com/blockscope/blockscope/pkg/status"
)

const ordersPlan = `[{"Plan": {"Node Type": "Seq Scan", "Relation Name": "orders", "Alias": "o", "Filter": "(o.amount > 100)"}}]`

type fakeConn struct {
	*analyzer.MockConn
	pingErr atomic.Value
	closed  atomic.Bool
}

func (f *fakeConn) Ping(context.Context) error {
	if err, ok := f.pingErr.Load().(error); ok {
		return err
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.closed.Store(true)
	return nil
}

func newTestConfig() *config.Config {
	conf := config.NewDefaultConfig()
	conf.SessionPingInterval = 0
	conf.Analyzer.StatsSettleTimeout = 0
	return conf
}

func newTestApp(t *testing.T, conf *config.Config, conn *fakeConn) (*App, *gin.Engine) {
	r := require.New(t)
	gin.SetMode(gin.TestMode)
	app, err := NewApp(conf, func(_ context.Context, params pgconn.ConnParams) (SessionConn, error) {
		if params.Password != "secret" {
			return nil, status.New(status.Code_CONNECTION_FAILED, `password authentication failed for user "alice"`)
		}
		return conn, nil
	})
	r.NoError(err)
	t.Cleanup(app.Close)
	return app, NewRouter(app)
}

func doRequest(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func connect(t *testing.T, router *gin.Engine) string {
	w := doRequest(router, http.MethodPost, connectionPath, "", pgconn.ConnParams{
		DBName: "shop", User: "alice", Password: "secret", Host: "localhost", Port: 5432,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := decodeBody(t, w)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestAnalysisFlow(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := &fakeConn{MockConn: analyzer.NewMockConn(ctrl)}
	_, router := newTestApp(t, newTestConfig(), conn)

	token := connect(t, router)

	// no plan captured yet
	w := doRequest(router, http.MethodPost, blocksPath, token, gin.H{"table": "orders", "block": 0})
	r.Equal(http.StatusBadRequest, w.Code)
	r.Equal("PLAN_UNAVAILABLE", decodeBody(t, w)["code"])

	stats := &analyzer.Rows{Columns: []string{"relname", "heap_blks_read"}, Values: [][]any{{"orders", int64(3)}}}
	gomock.InOrder(
		conn.EXPECT().ResetStats(gomock.Any()).Return(nil),
		conn.EXPECT().RunExplain(gomock.Any(), "SELECT * FROM orders o WHERE o.amount > 100").Return([]byte(ordersPlan), nil),
		conn.EXPECT().GetIOStats(gomock.Any()).Return(stats, nil),
		conn.EXPECT().GetRelationBlockCounts(gomock.Any()).Return(map[string]int64{"orders": 3}, nil),
	)
	w = doRequest(router, http.MethodPost, queryPath, "Bearer "+token, QueryRequest{Query: "SELECT *\nFROM orders o\nWHERE o.amount > 100"})
	r.Equal(http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	r.Equal([]any{map[string]any{"orders": float64(3)}}, body["count"])
	r.Equal([]any{"- Seq Scan on orders (alias: o)"}, body["plan_tree"])
	r.Len(body["results"], 1)
	r.NotNil(body["statistics"])
	r.NotContains(body, "statistics_error")

	// the captured plan drives the block analyses
	conn.EXPECT().GetColumns(gomock.Any(), "orders").Return([]string{"id", "amount"}, nil)
	conn.EXPECT().RunQuery(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, sql string) (*analyzer.Rows, error) {
		r.Contains(sql, "= 1 AND ((orders.amount > 100))")
		return &analyzer.Rows{
			Columns: []string{"tuple_id", "id", "amount", "result_column"},
			Values:  [][]any{{int64(1), int64(7), int64(150), "Yes"}},
		}, nil
	})
	w = doRequest(router, http.MethodPost, blocksPath, token, gin.H{"table": "orders", "block": 1})
	r.Equal(http.StatusOK, w.Code, w.Body.String())
	body = decodeBody(t, w)
	r.Equal([]any{"id", "amount"}, body["column_names"])
	r.Equal([]any{"tuple_id", "id", "amount", "result_column"}, body["result_columns"])
	r.Equal([]any{[]any{float64(1), float64(7), float64(150), "Yes"}}, body["accessed"])

	conn.EXPECT().RunQuery(gomock.Any(), gomock.Any()).Return(&analyzer.Rows{
		Columns: []string{"block_id", "tuple_count"},
		Values:  [][]any{{int64(0), int64(0)}, {int64(1), int64(4)}},
	}, nil)
	w = doRequest(router, http.MethodPost, visualsPath, token, gin.H{"table": "orders"})
	r.Equal(http.StatusOK, w.Code, w.Body.String())
	r.Equal(map[string]any{"0": float64(0), "1": float64(4)}, decodeBody(t, w))

	w = doRequest(router, http.MethodPost, visualsPath, token, gin.H{"table": "customers"})
	r.Equal(http.StatusBadRequest, w.Code)
	r.Equal("SCAN_NOT_FOUND", decodeBody(t, w)["code"])

	// a plan in the request wins over the captured one
	plan := `{"Plan": {"Node Type": "Index Scan", "Relation Name": "customers", "Alias": "c", "Filter": "(c.id = 5)"}}`
	conn.EXPECT().RunQuery(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, sql string) (*analyzer.Rows, error) {
		r.Contains(sql, "AND ((customers.id = 5))")
		return &analyzer.Rows{Columns: []string{"block_id", "tuple_count"}}, nil
	})
	w = doRequest(router, http.MethodPost, visualsPath, token, gin.H{"table": "customers", "plan": json.RawMessage(plan)})
	r.Equal(http.StatusOK, w.Code, w.Body.String())

	w = doRequest(router, http.MethodPost, blocksPath, token, gin.H{"block": 1})
	r.Equal(http.StatusBadRequest, w.Code)
	r.Equal("BAD_REQUEST", decodeBody(t, w)["code"])
}

func TestQueryErrors(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := &fakeConn{MockConn: analyzer.NewMockConn(ctrl)}
	_, router := newTestApp(t, newTestConfig(), conn)
	token := connect(t, router)

	// statistics failures keep the plan
	gomock.InOrder(
		conn.EXPECT().ResetStats(gomock.Any()).Return(errors.New("permission denied for function pg_stat_reset")),
		conn.EXPECT().RunExplain(gomock.Any(), "SELECT 1").Return([]byte(ordersPlan), nil),
	)
	w := doRequest(router, http.MethodPost, queryPath, token, QueryRequest{Query: "SELECT 1"})
	r.Equal(http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	r.Equal("permission denied for function pg_stat_reset", body["statistics_error"])
	r.NotNil(body["results"])
	r.NotContains(body, "count")

	// database errors are surfaced verbatim
	gomock.InOrder(
		conn.EXPECT().ResetStats(gomock.Any()).Return(nil),
		conn.EXPECT().RunExplain(gomock.Any(), "SELEC 1").
			Return(nil, status.New(status.Code_QUERY_EXECUTION_FAILED, `syntax error at or near "SELEC"`)),
	)
	w = doRequest(router, http.MethodPost, queryPath, token, QueryRequest{Query: "SELEC 1"})
	r.Equal(http.StatusBadRequest, w.Code)
	r.Equal(map[string]any{"error": `syntax error at or near "SELEC"`, "code": "QUERY_EXECUTION_FAILED"}, decodeBody(t, w))

	w = doRequest(router, http.MethodPost, queryPath, token, QueryRequest{Query: "  "})
	r.Equal(http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, queryPath, "", QueryRequest{Query: "SELECT 1"})
	r.Equal(http.StatusUnauthorized, w.Code)
	w = doRequest(router, http.MethodPost, queryPath, "unknown-token", QueryRequest{Query: "SELECT 1"})
	r.Equal(http.StatusUnauthorized, w.Code)
	r.Equal("AUTHORIZATION_FAILED", decodeBody(t, w)["code"])
}

func TestFailedQueryDropsCapturedPlan(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := &fakeConn{MockConn: analyzer.NewMockConn(ctrl)}
	_, router := newTestApp(t, newTestConfig(), conn)
	token := connect(t, router)

	gomock.InOrder(
		conn.EXPECT().ResetStats(gomock.Any()).Return(nil),
		conn.EXPECT().RunExplain(gomock.Any(), "SELECT * FROM orders o WHERE o.amount > 100").Return([]byte(ordersPlan), nil),
		conn.EXPECT().GetIOStats(gomock.Any()).Return(&analyzer.Rows{}, nil),
		conn.EXPECT().GetRelationBlockCounts(gomock.Any()).Return(map[string]int64{"orders": 1}, nil),
	)
	w := doRequest(router, http.MethodPost, queryPath, token, QueryRequest{Query: "SELECT * FROM orders o WHERE o.amount > 100"})
	r.Equal(http.StatusOK, w.Code, w.Body.String())

	gomock.InOrder(
		conn.EXPECT().ResetStats(gomock.Any()).Return(nil),
		conn.EXPECT().RunExplain(gomock.Any(), "SELECT * FROM orders o WHERE o.amount > 'x'").
			Return(nil, status.New(status.Code_QUERY_EXECUTION_FAILED, `invalid input syntax for type integer: "x"`)),
	)
	w = doRequest(router, http.MethodPost, queryPath, token, QueryRequest{Query: "SELECT * FROM orders o WHERE o.amount > 'x'"})
	r.Equal(http.StatusBadRequest, w.Code)
	r.Equal("QUERY_EXECUTION_FAILED", decodeBody(t, w)["code"])

	// no RunQuery expected: the plan of the first query must not be reused
	w = doRequest(router, http.MethodPost, visualsPath, token, gin.H{"table": "orders"})
	r.Equal(http.StatusBadRequest, w.Code, w.Body.String())
	r.Equal("PLAN_UNAVAILABLE", decodeBody(t, w)["code"])

	w = doRequest(router, http.MethodPost, blocksPath, token, gin.H{"table": "orders", "block": 0})
	r.Equal(http.StatusBadRequest, w.Code, w.Body.String())
	r.Equal("PLAN_UNAVAILABLE", decodeBody(t, w)["code"])

	// a malformed query request drops it as well
	gomock.InOrder(
		conn.EXPECT().ResetStats(gomock.Any()).Return(nil),
		conn.EXPECT().RunExplain(gomock.Any(), "SELECT * FROM orders o WHERE o.amount > 100").Return([]byte(ordersPlan), nil),
		conn.EXPECT().GetIOStats(gomock.Any()).Return(&analyzer.Rows{}, nil),
		conn.EXPECT().GetRelationBlockCounts(gomock.Any()).Return(map[string]int64{"orders": 1}, nil),
	)
	w = doRequest(router, http.MethodPost, queryPath, token, QueryRequest{Query: "SELECT * FROM orders o WHERE o.amount > 100"})
	r.Equal(http.StatusOK, w.Code, w.Body.String())
	w = doRequest(router, http.MethodPost, queryPath, token, []int{1})
	r.Equal(http.StatusBadRequest, w.Code)
	w = doRequest(router, http.MethodPost, visualsPath, token, gin.H{"table": "orders"})
	r.Equal("PLAN_UNAVAILABLE", decodeBody(t, w)["code"])
}

func TestConnection(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := &fakeConn{MockConn: analyzer.NewMockConn(ctrl)}
	app, router := newTestApp(t, newTestConfig(), conn)

	w := doRequest(router, http.MethodPost, connectionPath, "", pgconn.ConnParams{DBName: "shop", User: "alice", Password: "wrong", Host: "localhost"})
	r.Equal(http.StatusBadRequest, w.Code)
	r.Equal("CONNECTION_FAILED", decodeBody(t, w)["code"])

	w = doRequest(router, http.MethodPost, connectionPath, "", "not an object")
	r.Equal(http.StatusBadRequest, w.Code)

	token := connect(t, router)
	r.Len(app.listSessions(), 1)

	w = doRequest(router, http.MethodDelete, connectionPath, token, nil)
	r.Equal(http.StatusOK, w.Code)
	r.Equal(token, decodeBody(t, w)["token"])
	r.True(conn.closed.Load())
	r.Empty(app.listSessions())

	w = doRequest(router, http.MethodPost, queryPath, token, QueryRequest{Query: "SELECT 1"})
	r.Equal(http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, healthCheckPath, "", nil)
	r.Equal(http.StatusOK, w.Code)
	r.Equal("ok", w.Body.String())
}

func TestSessionExpiry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := &fakeConn{MockConn: analyzer.NewMockConn(ctrl)}
	conf := newTestConfig()
	conf.SessionExpireTime = 20 * time.Millisecond
	conf.SessionCheckInterval = 5 * time.Millisecond
	_, router := newTestApp(t, conf, conn)

	connect(t, router)
	require.Eventually(t, conn.closed.Load, time.Second, 5*time.Millisecond)
}

func TestSessionWatcher(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	conn := &fakeConn{MockConn: analyzer.NewMockConn(ctrl)}
	app, router := newTestApp(t, newTestConfig(), conn)
	token := connect(t, router)

	var dead []string
	w, err := NewSessionWatcher(app.listSessions, func(sessionId, reason string) {
		dead = append(dead, sessionId)
		app.onSessionDead(sessionId, reason)
	}, WithPingInterval(time.Hour), WithMaxPingFailures(2))
	r.NoError(err)
	defer w.Stop()

	w.checkSessions()
	r.Empty(dead)

	conn.pingErr.Store(errors.New("connection reset by peer"))
	w.checkSessions()
	r.Empty(dead)

	// busy sessions are not probed
	s, ok := app.getSession(token)
	r.True(ok)
	s.mu.Lock()
	w.checkSessions()
	s.mu.Unlock()
	r.Empty(dead)

	w.checkSessions()
	r.Equal([]string{token}, dead)
	r.True(conn.closed.Load())
	r.Empty(app.listSessions())
}

func TestParseAuthorization(t *testing.T) {
	r := require.New(t)
	r.Equal("", parseAuthorization(""))
	r.Equal("abc", parseAuthorization("abc"))
	r.Equal("abc", parseAuthorization("Bearer abc"))
	r.Equal("abc", parseAuthorization("bearer   abc"))
	r.Equal("abc", parseAuthorization("abc def"))

	r.Equal(http.StatusUnauthorized, httpStatusOf(status.Code_AUTHORIZATION_FAILED))
	r.Equal(http.StatusInternalServerError, httpStatusOf(status.Code_INTERNAL))
	r.Equal(http.StatusBadRequest, httpStatusOf(status.Code_SCAN_NOT_FOUND))
}

func TestCorsConfig(t *testing.T) {
	r := require.New(t)
	r.True(corsConfig([]string{"*"}).AllowAllOrigins)
	r.True(corsConfig(nil).AllowAllOrigins)
	conf := corsConfig([]string{"http://localhost:3000"})
	r.False(conf.AllowAllOrigins)
	r.True(conf.AllowCredentials)
	r.NoError(conf.Validate())
}
