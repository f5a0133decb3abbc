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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/blockscope/blockscope/pkg/pgconn"
	"github.com/blockscope/blockscope/pkg/status"
)

func respond(code int, body string) *http.Response {
	record := &httptest.ResponseRecorder{
		Code: code,
		Body: bytes.NewBufferString(body),
	}
	return record.Result()
}

// requestTo matches a request by method and URL and captures its body.
type requestTo struct {
	method string
	url    string
	body   *[]byte
}

func (m requestTo) Matches(x interface{}) bool {
	req, ok := x.(*http.Request)
	if !ok || req.Method != m.method || req.URL.String() != m.url {
		return false
	}
	if m.body != nil && req.Body != nil {
		content, err := io.ReadAll(req.Body)
		if err != nil {
			return false
		}
		*m.body = content
	}
	return true
}

func (m requestTo) String() string {
	return m.method + " " + m.url
}

func TestClient(t *testing.T) {
	r := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockhttpClient := NewMockhttpClientI(ctrl)

	serverHost := "http://127.0.0.1:5000/"
	client := NewClient(serverHost, mockhttpClient)
	ctx := context.Background()

	// connect stores the token
	{
		var sent []byte
		mockhttpClient.EXPECT().Do(requestTo{http.MethodPost, "http://127.0.0.1:5000" + ConnectionPath, &sent}).
			Return(respond(http.StatusOK, `{"token":"tok-1"}`), nil)
		token, err := client.Connect(ctx, pgconn.ConnParams{DBName: "shop", User: "alice", Host: "db", Port: 5432})
		r.NoError(err)
		r.Equal("tok-1", token)
		r.Equal("tok-1", client.Token)

		var params pgconn.ConnParams
		r.NoError(json.Unmarshal(sent, &params))
		r.Equal("shop", params.DBName)
		r.Equal("alice", params.User)
	}

	// query carries the bearer token
	{
		mockhttpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			r.Equal("Bearer tok-1", req.Header.Get("Authorization"))
			r.Equal("application/json", req.Header.Get("Content-Type"))
			return respond(http.StatusOK, `{"results":[{"Plan":{"Node Type":"Seq Scan","Relation Name":"orders"}}],`+
				`"plan_tree":["- Seq Scan on orders"],"relations":[{"relation":"orders","total_blocks":3}],`+
				`"statistics":{"columns":["relname"],"values":[["orders"]]},"count":[{"orders":3}]}`), nil
		})
		response, err := client.Query(ctx, "SELECT * FROM orders")
		r.NoError(err)
		r.Equal([]string{"- Seq Scan on orders"}, response.PlanTree)
		r.Len(response.Relations, 1)
		r.Equal(int64(3), response.Relations[0].TotalBlocks)
		r.Equal(int64(3), response.Count[0]["orders"])
		r.Empty(response.StatisticsError)
	}

	// blocks sends the block number even when it is zero
	{
		var sent []byte
		mockhttpClient.EXPECT().Do(requestTo{http.MethodPost, "http://127.0.0.1:5000" + BlocksPath, &sent}).
			Return(respond(http.StatusOK, `{"column_names":["id"],"result_columns":["block_id","tuple_id","id"],"accessed":[[0,1,7]]}`), nil)
		report, err := client.Blocks(ctx, "orders", 0, nil)
		r.NoError(err)
		r.JSONEq(`{"table":"orders","block":0}`, string(sent))
		r.Equal([]string{"id"}, report.ColumnNames)
		r.Len(report.Rows, 1)
	}

	// visuals decodes block ids from object keys
	{
		var sent []byte
		mockhttpClient.EXPECT().Do(requestTo{http.MethodPost, "http://127.0.0.1:5000" + VisualsPath, &sent}).
			Return(respond(http.StatusOK, `{"0":2,"1":0,"5":1}`), nil)
		summary, err := client.Visuals(ctx, "orders", []byte(`{"Plan":{"Node Type":"Seq Scan"}}`))
		r.NoError(err)
		r.JSONEq(`{"table":"orders","plan":{"Plan":{"Node Type":"Seq Scan"}}}`, string(sent))
		r.Equal(int64(2), summary[0])
		r.Equal(int64(0), summary[1])
		r.Equal(int64(1), summary[5])
	}

	// server errors keep their status code
	{
		mockhttpClient.EXPECT().Do(gomock.Any()).
			Return(respond(http.StatusBadRequest, `{"error":"no scan of relation \"items\" in the plan","code":"SCAN_NOT_FOUND"}`), nil)
		_, err := client.Visuals(ctx, "items", nil)
		r.Error(err)
		r.True(status.Is(err, status.Code_SCAN_NOT_FOUND))
		r.Contains(err.Error(), "items")
	}

	// disconnect clears the token
	{
		mockhttpClient.EXPECT().Do(requestTo{http.MethodDelete, "http://127.0.0.1:5000" + ConnectionPath, nil}).
			Return(respond(http.StatusOK, `{"token":"tok-1"}`), nil)
		r.NoError(client.Disconnect(ctx))
		r.Empty(client.Token)
	}

	// a body that is not an error document
	{
		mockhttpClient.EXPECT().Do(gomock.Any()).
			Return(respond(http.StatusBadGateway, "upstream down"), nil)
		_, err := client.Query(ctx, "SELECT 1")
		r.True(status.Is(err, status.Code_INTERNAL))
		r.Contains(err.Error(), "upstream down")
	}
}

func TestJoinHostPath(t *testing.T) {
	r := require.New(t)
	r.Equal("http://localhost/query", joinHostPath("http://localhost/", "/query"))
	r.Equal("http://localhost/query", joinHostPath("http://localhost", "query"))
	r.Equal("http://localhost/query", joinHostPath("http://localhost", "/query"))
}
