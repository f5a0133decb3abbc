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
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/blockscope/blockscope/pkg/analyzer"
	"github.com/blockscope/blockscope/pkg/pgconn"
	"github.com/blockscope/blockscope/pkg/status"
)

const (
	ConnectionPath = `/connection`
	QueryPath      = `/query`
	BlocksPath     = `/blocks`
	VisualsPath    = `/visuals`
)

//go:generate mockgen -source client.go -destination client_mock.go -package client
type httpClientI interface {
	Do(req *http.Request) (*http.Response, error)
}

// QueryResponse is the body answered to a query submission.
type QueryResponse struct {
	Results         json.RawMessage           `json:"results"`
	PlanTree        []string                  `json:"plan_tree"`
	Relations       []analyzer.RelationAccess `json:"relations"`
	Statistics      *analyzer.Rows            `json:"statistics"`
	Count           []map[string]int64        `json:"count"`
	StatisticsError string                    `json:"statistics_error"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type blocksRequest struct {
	Table string          `json:"table"`
	Block *int64          `json:"block,omitempty"`
	Plan  json.RawMessage `json:"plan,omitempty"`
}

// Client talks to a blockscope server on behalf of one session. Token is
// set by Connect and may be assigned directly to reuse a session.
type Client struct {
	serverHost string
	c          httpClientI
	Token      string
}

func NewClient(host string, c httpClientI) *Client {
	return &Client{
		serverHost: host,
		c:          c,
	}
}

func (c *Client) Connect(ctx context.Context, params pgconn.ConnParams) (string, error) {
	var response struct {
		Token string `json:"token"`
	}
	if err := c.call(ctx, http.MethodPost, ConnectionPath, params, &response); err != nil {
		return "", err
	}
	c.Token = response.Token
	return response.Token, nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.call(ctx, http.MethodDelete, ConnectionPath, nil, nil); err != nil {
		return err
	}
	c.Token = ""
	return nil
}

func (c *Client) Query(ctx context.Context, query string) (*QueryResponse, error) {
	response := &QueryResponse{}
	if err := c.call(ctx, http.MethodPost, QueryPath, map[string]string{"query": query}, response); err != nil {
		return nil, err
	}
	return response, nil
}

// Blocks fetches the tuples of one block of table read by the session's
// last plan, or by planDoc when it is not empty.
func (c *Client) Blocks(ctx context.Context, table string, block int64, planDoc []byte) (*analyzer.BlockReport, error) {
	request := blocksRequest{Table: table, Block: &block, Plan: planDoc}
	response := &analyzer.BlockReport{}
	if err := c.call(ctx, http.MethodPost, BlocksPath, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

// Visuals fetches the per-block tuple counts of table.
func (c *Client) Visuals(ctx context.Context, table string, planDoc []byte) (analyzer.BlockSummary, error) {
	request := blocksRequest{Table: table, Plan: planDoc}
	response := analyzer.BlockSummary{}
	if err := c.call(ctx, http.MethodPost, VisualsPath, request, &response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *Client) call(ctx context.Context, method, path string, request, response any) error {
	var body io.Reader
	if request != nil {
		content, err := json.Marshal(request)
		if err != nil {
			return err
		}
		body = bytes.NewReader(content)
	}
	req, err := http.NewRequestWithContext(ctx, method, joinHostPath(c.serverHost, path), body)
	if err != nil {
		return err
	}
	if request != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, content)
	}
	if response == nil {
		return nil
	}
	if err := json.Unmarshal(content, response); err != nil {
		return fmt.Errorf("decode response of %s: %v", path, err)
	}
	return nil
}

// decodeError restores the status code carried by an error body.
func decodeError(httpCode int, content []byte) error {
	var e errorResponse
	if err := json.Unmarshal(content, &e); err != nil || e.Error == "" {
		return status.Newf(status.Code_INTERNAL, "server answered %d: %s", httpCode, strings.TrimSpace(string(content)))
	}
	for code, name := range status.Code_name {
		if name == e.Code {
			return status.New(code, e.Error)
		}
	}
	return status.Newf(status.Code_INTERNAL, "%s (%s)", e.Error, e.Code)
}

// joinHostPath concatenates host and path with exactly one slash between
// them.
func joinHostPath(host, path string) string {
	if strings.HasPrefix(path, "/") {
		return strings.TrimSuffix(host, "/") + path
	}
	return strings.TrimSuffix(host, "/") + "/" + path
}
