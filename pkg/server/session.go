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
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blockscope/blockscope/pkg/analyzer"
	"github.com/blockscope/blockscope/pkg/pgconn"
	"github.com/blockscope/blockscope/pkg/status"
)

// SessionConn is the database handle a session owns.
type SessionConn interface {
	analyzer.Conn
	Ping(ctx context.Context) error
	Close() error
}

// Connector opens the database handle of a new session.
type Connector func(ctx context.Context, params pgconn.ConnParams) (SessionConn, error)

func NewPgConnector(opts pgconn.Options) Connector {
	return func(ctx context.Context, params pgconn.ConnParams) (SessionConn, error) {
		db, err := pgconn.Open(ctx, params, opts)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

func generateSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String(), nil
	}
	return "", err
}

type session struct {
	id        string
	createdAt time.Time
	user      string
	host      string
	dbName    string

	// mu serializes the requests of the session on its single connection.
	mu   sync.Mutex
	conn SessionConn
	// plan captured by the last query, nil until then
	plan   []byte
	closed bool

	// number of consecutive failed health checks
	pingFailures atomic.Int32
	// why the session left the registry, empty for expiry
	dropReason atomic.Value
}

func newSession(params pgconn.ConnParams, conn SessionConn) (*session, error) {
	sessionId, err := generateSessionID()
	if err != nil {
		return nil, err
	}
	return &session{
		id:        sessionId,
		createdAt: time.Now(),
		user:      params.User,
		host:      params.Host,
		dbName:    params.DBName,
		conn:      conn,
	}, nil
}

func (s *session) reason(fallback string) string {
	if r, ok := s.dropReason.Load().(string); ok && r != "" {
		return r
	}
	return fallback
}

// acquire locks the session for one request. The caller unlocks s.mu.
func (s *session) acquire() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return status.New(status.Code_AUTHORIZATION_FAILED, "session is closed, connect again")
	}
	return nil
}

// close waits for the running request, if any, then releases the connection.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if err := s.conn.Close(); err != nil {
		logrus.Warnf("failed to close connection of session %s: %v", s.id, err)
	}
}

// ping checks the connection unless a request is using it.
func (s *session) ping(ctx context.Context) (skipped bool, err error) {
	if !s.mu.TryLock() {
		return true, nil
	}
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("session %s is closed", s.id)
	}
	return false, s.conn.Ping(ctx)
}
