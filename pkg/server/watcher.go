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
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

const defaultMaxPingFailures = 3

type OnSessionDeadCb func(sessionId string, reason string)

// SessionWatcher periodically pings the connection of every session and
// reports the sessions whose database went away.
type SessionWatcher struct {
	// time interval of health checks
	interval time.Duration
	// timeout of a single ping
	timeout     time.Duration
	maxFailures int32

	listSessions    func() []*session
	onSessionDeadCb OnSessionDeadCb

	scheduler gocron.Scheduler
}

type SessionWatcherOption func(*SessionWatcher)

func WithPingInterval(t time.Duration) SessionWatcherOption {
	return func(w *SessionWatcher) {
		w.interval = t
	}
}

func WithMaxPingFailures(n int32) SessionWatcherOption {
	return func(w *SessionWatcher) {
		w.maxFailures = n
	}
}

func NewSessionWatcher(listSessions func() []*session, cb OnSessionDeadCb, opts ...SessionWatcherOption) (*SessionWatcher, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("fail to create session watcher scheduler: %v", err)
	}

	w := &SessionWatcher{
		interval:        30 * time.Second,
		maxFailures:     defaultMaxPingFailures,
		listSessions:    listSessions,
		onSessionDeadCb: cb,
		scheduler:       s,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.timeout = w.interval / 2

	if err := w.start(); err != nil {
		return nil, fmt.Errorf("fail to start scheduled jobs: %v", err)
	}
	return w, nil
}

func (w *SessionWatcher) start() error {
	_, err := w.scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.checkSessions),
		gocron.WithName("checkSessions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("fail to schedule session health check task: %v", err)
	}
	w.scheduler.Start()
	return nil
}

func (w *SessionWatcher) checkSessions() {
	for _, s := range w.listSessions() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		skipped, err := s.ping(ctx)
		cancel()
		if skipped {
			continue
		}
		if err == nil {
			s.pingFailures.Store(0)
			continue
		}
		failures := s.pingFailures.Add(1)
		logrus.Warnf("failed to ping database of session %s (%d/%d): %v", s.id, failures, w.maxFailures, err)
		if failures >= w.maxFailures && w.onSessionDeadCb != nil {
			w.onSessionDeadCb(s.id, fmt.Sprintf("database unreachable: %v", err))
		}
	}
}

// Stop shuts the scheduler down.
func (w *SessionWatcher) Stop() {
	if err := w.scheduler.Shutdown(); err != nil {
		logrus.Warnf("failed to stop session watcher: %v", err)
	}
}
