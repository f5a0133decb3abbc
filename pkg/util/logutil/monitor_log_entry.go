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

package logutil

import (
	"fmt"
	"strings"
	"time"
)

// MonitorLogEntry summarizes one handled request on a single log line.
// Identification fields are always printed, the others only when set.
type MonitorLogEntry struct {
	RequestID  string
	SessionID  string
	ActionName string
	Relation   string
	CostTime   time.Duration
	ErrorCode  string
	ErrorMsg   string
	RawRequest string
}

func (e MonitorLogEntry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "|RequestID:%v|SessionID:%v|ActionName:%v", e.RequestID, e.SessionID, e.ActionName)
	if e.Relation != "" {
		fmt.Fprintf(&b, "|Relation:%v", e.Relation)
	}
	fmt.Fprintf(&b, "|CostTime:%v", e.CostTime)
	if e.ErrorCode != "" {
		fmt.Fprintf(&b, "|ErrorCode:%v|ErrorMsg:%v", e.ErrorCode, e.ErrorMsg)
	} else if e.ErrorMsg != "" {
		fmt.Fprintf(&b, "|ErrorMsg:%v", e.ErrorMsg)
	}
	if e.RawRequest != "" {
		fmt.Fprintf(&b, "|Request:%v", e.RawRequest)
	}
	return b.String()
}
