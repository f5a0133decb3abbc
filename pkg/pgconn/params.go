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

package pgconn

import (
	"fmt"
	"strings"
	"time"
)

const DefaultExplainOptions = "BUFFERS ON, ANALYZE ON, COSTS ON, VERBOSE ON, SUMMARY ON, TIMING ON, FORMAT JSON"

// ConnParams identifies the database a session connects to.
type ConnParams struct {
	DBName   string `json:"dbname"`
	User     string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// Options are the per-handle settings shared by all sessions.
type Options struct {
	SSLMode          string
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
	ConnMaxLifetime  time.Duration
	ExplainOptions   string
}

func DefaultOptions() Options {
	return Options{
		SSLMode:        "disable",
		ConnectTimeout: 10 * time.Second,
		ExplainOptions: DefaultExplainOptions,
	}
}

func (p ConnParams) Validate() error {
	var missing []string
	if p.DBName == "" {
		missing = append(missing, "dbname")
	}
	if p.User == "" {
		missing = append(missing, "username")
	}
	if p.Host == "" {
		missing = append(missing, "host")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing connection parameters: %s", strings.Join(missing, ", "))
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d", p.Port)
	}
	return nil
}

// DSN renders the parameters as a libpq keyword/value connection string.
func (p ConnParams) DSN(opts Options) string {
	port := p.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		"host=" + quoteValue(p.Host),
		fmt.Sprintf("port=%d", port),
		"user=" + quoteValue(p.User),
		"password=" + quoteValue(p.Password),
		"dbname=" + quoteValue(p.DBName),
	}
	if opts.SSLMode != "" {
		parts = append(parts, "sslmode="+quoteValue(opts.SSLMode))
	}
	if opts.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(opts.ConnectTimeout.Seconds())))
	}
	return strings.Join(parts, " ")
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + valueEscaper.Replace(v) + "'"
}
