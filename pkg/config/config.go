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

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blockscope/blockscope/pkg/audit"
	"github.com/blockscope/blockscope/pkg/pgconn"
	"github.com/blockscope/blockscope/pkg/plan"
)

const (
	DefaultPort                 = 5000
	DefaultProtocol             = "http"
	DefaultLogLevel             = "info"
	DefaultSessionExpireTime    = 1 * time.Hour
	DefaultSessionCheckInterval = 1 * time.Minute
	DefaultSessionPingInterval  = 30 * time.Second
	DefaultStatsSettleTimeout   = 5 * time.Second
	DefaultStatsPollInterval    = 250 * time.Millisecond
	DefaultStatsStableWindow    = 1100 * time.Millisecond

	ProtocolHTTP  = "http"
	ProtocolHTTPS = "https"

	LogLevelEnv = "BLOCKSCOPE_LOG_LEVEL"
)

const (
	DefaultEnableAudit             = false
	DefaultAuditLogFile            = "audit/audit.log"
	DefaultAudiDetailFile          = "audit/detail.log"
	DefaultAuditMaxSizeInMegaBytes = 500
	DefaultAuditMaxBackupsCount    = 10
	DefaultAuditMaxAgeInDays       = 180
	DefaultAuditMaxCompress        = false
)

type TlsConf struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type CorsConf struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type PostgresConf struct {
	SSLMode          string        `yaml:"sslmode"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
}

type AnalyzerConf struct {
	ScanPolicy         string        `yaml:"scan_policy"`
	ExplainOptions     string        `yaml:"explain_options"`
	StatsSettleTimeout time.Duration `yaml:"stats_settle_timeout"`
	StatsPollInterval  time.Duration `yaml:"stats_poll_interval"`
	StatsStableWindow  time.Duration `yaml:"stats_stable_window"`
}

// Config contains bootstrap configuration for the blockscope server
type Config struct {
	Port                 int             `yaml:"port"`
	Protocol             string          `yaml:"protocol"`
	TlsConfig            TlsConf         `yaml:"tls"`
	LogLevel             string          `yaml:"log_level"`
	Cors                 CorsConf        `yaml:"cors"`
	SessionExpireTime    time.Duration   `yaml:"session_expire_time"`
	SessionCheckInterval time.Duration   `yaml:"session_expire_check_time"`
	SessionPingInterval  time.Duration   `yaml:"session_ping_interval"`
	EnableAuditLogger    bool            `yaml:"enable_audit_logger"`
	AuditConfig          audit.AuditConf `yaml:"audit"`
	Postgres             PostgresConf    `yaml:"postgres"`
	Analyzer             AnalyzerConf    `yaml:"analyzer"`
}

// NewConfig constructs Config from YAML file
func NewConfig(configPath string) (*Config, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %v", configPath, err)
	}
	config := NewDefaultConfig()
	if err = yaml.Unmarshal(content, config); err != nil {
		return nil, err
	}
	if level := os.Getenv(LogLevelEnv); level != "" {
		config.LogLevel = level
	}
	if err := CheckConfigValues(config); err != nil {
		return nil, err
	}
	return config, nil
}

func CheckConfigValues(config *Config) error {
	switch config.Protocol {
	case ProtocolHTTP:
	case ProtocolHTTPS:
		if config.TlsConfig.CertFile == "" || config.TlsConfig.KeyFile == "" {
			return fmt.Errorf("blockscope work in https, cert_file or key_file couldn't be empty")
		}
	default:
		return fmt.Errorf("invalid protocol %q, should be one of {http,https}", config.Protocol)
	}
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("invalid port %d", config.Port)
	}
	if _, err := plan.ParseScanPolicy(config.Analyzer.ScanPolicy); err != nil {
		return err
	}
	if config.SessionExpireTime <= 0 || config.SessionCheckInterval <= 0 {
		return fmt.Errorf("session_expire_time and session_expire_check_time should be positive")
	}
	return nil
}

func NewDefaultConfig() *Config {
	var config Config
	config.Port = DefaultPort
	config.Protocol = DefaultProtocol
	config.LogLevel = DefaultLogLevel
	config.Cors = CorsConf{AllowOrigins: []string{"*"}}
	config.SessionExpireTime = DefaultSessionExpireTime
	config.SessionCheckInterval = DefaultSessionCheckInterval
	config.SessionPingInterval = DefaultSessionPingInterval
	config.EnableAuditLogger = DefaultEnableAudit
	config.AuditConfig = audit.AuditConf{
		AuditLogFile:            DefaultAuditLogFile,
		AuditDetailFile:         DefaultAudiDetailFile,
		AuditMaxSizeInMegaBytes: DefaultAuditMaxSizeInMegaBytes,
		AuditMaxBackupsCount:    DefaultAuditMaxBackupsCount,
		AuditMaxAgeInDays:       DefaultAuditMaxAgeInDays,
		AuditMaxCompress:        DefaultAuditMaxCompress,
	}
	pgOpts := pgconn.DefaultOptions()
	config.Postgres = PostgresConf{
		SSLMode:         pgOpts.SSLMode,
		ConnectTimeout:  pgOpts.ConnectTimeout,
		ConnMaxLifetime: -1,
	}
	config.Analyzer = AnalyzerConf{
		ScanPolicy:         string(plan.ScanPolicyLast),
		ExplainOptions:     pgconn.DefaultExplainOptions,
		StatsSettleTimeout: DefaultStatsSettleTimeout,
		StatsPollInterval:  DefaultStatsPollInterval,
		StatsStableWindow:  DefaultStatsStableWindow,
	}
	return &config
}

// PgOptions converts the postgres section to connection options.
func (c *Config) PgOptions() pgconn.Options {
	return pgconn.Options{
		SSLMode:          c.Postgres.SSLMode,
		ConnectTimeout:   c.Postgres.ConnectTimeout,
		StatementTimeout: c.Postgres.StatementTimeout,
		ConnMaxLifetime:  c.Postgres.ConnMaxLifetime,
		ExplainOptions:   c.Analyzer.ExplainOptions,
	}
}
